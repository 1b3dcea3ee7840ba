package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Table names of the hosted store.
const (
	TableGames   = "games"
	TablePlayers = "players"
	TableScores  = "scores"
)

// Change operations carried by a Change.
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

var (
	ErrNotFound     = errors.New("backend: no rows")
	ErrMultipleRows = errors.New("backend: more than one row")
	ErrConflict     = errors.New("backend: unique constraint violation")
	ErrUnknownTable = errors.New("backend: unknown table")
)

// Row is one record as a column -> value map.
type Row map[string]any

// Filter is an equality filter: every column must equal its value.
type Filter map[string]any

// Change is one notification of the change feed.
type Change struct {
	Table  string `json:"table"`
	Op     string `json:"op"`
	Record Row    `json:"record"`
}

// Subscription is returned by Subscribe. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// Backend is the narrow contract the synchronizer needs from the hosted store.
type Backend interface {
	InsertRow(ctx context.Context, table string, fields Row) (Row, error)
	SelectRows(ctx context.Context, table string, filter Filter) ([]Row, error)
	// SelectOne returns ErrNotFound for zero rows and ErrMultipleRows for more than one.
	SelectOne(ctx context.Context, table string, filter Filter) (Row, error)
	UpsertRow(ctx context.Context, table string, key Row, values Row) error
	Subscribe(ctx context.Context, table string, filter Filter, onChange func(Change)) (Subscription, error)
}

// schema lists the unique keys per table; the first one is the upsert conflict target.
var schema = map[string][][]string{
	TableGames:   {{"id"}, {"code"}},
	TablePlayers: {{"id"}},
	TableScores:  {{"game_id", "player_id", "hole"}},
}

func checkTable(table string) error {
	if _, ok := schema[table]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return nil
}

// Match reports whether r satisfies every equality in f.
// Values are compared by their printed form so 18 and 18.0 (JSON) agree.
func (f Filter) Match(r Row) bool {
	for k, want := range f {
		got, ok := r[k]
		if !ok || !sameValue(got, want) {
			return false
		}
	}
	return true
}

func sameValue(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func (r Row) clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DecodeRow copies a row into a struct with json tags.
func DecodeRow(r Row, v any) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// DecodeRows decodes every row into a new element of the returned slice.
func DecodeRows[T any](rows []Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		var v T
		if err := DecodeRow(r, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
