package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotifyChannel is the channel the migration trigger publishes row changes on.
const NotifyChannel = "golf_changes"

var tableOrder = map[string]string{
	TableGames:   "created_at",
	TablePlayers: "created_at, id",
	TableScores:  "player_id, hole",
}

// Postgres implements Backend on top of a pgx pool. Rows travel as jsonb so the
// adapter stays generic over the three tables.
type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
	hub  hub

	retryDelay time.Duration
}

func NewPostgres(pool *pgxpool.Pool, log *slog.Logger) *Postgres {
	if log == nil {
		log = slog.Default()
	}
	return &Postgres{pool: pool, log: log, retryDelay: time.Second}
}

func (p *Postgres) InsertRow(ctx context.Context, table string, fields Row) (Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	cols := sortedKeys(fields)
	args := make([]any, len(cols))
	names := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		names[i] = ident(c)
		params[i] = fmt.Sprintf("$%d", i+1)
		args[i] = fields[c]
	}

	q := fmt.Sprintf(`INSERT INTO %s AS t (%s) VALUES (%s) RETURNING to_jsonb(t)`,
		ident(table), strings.Join(names, ", "), strings.Join(params, ", "))

	var row Row
	if err := p.pool.QueryRow(ctx, q, args...).Scan(&row); err != nil {
		return nil, mapPgError(err)
	}
	return row, nil
}

func (p *Postgres) SelectRows(ctx context.Context, table string, filter Filter) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	where, args := whereClause(filter)
	q := fmt.Sprintf(`SELECT to_jsonb(t) FROM %s t%s ORDER BY %s`, ident(table), where, tableOrder[table])

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[Row])
	if err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

func (p *Postgres) SelectOne(ctx context.Context, table string, filter Filter) (Row, error) {
	rows, err := p.SelectRows(ctx, table, filter)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return rows[0], nil
	default:
		return nil, fmt.Errorf("%w: %d rows in %s", ErrMultipleRows, len(rows), table)
	}
}

func (p *Postgres) UpsertRow(ctx context.Context, table string, key Row, values Row) error {
	if err := checkTable(table); err != nil {
		return err
	}

	keyCols := sortedKeys(key)
	valCols := sortedKeys(values)

	var (
		names  []string
		params []string
		args   []any
		sets   []string
	)
	for _, c := range keyCols {
		args = append(args, key[c])
		names = append(names, ident(c))
		params = append(params, fmt.Sprintf("$%d", len(args)))
	}
	for _, c := range valCols {
		args = append(args, values[c])
		names = append(names, ident(c))
		params = append(params, fmt.Sprintf("$%d", len(args)))
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", ident(c), ident(c)))
	}

	conflict := make([]string, len(keyCols))
	for i, c := range keyCols {
		conflict[i] = ident(c)
	}

	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s`,
		ident(table), strings.Join(names, ", "), strings.Join(params, ", "),
		strings.Join(conflict, ", "), action)

	if _, err := p.pool.Exec(ctx, q, args...); err != nil {
		return mapPgError(err)
	}
	return nil
}

// Subscribe registers onChange for notifications delivered by Listen.
func (p *Postgres) Subscribe(ctx context.Context, table string, filter Filter, onChange func(Change)) (Subscription, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return p.hub.add(table, filter, onChange), nil
}

// Listen holds a dedicated connection in LISTEN mode and dispatches every
// notification to the subscribers. It reconnects until ctx is done.
func (p *Postgres) Listen(ctx context.Context) error {
	for {
		err := p.listenOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		p.log.Error("change feed listener stopped, reconnecting", "err", err, "retry_in", p.retryDelay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.retryDelay):
		}
	}
}

func (p *Postgres) listenOnce(ctx context.Context) error {
	conn, err := pgx.ConnectConfig(ctx, p.pool.Config().ConnConfig.Copy())
	if err != nil {
		return fmt.Errorf("listen connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+ident(NotifyChannel)); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	p.log.Info("listening for changes", "channel", NotifyChannel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}

		var c Change
		if err := json.Unmarshal([]byte(n.Payload), &c); err != nil {
			p.log.Warn("bad change payload", "err", err)
			continue
		}
		p.hub.dispatch(c)
	}
}

func whereClause(filter Filter) (string, []any) {
	if len(filter) == 0 {
		return "", nil
	}
	cols := sortedKeys(filter)
	conds := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		conds[i] = fmt.Sprintf("t.%s = $%d", ident(c), i+1)
		args[i] = filter[c]
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}
