package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Backend. Rows keep insertion order and changes are
// delivered synchronously after the write is committed.
type Memory struct {
	mu     sync.Mutex
	tables map[string][]Row
	hub    hub
}

func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]Row)}
}

func (m *Memory) InsertRow(ctx context.Context, table string, fields Row) (Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	row := fields.clone()
	if _, ok := row["id"]; !ok && table != TableScores {
		row["id"] = uuid.NewString()
	}

	m.mu.Lock()
	if err := m.checkUniqueLocked(table, row); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.tables[table] = append(m.tables[table], row)
	out := row.clone()
	m.mu.Unlock()

	m.hub.dispatch(Change{Table: table, Op: OpInsert, Record: row.clone()})
	return out, nil
}

func (m *Memory) SelectRows(ctx context.Context, table string, filter Filter) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Row
	for _, r := range m.tables[table] {
		if filter.Match(r) {
			out = append(out, r.clone())
		}
	}
	return out, nil
}

func (m *Memory) SelectOne(ctx context.Context, table string, filter Filter) (Row, error) {
	rows, err := m.SelectRows(ctx, table, filter)
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

func (m *Memory) UpsertRow(ctx context.Context, table string, key Row, values Row) error {
	if err := checkTable(table); err != nil {
		return err
	}

	m.mu.Lock()
	idx := -1
	for i, r := range m.tables[table] {
		if Filter(key).Match(r) {
			idx = i
			break
		}
	}

	var (
		row Row
		op  string
	)
	if idx >= 0 {
		row = m.tables[table][idx].clone()
		for k, v := range values {
			row[k] = v
		}
		m.tables[table][idx] = row
		op = OpUpdate
	} else {
		row = key.clone()
		for k, v := range values {
			row[k] = v
		}
		if _, ok := row["id"]; !ok && table != TableScores {
			row["id"] = uuid.NewString()
		}
		if err := m.checkUniqueLocked(table, row); err != nil {
			m.mu.Unlock()
			return err
		}
		m.tables[table] = append(m.tables[table], row)
		op = OpInsert
	}
	rec := row.clone()
	m.mu.Unlock()

	m.hub.dispatch(Change{Table: table, Op: op, Record: rec})
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, table string, filter Filter, onChange func(Change)) (Subscription, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return m.hub.add(table, filter, onChange), nil
}

// Subscribers returns the number of live subscriptions.
func (m *Memory) Subscribers() int {
	return m.hub.size()
}

func (m *Memory) checkUniqueLocked(table string, row Row) error {
	for _, cols := range schema[table] {
		key := Filter{}
		for _, c := range cols {
			v, ok := row[c]
			if !ok {
				key = nil
				break
			}
			key[c] = v
		}
		if key == nil {
			continue
		}
		for _, r := range m.tables[table] {
			if key.Match(r) {
				return fmt.Errorf("%w: %s %v", ErrConflict, table, cols)
			}
		}
	}
	return nil
}
