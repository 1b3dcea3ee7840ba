package backend

import "sync"

// hub fans change notifications out to subscribers registered per table + filter.
type hub struct {
	mu   sync.Mutex
	next int
	subs map[int]subscriber
}

type subscriber struct {
	table  string
	filter Filter
	fn     func(Change)
}

func (h *hub) add(table string, filter Filter, fn func(Change)) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs == nil {
		h.subs = make(map[int]subscriber)
	}
	h.next++
	id := h.next
	h.subs[id] = subscriber{table: table, filter: filter, fn: fn}

	return &funcSubscription{cancel: func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}}
}

func (h *hub) dispatch(c Change) {
	h.mu.Lock()
	var fns []func(Change)
	for _, s := range h.subs {
		if s.table == c.Table && s.filter.Match(c.Record) {
			fns = append(fns, s.fn)
		}
	}
	h.mu.Unlock()

	// callbacks run without the lock so they may unsubscribe
	for _, fn := range fns {
		fn(c)
	}
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

type funcSubscription struct {
	once   sync.Once
	cancel func()
}

func (s *funcSubscription) Unsubscribe() {
	s.once.Do(s.cancel)
}
