package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig holds connection settings for the NATS change feed.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "golf.changes",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// ConnectNATS dials NATS with reconnect handlers that log through log.
func ConnectNATS(cfg NATSConfig, log *slog.Logger) (*nats.Conn, error) {
	if log == nil {
		log = slog.Default()
	}
	opts := []nats.Option{
		nats.Name("golf-scorecard"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Error("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("nats error", "err", err)
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

// NATSFeed wraps a Backend and moves its change feed onto NATS: every
// successful write is published on <prefix>.<table> and Subscribe listens there.
type NATSFeed struct {
	Backend

	nc     *nats.Conn
	prefix string
	log    *slog.Logger
}

func NewNATSFeed(inner Backend, nc *nats.Conn, prefix string, log *slog.Logger) *NATSFeed {
	if log == nil {
		log = slog.Default()
	}
	return &NATSFeed{Backend: inner, nc: nc, prefix: prefix, log: log}
}

func (f *NATSFeed) subject(table string) string {
	return f.prefix + "." + table
}

func (f *NATSFeed) InsertRow(ctx context.Context, table string, fields Row) (Row, error) {
	row, err := f.Backend.InsertRow(ctx, table, fields)
	if err != nil {
		return nil, err
	}
	f.publish(Change{Table: table, Op: OpInsert, Record: row})
	return row, nil
}

func (f *NATSFeed) UpsertRow(ctx context.Context, table string, key Row, values Row) error {
	if err := f.Backend.UpsertRow(ctx, table, key, values); err != nil {
		return err
	}
	rec := key.clone()
	for k, v := range values {
		rec[k] = v
	}
	f.publish(Change{Table: table, Op: OpUpdate, Record: rec})
	return nil
}

func (f *NATSFeed) Subscribe(ctx context.Context, table string, filter Filter, onChange func(Change)) (Subscription, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	sub, err := f.nc.Subscribe(f.subject(table), func(msg *nats.Msg) {
		var c Change
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			f.log.Warn("bad change message", "subject", msg.Subject, "err", err)
			return
		}
		if c.Table == table && filter.Match(c.Record) {
			onChange(c)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", f.subject(table), err)
	}
	return natsSubscription{sub: sub}, nil
}

// publish is best effort: the write already landed, a lost notification only
// delays other devices until their next refresh.
func (f *NATSFeed) publish(c Change) {
	b, err := json.Marshal(c)
	if err != nil {
		f.log.Error("marshal change", "err", err)
		return
	}
	if err := f.nc.Publish(f.subject(c.Table), b); err != nil {
		f.log.Error("publish change", "table", c.Table, "err", err)
	}
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s natsSubscription) Unsubscribe() {
	_ = s.sub.Unsubscribe()
}
