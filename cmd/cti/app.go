package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/CTIDashboard/go-api/cti/archive"
	"github.com/CTIDashboard/go-api/cti/config"
	"github.com/CTIDashboard/go-api/cti/history"
	"github.com/CTIDashboard/go-api/cti/journal"
	"github.com/CTIDashboard/go-api/cti/postgres"
	"github.com/CTIDashboard/go-api/cti/queue"
	"github.com/CTIDashboard/go-api/cti/scan"
	"github.com/CTIDashboard/go-api/cti/session"
	"github.com/CTIDashboard/go-api/cti/snapshot"
	"github.com/CTIDashboard/go-api/cti/store"
	"github.com/nats-io/nats.go"
)

// app holds everything a command needs, built from the loaded config.
type app struct {
	cfg     *config.Config
	client  *scan.Client
	session *session.Session
	nc      *nats.Conn
	kv      store.KVStore
	closers []func() error
}

type appOptions struct {
	journal   bool
	publisher bool
}

func newApp(ctx context.Context, cfg *config.Config, o appOptions) (*app, error) {
	client, err := scan.NewClient(&cfg.API, scan.WithLogger(slog.Default()))
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, client: client}

	var sessOpts []session.Option
	if o.journal {
		j, err := a.openJournal(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		if j != nil {
			sessOpts = append(sessOpts, session.WithJournal(j))
		}
	}
	if o.publisher {
		p, err := a.openPublisher()
		if err != nil {
			a.Close()
			return nil, err
		}
		sessOpts = append(sessOpts, session.WithPublisher(p))
	}

	a.session = session.New(client, sessOpts...)
	if _, err := a.session.Restore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openJournal(ctx context.Context) (history.Journal, error) {
	switch a.cfg.Journal.Driver {
	case config.JournalSQLite:
		j, err := journal.OpenSQLite(a.cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, j.Close)
		return j, nil
	case config.JournalValkey:
		kv, err := a.valkey()
		if err != nil {
			return nil, err
		}
		return journal.NewKV(ctx, kv)
	case config.JournalPostgres:
		arc, err := a.openArchive()
		if err != nil {
			return nil, err
		}
		return arc, nil
	default:
		return nil, nil
	}
}

func (a *app) openArchive() (*archive.Archive, error) {
	db, err := postgres.Connect(a.cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}
	return archive.New(db), nil
}

func (a *app) openPublisher() (queue.Publisher, error) {
	b := a.cfg.Broker
	switch b.Driver {
	case config.BrokerAMQP:
		p := queue.NewAMQPPublisher(b.URL, b.AMQPRoute())
		a.closers = append(a.closers, p.Close)
		return p, nil
	case config.BrokerNATS:
		nc, err := a.natsConn()
		if err != nil {
			return nil, err
		}
		return queue.NewNATSPublisher(nc, b.Subject), nil
	default:
		return queue.Nop{}, nil
	}
}

// natsConn opens the shared NATS connection once.
func (a *app) natsConn() (*nats.Conn, error) {
	if a.nc != nil {
		return a.nc, nil
	}
	nc, err := queue.ConnectNATS(a.cfg.Broker.URL)
	if err != nil {
		return nil, err
	}
	a.nc = nc
	a.closers = append(a.closers, func() error {
		if err := nc.Drain(); err != nil {
			nc.Close()
			return err
		}
		return nil
	})
	return nc, nil
}

func (a *app) snapshotManager() (*snapshot.Manager, error) {
	if a.cfg.Snapshots.Store != config.SnapshotValkey {
		return snapshot.NewManager(store.NewMemoryStore()), nil
	}
	kv, err := a.valkey()
	if err != nil {
		return nil, err
	}
	return snapshot.NewManager(kv), nil
}

// valkey opens the shared valkey connection once.
func (a *app) valkey() (store.KVStore, error) {
	if a.kv != nil {
		return a.kv, nil
	}
	kv, err := store.NewValkeyStore(a.cfg.Valkey.Address)
	if err != nil {
		return nil, err
	}
	a.kv = kv
	a.closers = append(a.closers, kv.Close)
	return kv, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			slog.Warn("Failed to close resource", "error", err)
		}
	}
	a.closers = nil
}
