// Package badger implements storage.Store on an embedded Badger key-value
// database. Products and orders are stored as JSON under prefixed keys.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/storage"
)

const (
	keyPrefixProduct = "product:"
	keyPrefixOrder   = "order:"

	maxConflictRetries = 10
)

// Config configures the Badger store. An empty Dir opens an in-memory
// database.
type Config struct {
	Dir string
}

// Store implements storage.Store backed by Badger.
type Store struct {
	db     *dgbadger.DB
	logger *slog.Logger
}

// Open opens (or creates) the database.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	opts := dgbadger.DefaultOptions(cfg.Dir).WithLogger(slogLogger{logger})
	if cfg.Dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	logger.Info("badger store opened", slog.String("dir", cfg.Dir), slog.Bool("in_memory", cfg.Dir == ""))
	return &Store{db: db, logger: logger}, nil
}

func productKey(id string) []byte { return []byte(keyPrefixProduct + strings.ToUpper(id)) }
func orderKey(id string) []byte   { return []byte(keyPrefixOrder + strings.ToUpper(id)) }

func (s *Store) Products(_ context.Context) ([]domain.Product, error) {
	var out []domain.Product
	err := s.db.View(func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixProduct)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var p domain.Product
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return out, nil
}

func (s *Store) Product(_ context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	if err := s.db.View(func(txn *dgbadger.Txn) error {
		return get(txn, productKey(id), &p)
	}); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) Order(_ context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	if err := s.db.View(func(txn *dgbadger.Txn) error {
		return get(txn, orderKey(id), &o)
	}); err != nil {
		return nil, err
	}
	return &o, nil
}

// CancelOrder reads and rewrites the order in one transaction. Badger's
// optimistic concurrency rejects the commit of a racing writer with
// ErrConflict; the retry then observes the cancelled status.
func (s *Store) CancelOrder(ctx context.Context, id string) (*domain.Order, error) {
	op := func() (*domain.Order, error) {
		var o domain.Order
		err := s.db.Update(func(txn *dgbadger.Txn) error {
			if err := get(txn, orderKey(id), &o); err != nil {
				return err
			}
			if o.Status != domain.OrderOpen {
				return domain.ErrOrderNotOpen
			}
			o.Status = domain.OrderCancelled
			return set(txn, orderKey(o.ID), &o)
		})
		switch {
		case err == nil:
			return &o, nil
		case errors.Is(err, dgbadger.ErrConflict):
			return nil, err
		default:
			return nil, backoff.Permanent(err)
		}
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(time.Millisecond)),
		backoff.WithMaxTries(maxConflictRetries),
	)
}

func (s *Store) Seed(_ context.Context, ds *storage.Dataset) error {
	added := 0
	err := s.db.Update(func(txn *dgbadger.Txn) error {
		for i := range ds.Products {
			ok, err := setIfAbsent(txn, productKey(ds.Products[i].ID), &ds.Products[i])
			if err != nil {
				return err
			}
			if ok {
				added++
			}
		}
		for i := range ds.Orders {
			ok, err := setIfAbsent(txn, orderKey(ds.Orders[i].ID), &ds.Orders[i])
			if err != nil {
				return err
			}
			if ok {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("seeding badger: %w", err)
	}
	s.logger.Info("badger store seeded", slog.Int("records_added", added))
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Driver returns "badger".
func (s *Store) Driver() string { return storage.DriverBadger }

// RunGC reclaims space in the value log. It is a no-op for in-memory
// databases and when there is nothing to collect.
func (s *Store) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if err == nil || errors.Is(err, dgbadger.ErrNoRewrite) || errors.Is(err, dgbadger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}

func get(txn *dgbadger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func set(txn *dgbadger.Txn, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

func setIfAbsent(txn *dgbadger.Txn, key []byte, v any) (bool, error) {
	_, err := txn.Get(key)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, dgbadger.ErrKeyNotFound) {
		return false, err
	}
	return true, set(txn, key, v)
}

// slogLogger adapts *slog.Logger to badger.Logger. Badger is chatty at
// info level, so its info and debug output are logged at debug.
type slogLogger struct {
	logger *slog.Logger
}

func (l slogLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

func (l slogLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

func (l slogLogger) Infof(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

func (l slogLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

// compile-time interface check
var _ storage.Store = (*Store)(nil)
