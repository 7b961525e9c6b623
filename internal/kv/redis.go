// Package kv is the shared key-value store behind visit analytics. It folds
// visit events into redis counters and sets, and reads them back for the
// stats endpoint and the rollup archive.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"

	"starlore/internal/config"
)

// ErrDisabled is returned when no store is configured.
var ErrDisabled = errors.New("analytics store not configured")

// Store wraps a redis client and a circuit breaker. A nil *Store is valid and
// behaves as a disabled store.
type Store struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker[any]
	now    func() time.Time

	// queryTimeout bounds each stats sub-query. It stays below the
	// handlers' request deadline so an unresponsive store degrades a read
	// to zeros instead of failing it.
	queryTimeout time.Duration
}

// QueryTimeout is the default per sub-query bound of Stats.
const QueryTimeout = 2 * time.Second

// Connect builds a Store from KV_URL / KV_TOKEN. It returns ErrDisabled when
// the store is not configured. An unreachable server is logged, not fatal:
// the client reconnects on demand and the breaker sheds load meanwhile.
func Connect(cfg *config.Config) (*Store, error) {
	if !cfg.AnalyticsEnabled() {
		return nil, ErrDisabled
	}

	opts, err := redis.ParseURL(cfg.KVURL)
	if err != nil {
		return nil, fmt.Errorf("invalid KV_URL: %w", err)
	}
	if cfg.KVToken != "" {
		opts.Password = cfg.KVToken
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	s := New(redis.NewClient(opts))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		logrus.WithError(err).Warn("analytics store unreachable at startup")
	}
	return s, nil
}

// New wraps an existing client.
func New(client *redis.Client) *Store {
	return &Store{
		client: client,
		cb:     newBreaker("analytics-kv"),
		now:    time.Now,

		queryTimeout: QueryTimeout,
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("analytics store circuit breaker changed state")
		},
	})
}

// SetClock replaces the clock used to date events. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Enabled reports whether s is backed by a store.
func (s *Store) Enabled() bool {
	return s != nil && s.client != nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	return s.do(func() error { return s.client.Ping(ctx).Err() })
}

// BreakerState reports the circuit breaker state ("closed", "open", "half-open"),
// or "disabled" for an unconfigured store.
func (s *Store) BreakerState() string {
	if !s.Enabled() {
		return "disabled"
	}
	return s.cb.State().String()
}

// Close closes the redis connection.
func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.client.Close()
}

// query derives the context of one stats sub-query.
func (s *Store) query(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

func (s *Store) do(fn func() error) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

func (s *Store) clock() time.Time {
	if s == nil || s.now == nil {
		return time.Now()
	}
	return s.now()
}
