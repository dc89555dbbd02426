// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package savequeue coalesces rapid repeated writes to the same
// (tenant, key) into one debounced commit. Arriving writes within the window
// replace the queued payload and reset the timer; every caller across the
// window is settled together when the batched commit finally lands. At most
// one entry exists per (tenant, key), so no two commits for the same key can
// ever be in flight from the queue simultaneously.
package savequeue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/tenantsync/internal/kinds"
	"github.com/cardinalhq/tenantsync/internal/scope"
)

// DefaultWindow is the debounce delay between the last write call and the
// actual commit.
const DefaultWindow = 1200 * time.Millisecond

// ErrClosed is returned to saves issued after Close.
var ErrClosed = errors.New("savequeue: closed")

var (
	savesCoalesced metric.Int64Counter
	commitsTotal   metric.Int64Counter
	guardDrops     metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/tenantsync/internal/savequeue")

	var err error
	savesCoalesced, err = meter.Int64Counter(
		"tenantsync_saves_coalesced_total",
		metric.WithDescription("Writes absorbed into an already-queued entry"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create savesCoalesced counter: %w", err))
	}
	commitsTotal, err = meter.Int64Counter(
		"tenantsync_save_commits_total",
		metric.WithDescription("Batched commits attempted against the gateway"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create commitsTotal counter: %w", err))
	}
	guardDrops, err = meter.Int64Counter(
		"tenantsync_save_guard_drops_total",
		metric.WithDescription("Saves dropped by the empty-collection guard"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create guardDrops counter: %w", err))
	}
}

// CommitFunc persists the batched payload. It runs outside the queue lock.
type CommitFunc func(ctx context.Context, key, tenantID string, data json.RawMessage) error

// LookupFunc returns the current cached payload for (tenant, key), if any.
// It feeds the empty-collection guard.
type LookupFunc func(ctx context.Context, key, tenantID string) (json.RawMessage, bool)

// Options configures a Queue.
type Options struct {
	// Window is the debounce delay; zero means DefaultWindow.
	Window time.Duration
	// Disabled short-circuits every save to a resolved no-op. Checked
	// before queueing so no dead timers accumulate.
	Disabled bool
	// Lookup enables the empty-collection guard when set.
	Lookup LookupFunc
	Logger *slog.Logger
}

type entry struct {
	key      string
	tenantID string
	data     json.RawMessage
	timer    *time.Timer
	waiters  []chan error
}

// Queue is the write coalescer. It is safe for concurrent use.
type Queue struct {
	commit CommitFunc
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
	wg      sync.WaitGroup
}

// New builds a Queue committing through fn.
func New(fn CommitFunc, opts Options) *Queue {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		commit:  fn,
		opts:    opts,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Save enqueues data for (tenant, key) behind the debounce window. The
// returned channel yields exactly one value when the batched commit settles:
// nil on success (or when this payload was superseded), or the commit error.
func (q *Queue) Save(ctx context.Context, key, tenantID string, data json.RawMessage) <-chan error {
	done := make(chan error, 1)

	if q.opts.Disabled {
		done <- nil
		return done
	}

	sk := scope.Key(tenantID, key)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		done <- ErrClosed
		return done
	}

	if e, ok := q.entries[sk]; ok {
		// Last write wins on value; all waiters settle together.
		e.data = data
		e.waiters = append(e.waiters, done)
		e.timer.Stop()
		e.timer.Reset(q.opts.Window)
		savesCoalesced.Add(ctx, 1)
		return done
	}

	e := &entry{
		key:      key,
		tenantID: tenantID,
		data:     data,
		waiters:  []chan error{done},
	}
	e.timer = time.AfterFunc(q.opts.Window, func() { q.fire(sk) })
	q.entries[sk] = e
	return done
}

// SaveImmediate commits data for (tenant, key) synchronously. Any queued
// entry for the same key is cancelled first and its waiters resolved, since
// the immediate write supersedes it.
func (q *Queue) SaveImmediate(ctx context.Context, key, tenantID string, data json.RawMessage) error {
	if q.opts.Disabled {
		return nil
	}

	sk := scope.Key(tenantID, key)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if e, ok := q.entries[sk]; ok {
		e.timer.Stop()
		delete(q.entries, sk)
		settle(e.waiters, nil)
	}
	q.mu.Unlock()

	return q.doCommit(ctx, key, tenantID, data)
}

// Flush commits every queued entry now, without waiting for timers. Used on
// shutdown so pending edits are not lost.
func (q *Queue) Flush(ctx context.Context) {
	q.mu.Lock()
	drained := make([]*entry, 0, len(q.entries))
	for sk, e := range q.entries {
		e.timer.Stop()
		delete(q.entries, sk)
		drained = append(drained, e)
	}
	q.mu.Unlock()

	for _, e := range drained {
		err := q.doCommit(ctx, e.key, e.tenantID, e.data)
		settle(e.waiters, err)
	}
}

// Close flushes pending entries and rejects subsequent saves. It blocks
// until in-flight timer commits finish.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.Flush(context.Background())
	q.wg.Wait()
	return nil
}

// fire runs on the debounce timer's goroutine.
func (q *Queue) fire(sk string) {
	q.mu.Lock()
	e, ok := q.entries[sk]
	if !ok {
		// Cancelled by SaveImmediate or Flush after the timer fired.
		q.mu.Unlock()
		return
	}
	delete(q.entries, sk)
	q.wg.Add(1)
	q.mu.Unlock()
	defer q.wg.Done()

	err := q.doCommit(context.Background(), e.key, e.tenantID, e.data)
	settle(e.waiters, err)
}

func (q *Queue) doCommit(ctx context.Context, key, tenantID string, data json.RawMessage) error {
	if q.guardRejects(ctx, key, tenantID, data) {
		return nil
	}
	commitsTotal.Add(ctx, 1)
	return q.commit(ctx, key, tenantID, data)
}

// guardRejects drops a commit that would overwrite known-good, non-empty
// data with an empty collection. A transient empty render state must not
// erase the tenant's catalog; the drop is silent because the caller's flow
// should not break.
func (q *Queue) guardRejects(ctx context.Context, key, tenantID string, data json.RawMessage) bool {
	if q.opts.Lookup == nil || !kinds.GuardedAgainstEmpty(kinds.Kind(key)) {
		return false
	}
	if !kinds.IsEmptyCollection(data) {
		return false
	}
	cached, ok := q.opts.Lookup(ctx, key, tenantID)
	if !ok || !kinds.IsNonEmptyCollection(cached) {
		return false
	}
	guardDrops.Add(ctx, 1)
	q.logger.Warn("Dropping empty-collection save over non-empty cached data",
		"key", key, "tenantID", scope.Normalize(tenantID))
	return true
}

func settle(waiters []chan error, err error) {
	for _, ch := range waiters {
		ch <- err
	}
}
