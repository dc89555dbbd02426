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

// Package refresh is the in-process notification bus consumers subscribe to
// instead of polling. Every completed save, background revalidation, and
// push-originated invalidation publishes here.
package refresh

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/cardinalhq/tenantsync/internal/scope"
)

// Event describes one changed document. FromSocket marks events that
// originated from the push channel, so a consumer's own persistence effect
// can avoid re-saving the value it just received.
type Event struct {
	Key        string
	TenantID   string
	FromSocket bool
}

// Listener receives published events. Listeners run synchronously on the
// publisher's goroutine; keep them cheap.
type Listener func(Event)

// Bus fans events out to subscribers. A panicking listener is recovered and
// logged so it cannot break the others.
type Bus struct {
	mu        sync.RWMutex
	listeners map[uuid.UUID]Listener
	logger    *slog.Logger
}

// NewBus creates an empty bus. A nil logger falls back to slog.Default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		listeners: make(map[uuid.UUID]Listener),
		logger:    logger,
	}
}

// Subscribe registers fn and returns its unsubscribe function. Unsubscribing
// twice is harmless.
func (b *Bus) Subscribe(fn Listener) func() {
	id := uuid.New()
	b.mu.Lock()
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// Publish delivers ev to every subscriber synchronously. The tenant ID is
// normalized before delivery.
func (b *Bus) Publish(ev Event) {
	ev.TenantID = scope.Normalize(ev.TenantID)

	b.mu.RLock()
	snapshot := make([]Listener, 0, len(b.listeners))
	for _, fn := range b.listeners {
		snapshot = append(snapshot, fn)
	}
	b.mu.RUnlock()

	for _, fn := range snapshot {
		b.invoke(fn, ev)
	}
}

func (b *Bus) invoke(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Refresh listener panicked",
				"key", ev.Key, "tenantID", ev.TenantID, "panic", r)
		}
	}()
	fn(ev)
}
