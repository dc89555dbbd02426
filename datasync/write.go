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

package datasync

import (
	"context"
	"encoding/json"

	"github.com/cardinalhq/tenantsync/internal/logctx"
	"github.com/cardinalhq/tenantsync/internal/pushsock"
	"github.com/cardinalhq/tenantsync/internal/refresh"
)

// Save enqueues a debounced write for (tenant, key). The returned channel
// settles once the batched commit lands (or fails). If the value being
// saved was just delivered by the push channel, the echo guard short-circuits
// the save so the server's own update is not echoed back to it.
func (s *Context) Save(ctx context.Context, key, tenantID string, data json.RawMessage) <-chan error {
	if s.guard.Consume(key, tenantID) {
		s.logger.Debug("Skipping re-save of push-originated update", "key", key, "tenantID", tenantID)
		done := make(chan error, 1)
		done <- nil
		return done
	}
	return s.queue.Save(ctx, key, tenantID, data)
}

// SaveImmediate commits synchronously, cancelling any queued write for the
// same key. Live theme editing uses this path; everything else should
// tolerate the debounce window.
func (s *Context) SaveImmediate(ctx context.Context, key, tenantID string, data json.RawMessage) error {
	if s.guard.Consume(key, tenantID) {
		s.logger.Debug("Skipping re-save of push-originated update", "key", key, "tenantID", tenantID)
		return nil
	}
	return s.queue.SaveImmediate(ctx, key, tenantID, data)
}

// commitDocument is the save queue's commit path: persist remotely, then
// update both cache tiers and announce the change.
func (s *Context) commitDocument(ctx context.Context, key, tenantID string, data json.RawMessage) error {
	ctx = logctx.WithLogger(ctx, s.logger)
	if err := s.gw.PersistDocument(ctx, tenantID, key, data); err != nil {
		return err
	}
	s.cache.Set(ctx, key, tenantID, data)
	s.bus.Publish(refresh.Event{Key: key, TenantID: tenantID})
	return nil
}

// HandlePushEvent processes one server-originated change notification:
// invalidate the affected entry, flag the echo guard, and notify consumers
// tagged FromSocket so their persistence effects know not to re-save.
func (s *Context) HandlePushEvent(ev pushsock.Event) {
	key := ev.DocumentKey()
	if key == "" {
		return
	}
	ctx := logctx.WithLogger(context.Background(), s.logger)
	s.cache.Invalidate(ctx, key, ev.TenantID)
	s.guard.Set(key, ev.TenantID)
	s.bus.Publish(refresh.Event{Key: key, TenantID: ev.TenantID, FromSocket: true})
}
