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
	"bytes"
	"context"
	"encoding/json"

	"github.com/cardinalhq/tenantsync/internal/kinds"
	"github.com/cardinalhq/tenantsync/internal/kvcache"
	"github.com/cardinalhq/tenantsync/internal/logctx"
	"github.com/cardinalhq/tenantsync/internal/refresh"
	"github.com/cardinalhq/tenantsync/internal/seed"
)

// Get returns the document for (tenant, key), stale-while-revalidate style:
// a cache hit returns immediately, and a hit served from the persistent
// mirror (a cold start) additionally kicks off a background revalidation
// whose outcome, if different, is announced on the refresh bus. A miss
// fetches through the deduplicator. Fetch failures and absent documents
// degrade to the built-in seed default when the kind has one.
func (s *Context) Get(ctx context.Context, key, tenantID string) (json.RawMessage, error) {
	ctx = logctx.WithAttrs(logctx.WithLogger(ctx, s.logger), "key", key, "tenantID", tenantID)
	if data, tier, ok := s.cache.Get(ctx, key, tenantID); ok {
		if tier == kvcache.TierMirror {
			go s.revalidate(key, tenantID)
		}
		return data, nil
	}

	data, err := s.fetchThrough(ctx, key, tenantID)
	if err != nil {
		if def, ok := seed.Default(kinds.Kind(key)); ok {
			s.logger.Warn("Serving seed default after fetch failure",
				"key", key, "tenantID", tenantID, "error", err)
			return def, nil
		}
		return nil, err
	}
	if data == nil {
		// A new tenant with nothing stored yet. Seeds are not cached so a
		// later genuine write is never mistaken for existing remote data.
		if def, ok := seed.Default(kinds.Kind(key)); ok {
			return def, nil
		}
	}
	return data, nil
}

// fetchThrough performs a deduplicated gateway fetch and populates both
// cache tiers on success.
func (s *Context) fetchThrough(ctx context.Context, key, tenantID string) (json.RawMessage, error) {
	return s.fetches.Do(ctx, key, tenantID, func(ctx context.Context) (json.RawMessage, error) {
		data, err := s.gw.FetchDocument(ctx, tenantID, key)
		if err != nil {
			return nil, err
		}
		if data == nil {
			return nil, nil
		}
		if err := kinds.Validate(kinds.Kind(key), data); err != nil {
			s.logger.Warn("Discarding malformed remote document", "key", key, "error", err)
			return nil, nil
		}
		s.cache.Set(ctx, key, tenantID, data)
		return data, nil
	})
}

// revalidate refreshes one key in the background and publishes a refresh
// notification if the remote copy differs from what the cache held.
func (s *Context) revalidate(key, tenantID string) {
	ctx := logctx.WithLogger(context.Background(), s.logger)
	prev, _, _ := s.cache.Get(ctx, key, tenantID)
	data, err := s.fetchThrough(ctx, key, tenantID)
	if err != nil {
		s.logger.Debug("Background revalidation failed", "key", key, "tenantID", tenantID, "error", err)
		return
	}
	if data != nil && !bytes.Equal(prev, data) {
		s.bus.Publish(refresh.Event{Key: key, TenantID: tenantID})
	}
}
