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

// Package dedup collapses concurrent fetches for the same (tenant, key) onto
// a single in-flight call. Several UI consumers mounting at once all request
// the same documents; only one network round trip should happen, with every
// caller observing the identical result or rejection.
package dedup

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/singleflight"

	"github.com/cardinalhq/tenantsync/internal/scope"
)

// FetchFunc performs the actual fetch when no flight is in progress.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

// Deduper shares in-flight fetches per (tenant, key). The ledger entry's
// lifetime is exactly one round trip: singleflight removes it the moment the
// shared call settles.
type Deduper struct {
	group singleflight.Group
}

// Do runs fn for (tenant, key), or joins an already in-flight call for the
// same pair. All joined callers receive the same payload and error.
func (d *Deduper) Do(ctx context.Context, key, tenantID string, fn FetchFunc) (json.RawMessage, error) {
	v, err, _ := d.group.Do(scope.Key(tenantID, key), func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return nil, err
	}
	raw, _ := v.(json.RawMessage)
	return raw, nil
}
