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

package pushsock

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/cardinalhq/tenantsync/internal/scope"
)

// DefaultGuardTTL is the echo guard's self-expiry. It is a safety net for a
// consumer that never gets around to the save the guard anticipated.
const DefaultGuardTTL = 2 * time.Second

// Guard holds short-lived (tenant, key) flags set when a push-originated
// invalidation arrives. The next local persistence attempt for that key
// consumes the flag and skips re-saving the server's own update; an
// unconsumed flag expires on its own.
type Guard struct {
	flags    *ttlcache.Cache[string, struct{}]
	stopOnce sync.Once
}

// NewGuard builds a Guard whose flags expire after ttl (DefaultGuardTTL when
// ttl <= 0).
func NewGuard(ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	g := &Guard{
		flags: ttlcache.New(
			ttlcache.WithTTL[string, struct{}](ttl),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
	}
	go g.flags.Start()
	return g
}

// Set flags (tenant, key) as just updated by the push channel.
func (g *Guard) Set(key, tenantID string) {
	g.flags.Set(scope.Key(tenantID, key), struct{}{}, ttlcache.DefaultTTL)
}

// Consume reports whether a live flag exists for (tenant, key) and clears
// it. The flag is read-once: a second Consume returns false.
func (g *Guard) Consume(key, tenantID string) bool {
	sk := scope.Key(tenantID, key)
	if g.flags.Get(sk) == nil {
		return false
	}
	g.flags.Delete(sk)
	return true
}

// Close stops the expiry loop. Safe to call more than once.
func (g *Guard) Close() {
	g.stopOnce.Do(g.flags.Stop)
}
