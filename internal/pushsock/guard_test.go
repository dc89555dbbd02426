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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGuardConsumeIsReadOnce(t *testing.T) {
	g := NewGuard(0)
	defer g.Close()

	g.Set("theme_config", "acme")
	assert.True(t, g.Consume("theme_config", "acme"))
	assert.False(t, g.Consume("theme_config", "acme"), "flag is cleared on first read")
}

func TestGuardScopesByTenant(t *testing.T) {
	g := NewGuard(0)
	defer g.Close()

	g.Set("theme_config", "a")
	assert.False(t, g.Consume("theme_config", "b"))
	assert.True(t, g.Consume("theme_config", "a"))
}

func TestGuardSelfExpires(t *testing.T) {
	g := NewGuard(25 * time.Millisecond)
	defer g.Close()

	g.Set("theme_config", "acme")
	time.Sleep(60 * time.Millisecond)
	assert.False(t, g.Consume("theme_config", "acme"), "unread flag expires on its own")
}

func TestGuardEmptyTenantIsPublic(t *testing.T) {
	g := NewGuard(0)
	defer g.Close()

	g.Set("products", "")
	assert.True(t, g.Consume("products", "public"))
}
