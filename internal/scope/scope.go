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

// Package scope normalizes tenant identifiers. Every cache key, save-queue
// key, and push-channel membership in this module is namespaced by the
// normalized scope; nothing reads or writes across scopes implicitly.
package scope

import "strings"

// Public is the sentinel scope used when no tenant is supplied.
const Public = "public"

// Normalize trims a tenant ID and maps the empty string to Public.
func Normalize(tenantID string) string {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Public
	}
	return tenantID
}

// Key returns the canonical "{scope}::{key}" form used to namespace
// cache entries, queue entries, and in-flight fetch ledgers.
func Key(tenantID, key string) string {
	return Normalize(tenantID) + "::" + key
}
