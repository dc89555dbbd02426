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

// Package kinds enumerates the document kinds that flow through the sync
// layer. Cached payloads are tagged by kind rather than treated as opaque
// blobs, so a malformed persisted entry fails validation instead of silently
// propagating into the UI.
package kinds

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind identifies one tenant-scoped document.
type Kind string

const (
	Products        Kind = "products"
	ThemeConfig     Kind = "theme_config"
	WebsiteConfig   Kind = "website_config"
	Orders          Kind = "orders"
	Logo            Kind = "logo"
	DeliveryConfig  Kind = "delivery_config"
	ChatMessages    Kind = "chat_messages"
	LandingPages    Kind = "landing_pages"
	Categories      Kind = "categories"
	Subcategories   Kind = "subcategories"
	ChildCategories Kind = "child_categories"
	Brands          Kind = "brands"
	Tags            Kind = "tags"
	Users           Kind = "users"
	Roles           Kind = "roles"
)

// collection marks kinds whose payload is a JSON array.
var collection = map[Kind]bool{
	Products:        true,
	Orders:          true,
	DeliveryConfig:  true,
	ChatMessages:    true,
	LandingPages:    true,
	Categories:      true,
	Subcategories:   true,
	ChildCategories: true,
	Brands:          true,
	Tags:            true,
	Users:           true,
	Roles:           true,
}

var known = map[Kind]bool{
	Products: true, ThemeConfig: true, WebsiteConfig: true, Orders: true,
	Logo: true, DeliveryConfig: true, ChatMessages: true, LandingPages: true,
	Categories: true, Subcategories: true, ChildCategories: true,
	Brands: true, Tags: true, Users: true, Roles: true,
}

// Known reports whether k is one of the document kinds this layer manages.
// Unknown keys still flow through the layer untyped; they just get no
// validation and no seed defaults.
func Known(k Kind) bool { return known[k] }

// IsCollection reports whether k's payload is a JSON array.
func IsCollection(k Kind) bool { return collection[k] }

// GuardedAgainstEmpty reports whether an empty-collection save for k must be
// checked against the cache before committing. This is deliberately narrow:
// only the product catalog gets the data-loss guard, per the original
// behavior. Other collections may legitimately be emptied.
func GuardedAgainstEmpty(k Kind) bool { return k == Products }

// IsEmptyCollection reports whether raw is a JSON array with zero elements.
// Non-array payloads return false.
func IsEmptyCollection(raw json.RawMessage) bool {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return false
	}
	return len(arr) == 0
}

// IsNonEmptyCollection reports whether raw is a JSON array with at least one
// element.
func IsNonEmptyCollection(raw json.RawMessage) bool {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return false
	}
	return len(arr) > 0
}

// IsNull reports whether raw is empty or the JSON null literal.
func IsNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Validate checks raw against k's expected shape. Collection kinds must be a
// JSON array (or null); everything else only needs to be well-formed JSON.
func Validate(k Kind, raw json.RawMessage) error {
	if IsNull(raw) {
		return nil
	}
	if !json.Valid(raw) {
		return fmt.Errorf("document %s: payload is not valid JSON", k)
	}
	if IsCollection(k) {
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return fmt.Errorf("document %s: expected a JSON array: %w", k, err)
		}
	}
	return nil
}
