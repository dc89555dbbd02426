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

package kinds

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuardedAgainstEmpty(t *testing.T) {
	assert.True(t, GuardedAgainstEmpty(Products))
	assert.False(t, GuardedAgainstEmpty(Orders))
	assert.False(t, GuardedAgainstEmpty(Categories))
	assert.False(t, GuardedAgainstEmpty(ThemeConfig))
}

func TestIsEmptyCollection(t *testing.T) {
	assert.True(t, IsEmptyCollection(json.RawMessage(`[]`)))
	assert.False(t, IsEmptyCollection(json.RawMessage(`[1]`)))
	assert.False(t, IsEmptyCollection(json.RawMessage(`{}`)))
	assert.False(t, IsEmptyCollection(json.RawMessage(`null`)))
}

func TestIsNonEmptyCollection(t *testing.T) {
	assert.True(t, IsNonEmptyCollection(json.RawMessage(`[{"id":"p1"}]`)))
	assert.False(t, IsNonEmptyCollection(json.RawMessage(`[]`)))
	assert.False(t, IsNonEmptyCollection(json.RawMessage(`"products"`)))
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull(json.RawMessage(`null`)))
	assert.True(t, IsNull(json.RawMessage(" null\n")))
	assert.False(t, IsNull(json.RawMessage(`[]`)))
	assert.False(t, IsNull(json.RawMessage(`0`)))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		raw     string
		wantErr bool
	}{
		{"collection accepts array", Products, `[{"id":"p1"}]`, false},
		{"collection accepts null", Products, `null`, false},
		{"collection rejects object", Products, `{"id":"p1"}`, true},
		{"collection rejects garbage", Orders, `{`, true},
		{"scalar kind accepts object", ThemeConfig, `{"primaryColor":"#22c55e"}`, false},
		{"scalar kind accepts string", Logo, `"data:image/png;base64,AAAA"`, false},
		{"scalar kind rejects garbage", WebsiteConfig, `{"websiteName":`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.kind, json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKnown(t *testing.T) {
	for _, k := range []Kind{Products, ThemeConfig, WebsiteConfig, Orders, Logo,
		DeliveryConfig, ChatMessages, LandingPages, Categories, Subcategories,
		ChildCategories, Brands, Tags, Users, Roles} {
		assert.True(t, Known(k), "expected %s to be known", k)
	}
	assert.False(t, Known(Kind("shipping_labels")))
}
