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

// Package seed holds the built-in defaults served when a tenant has no data
// yet and the remote store is unreachable. These are last-resort fallbacks:
// the aggregators try cache first, then the gateway, and only then reach
// here, so a brand-new tenant still renders a populated page.
package seed

import (
	"encoding/json"

	"github.com/cardinalhq/tenantsync/internal/kinds"
)

var defaults = map[kinds.Kind]json.RawMessage{
	kinds.Products: json.RawMessage(`[
		{"id":"seed-1","name":"Magnetic Phone Holder","price":450,"currency":"BDT","status":"Publish"},
		{"id":"seed-2","name":"Airplane Launcher Toy","price":690,"currency":"BDT","status":"Publish"},
		{"id":"seed-3","name":"USB-C Fast Charger","price":890,"currency":"BDT","status":"Publish"}
	]`),
	kinds.ThemeConfig: json.RawMessage(`{
		"primaryColor":"#22c55e",
		"secondaryColor":"#ec4899",
		"tertiaryColor":"#9333ea",
		"darkMode":false
	}`),
	kinds.WebsiteConfig: json.RawMessage(`{
		"websiteName":"My Store",
		"shortDescription":"Get the best for less",
		"showMobileHeaderCategory":true,
		"showNewsSlider":true,
		"orderLanguage":"English",
		"productCardStyle":"style1",
		"addresses":[],
		"emails":[],
		"phones":[],
		"socialLinks":[],
		"carouselItems":[]
	}`),
	kinds.DeliveryConfig: json.RawMessage(`[
		{"type":"Regular","isEnabled":true,"insideCharge":60,"outsideCharge":120,"freeThreshold":0,"note":"Standard delivery time 2-3 days"},
		{"type":"Express","isEnabled":true,"insideCharge":100,"outsideCharge":200,"freeThreshold":5000,"note":"Next day delivery available"},
		{"type":"Free","isEnabled":false,"insideCharge":0,"outsideCharge":0,"freeThreshold":0,"note":"Promotional free shipping"}
	]`),
	kinds.Roles: json.RawMessage(`[
		{"id":"manager","name":"Store Manager","description":"Can manage products and orders","permissions":["view_dashboard","manage_orders","view_orders","manage_products","view_products"]},
		{"id":"support","name":"Support Agent","description":"Can view orders and dashboard","permissions":["view_dashboard","view_orders"]}
	]`),
	kinds.Categories: json.RawMessage(`[
		{"id":"cat-gadgets","name":"Gadgets","serial":1,"status":"Publish"},
		{"id":"cat-gifts","name":"Gifts","serial":2,"status":"Publish"}
	]`),
	kinds.Subcategories: json.RawMessage(`[
		{"id":"sub-accessories","categoryId":"cat-gadgets","name":"Accessories","serial":1,"status":"Publish"},
		{"id":"sub-toys","categoryId":"cat-gifts","name":"Toys","serial":2,"status":"Publish"}
	]`),
	kinds.ChildCategories: json.RawMessage(`[
		{"id":"child-chargers","subCategoryId":"sub-accessories","name":"Chargers","serial":1,"status":"Publish"},
		{"id":"child-holders","subCategoryId":"sub-accessories","name":"Holders","serial":2,"status":"Publish"}
	]`),
	kinds.Brands: json.RawMessage(`[
		{"id":"brand-generic","name":"Generic","serial":1,"status":"Publish"},
		{"id":"brand-oem","name":"OEM","serial":2,"status":"Publish"}
	]`),
	kinds.Tags: json.RawMessage(`[
		{"id":"tag-new","name":"New Arrival","serial":1,"status":"Publish"},
		{"id":"tag-hot","name":"Hot Deal","serial":2,"status":"Publish"}
	]`),
	kinds.Orders:       json.RawMessage(`[]`),
	kinds.ChatMessages: json.RawMessage(`[]`),
	kinds.LandingPages: json.RawMessage(`[]`),
	kinds.Users:        json.RawMessage(`[]`),
	kinds.Logo:         json.RawMessage(`null`),
}

// Default returns the built-in payload for k, if one exists.
func Default(k kinds.Kind) (json.RawMessage, bool) {
	raw, ok := defaults[k]
	return raw, ok
}
