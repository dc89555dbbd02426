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

	"github.com/cardinalhq/tenantsync/internal/gateway"
	"github.com/cardinalhq/tenantsync/internal/kinds"
	"github.com/cardinalhq/tenantsync/internal/refresh"
	"github.com/cardinalhq/tenantsync/internal/seed"
)

// secondaryKinds lists the deferred bundle in wire order.
var secondaryKinds = []kinds.Kind{
	kinds.Orders, kinds.Logo, kinds.DeliveryConfig, kinds.ChatMessages,
	kinds.LandingPages, kinds.Categories, kinds.Subcategories,
	kinds.ChildCategories, kinds.Brands, kinds.Tags,
}

func secondaryField(p *gateway.SecondaryPayload, k kinds.Kind) *json.RawMessage {
	switch k {
	case kinds.Orders:
		return &p.Orders
	case kinds.Logo:
		return &p.Logo
	case kinds.DeliveryConfig:
		return &p.DeliveryConfig
	case kinds.ChatMessages:
		return &p.ChatMessages
	case kinds.LandingPages:
		return &p.LandingPages
	case kinds.Categories:
		return &p.Categories
	case kinds.Subcategories:
		return &p.Subcategories
	case kinds.ChildCategories:
		return &p.ChildCategories
	case kinds.Brands:
		return &p.Brands
	case kinds.Tags:
		return &p.Tags
	default:
		return nil
	}
}

// Bootstrap returns the first-paint bundle. When a non-empty product cache
// exists the cached triple returns immediately and a background revalidation
// reconciles via the refresh bus; otherwise one aggregate call populates the
// cache, degrading to per-key fetches and finally to built-in seeds.
func (s *Context) Bootstrap(ctx context.Context, tenantID string) (*gateway.BootstrapPayload, error) {
	if cached, _, ok := s.cache.Get(ctx, string(kinds.Products), tenantID); ok && kinds.IsNonEmptyCollection(cached) {
		snap := &gateway.BootstrapPayload{
			Products:      cached,
			ThemeConfig:   s.cachedOrSeed(ctx, kinds.ThemeConfig, tenantID),
			WebsiteConfig: s.cachedOrSeed(ctx, kinds.WebsiteConfig, tenantID),
		}
		go s.revalidateBootstrap(tenantID, cached)
		return snap, nil
	}

	payload, err := s.gw.FetchBootstrap(ctx, tenantID)
	if err != nil {
		s.logger.Warn("Bootstrap aggregate failed, falling back to per-key fetches",
			"tenantID", tenantID, "error", err)
		return s.bootstrapPerKey(ctx, tenantID), nil
	}

	s.storeBootstrap(ctx, tenantID, payload)
	if payload.Products == nil || kinds.IsNull(payload.Products) {
		payload.Products, _ = seed.Default(kinds.Products)
	}
	if kinds.IsNull(payload.ThemeConfig) {
		payload.ThemeConfig, _ = seed.Default(kinds.ThemeConfig)
	}
	if kinds.IsNull(payload.WebsiteConfig) {
		payload.WebsiteConfig, _ = seed.Default(kinds.WebsiteConfig)
	}
	return payload, nil
}

// SecondaryData returns the deferred bundle of nine collections plus the
// logo, with the same stale-while-revalidate shape as Bootstrap. Seed
// defaults substitute only when both remote and cache are empty, so a
// temporarily failing fetch never masks real tenant data.
func (s *Context) SecondaryData(ctx context.Context, tenantID string) (*gateway.SecondaryPayload, error) {
	if snap, ok := s.secondaryFromCache(ctx, tenantID); ok {
		go s.revalidateSecondary(tenantID, snap)
		return snap, nil
	}

	payload, err := s.gw.FetchSecondary(ctx, tenantID)
	if err != nil {
		s.logger.Warn("Secondary aggregate failed, falling back to per-key fetches",
			"tenantID", tenantID, "error", err)
		return s.secondaryPerKey(ctx, tenantID), nil
	}

	s.storeSecondary(ctx, tenantID, payload)
	for _, k := range secondaryKinds {
		field := secondaryField(payload, k)
		if !kinds.IsNull(*field) {
			continue
		}
		// Remote is empty: prefer whatever the cache still holds, then
		// the seed. An empty new tenant and a failed fetch end up
		// distinguishable because the cache outlives the failure.
		if cached, _, ok := s.cache.Get(ctx, string(k), tenantID); ok {
			*field = cached
		} else if def, ok := seed.Default(k); ok {
			*field = def
		}
	}
	return payload, nil
}

func (s *Context) cachedOrSeed(ctx context.Context, k kinds.Kind, tenantID string) json.RawMessage {
	if data, _, ok := s.cache.Get(ctx, string(k), tenantID); ok {
		return data
	}
	def, _ := seed.Default(k)
	return def
}

func (s *Context) bootstrapPerKey(ctx context.Context, tenantID string) *gateway.BootstrapPayload {
	payload := &gateway.BootstrapPayload{}
	for _, pair := range []struct {
		kind kinds.Kind
		dst  *json.RawMessage
	}{
		{kinds.Products, &payload.Products},
		{kinds.ThemeConfig, &payload.ThemeConfig},
		{kinds.WebsiteConfig, &payload.WebsiteConfig},
	} {
		data, err := s.Get(ctx, string(pair.kind), tenantID)
		if err != nil || data == nil {
			data, _ = seed.Default(pair.kind)
		}
		*pair.dst = data
	}
	return payload
}

func (s *Context) secondaryPerKey(ctx context.Context, tenantID string) *gateway.SecondaryPayload {
	payload := &gateway.SecondaryPayload{}
	for _, k := range secondaryKinds {
		data, err := s.Get(ctx, string(k), tenantID)
		if err != nil || data == nil {
			data, _ = seed.Default(k)
		}
		*secondaryField(payload, k) = data
	}
	return payload
}

func (s *Context) storeBootstrap(ctx context.Context, tenantID string, payload *gateway.BootstrapPayload) {
	for _, pair := range []struct {
		kind kinds.Kind
		data json.RawMessage
	}{
		{kinds.Products, payload.Products},
		{kinds.ThemeConfig, payload.ThemeConfig},
		{kinds.WebsiteConfig, payload.WebsiteConfig},
	} {
		s.storeFetched(ctx, pair.kind, tenantID, pair.data)
	}
}

func (s *Context) storeSecondary(ctx context.Context, tenantID string, payload *gateway.SecondaryPayload) {
	for _, k := range secondaryKinds {
		s.storeFetched(ctx, k, tenantID, *secondaryField(payload, k))
	}
}

func (s *Context) storeFetched(ctx context.Context, k kinds.Kind, tenantID string, data json.RawMessage) {
	if kinds.IsNull(data) {
		return
	}
	if err := kinds.Validate(k, data); err != nil {
		s.logger.Warn("Discarding malformed aggregate field", "key", string(k), "error", err)
		return
	}
	s.cache.Set(ctx, string(k), tenantID, data)
}

func (s *Context) revalidateBootstrap(tenantID string, prevProducts json.RawMessage) {
	ctx := context.Background()
	payload, err := s.gw.FetchBootstrap(ctx, tenantID)
	if err != nil {
		s.logger.Debug("Bootstrap revalidation failed", "tenantID", tenantID, "error", err)
		return
	}
	s.storeBootstrap(ctx, tenantID, payload)
	if payload.Products != nil && !bytes.Equal(prevProducts, payload.Products) {
		s.bus.Publish(refresh.Event{Key: string(kinds.Products), TenantID: tenantID})
	}
}

func (s *Context) revalidateSecondary(tenantID string, prev *gateway.SecondaryPayload) {
	ctx := context.Background()
	payload, err := s.gw.FetchSecondary(ctx, tenantID)
	if err != nil {
		s.logger.Debug("Secondary revalidation failed", "tenantID", tenantID, "error", err)
		return
	}
	s.storeSecondary(ctx, tenantID, payload)
	for _, k := range secondaryKinds {
		fresh := *secondaryField(payload, k)
		if kinds.IsNull(fresh) {
			continue
		}
		if !bytes.Equal(*secondaryField(prev, k), fresh) {
			s.bus.Publish(refresh.Event{Key: string(k), TenantID: tenantID})
		}
	}
}

// secondaryFromCache assembles the bundle when every piece is cached.
func (s *Context) secondaryFromCache(ctx context.Context, tenantID string) (*gateway.SecondaryPayload, bool) {
	payload := &gateway.SecondaryPayload{}
	for _, k := range secondaryKinds {
		data, _, ok := s.cache.Get(ctx, string(k), tenantID)
		if !ok {
			return nil, false
		}
		*secondaryField(payload, k) = data
	}
	return payload, true
}
