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
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/cardinalhq/tenantsync/config"
	"github.com/cardinalhq/tenantsync/internal/gateway"
	"github.com/cardinalhq/tenantsync/internal/pushsock"
	"github.com/cardinalhq/tenantsync/internal/refresh"
)

type persistCall struct {
	tenantID string
	key      string
	data     string
}

type fakeGateway struct {
	mu            sync.Mutex
	docs          map[string]json.RawMessage
	fetchErr      error
	fetchCalls    int
	persisted     []persistCall
	bootstrap     *gateway.BootstrapPayload
	bootstrapErr  error
	bootstrapGate chan struct{}
	secondary     *gateway.SecondaryPayload
	secondaryErr  error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{docs: map[string]json.RawMessage{}}
}

func (f *fakeGateway) setDoc(tenantID, key string, data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[tenantID+"|"+key] = json.RawMessage(data)
}

func (f *fakeGateway) FetchDocument(_ context.Context, tenantID, key string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.docs[tenantID+"|"+key], nil
}

func (f *fakeGateway) PersistDocument(_ context.Context, tenantID, key string, data json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[tenantID+"|"+key] = data
	f.persisted = append(f.persisted, persistCall{tenantID: tenantID, key: key, data: string(data)})
	return nil
}

func (f *fakeGateway) FetchBootstrap(_ context.Context, tenantID string) (*gateway.BootstrapPayload, error) {
	f.mu.Lock()
	gate := f.bootstrapGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bootstrapErr != nil {
		return nil, f.bootstrapErr
	}
	if f.bootstrap == nil {
		return &gateway.BootstrapPayload{}, nil
	}
	cp := *f.bootstrap
	return &cp, nil
}

func (f *fakeGateway) FetchSecondary(_ context.Context, tenantID string) (*gateway.SecondaryPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.secondaryErr != nil {
		return nil, f.secondaryErr
	}
	if f.secondary == nil {
		return &gateway.SecondaryPayload{}, nil
	}
	cp := *f.secondary
	return &cp, nil
}

func (f *fakeGateway) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

func (f *fakeGateway) persistedCalls() []persistCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]persistCall(nil), f.persisted...)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Cache.MirrorPath = ""
	cfg.Save.DebounceMillis = 20
	cfg.Push.Enabled = false
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestContext(t *testing.T, gw Gateway, opts ...Option) *Context {
	t.Helper()
	opts = append([]Option{WithGateway(gw), WithLogger(discardLogger())}, opts...)
	s, err := New(testConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func watchRefresh(s *Context) <-chan refresh.Event {
	events := make(chan refresh.Event, 16)
	s.OnRefresh(func(ev refresh.Event) { events <- ev })
	return events
}

func waitEvent(t *testing.T, events <-chan refresh.Event) refresh.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for refresh event")
		return refresh.Event{}
	}
}

func TestGetFetchesOnceThenServesFromCache(t *testing.T) {
	gw := newFakeGateway()
	gw.setDoc("shop1", "products", `[{"id":1}]`)
	s := newTestContext(t, gw)

	data, err := s.Get(context.Background(), "products", "shop1")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1}]`, string(data))

	data, err = s.Get(context.Background(), "products", "shop1")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1}]`, string(data))
	assert.Equal(t, 1, gw.calls())
}

func TestGetServesSeedOnFetchFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.fetchErr = assert.AnError
	s := newTestContext(t, gw)

	data, err := s.Get(context.Background(), "products", "shop1")
	require.NoError(t, err)

	var products []map[string]any
	require.NoError(t, json.Unmarshal(data, &products))
	assert.NotEmpty(t, products)
}

func TestGetSeedsAbsentDocumentWithoutCaching(t *testing.T) {
	gw := newFakeGateway()
	s := newTestContext(t, gw)

	data, err := s.Get(context.Background(), "theme_config", "shop1")
	require.NoError(t, err)
	assert.Contains(t, string(data), "primaryColor")

	// Seeds must not stick in the cache: the next read goes back to the
	// remote so a document created in the meantime is picked up.
	gw.setDoc("shop1", "theme_config", `{"primaryColor":"#000000"}`)
	data, err = s.Get(context.Background(), "theme_config", "shop1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"primaryColor":"#000000"}`, string(data))
	assert.Equal(t, 2, gw.calls())
}

func TestGetIsolatesTenants(t *testing.T) {
	gw := newFakeGateway()
	gw.setDoc("shop1", "brands", `[{"name":"Acme"}]`)
	gw.setDoc("shop2", "brands", `[{"name":"Globex"}]`)
	s := newTestContext(t, gw)

	a, err := s.Get(context.Background(), "brands", "shop1")
	require.NoError(t, err)
	b, err := s.Get(context.Background(), "brands", "shop2")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"Acme"}]`, string(a))
	assert.JSONEq(t, `[{"name":"Globex"}]`, string(b))
}

func TestSaveDebouncesAndCommits(t *testing.T) {
	gw := newFakeGateway()
	s := newTestContext(t, gw)
	events := watchRefresh(s)

	s.Save(context.Background(), "website_config", "shop1", json.RawMessage(`{"v":1}`))
	s.Save(context.Background(), "website_config", "shop1", json.RawMessage(`{"v":2}`))
	done := s.Save(context.Background(), "website_config", "shop1", json.RawMessage(`{"v":3}`))
	require.NoError(t, <-done)

	calls := gw.persistedCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "shop1", calls[0].tenantID)
	assert.JSONEq(t, `{"v":3}`, calls[0].data)

	ev := waitEvent(t, events)
	assert.Equal(t, "website_config", ev.Key)
	assert.False(t, ev.FromSocket)

	// The committed value is now in the cache, no refetch.
	data, err := s.Get(context.Background(), "website_config", "shop1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":3}`, string(data))
	assert.Equal(t, 0, gw.calls())
}

func TestSaveImmediateCommitsSynchronously(t *testing.T) {
	gw := newFakeGateway()
	s := newTestContext(t, gw)

	err := s.SaveImmediate(context.Background(), "theme_config", "shop1", json.RawMessage(`{"live":true}`))
	require.NoError(t, err)
	calls := gw.persistedCalls()
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"live":true}`, calls[0].data)
}

func TestPushEventInvalidatesAndGuardsEcho(t *testing.T) {
	gw := newFakeGateway()
	gw.setDoc("shop1", "products", `[{"id":1}]`)
	s := newTestContext(t, gw)
	events := watchRefresh(s)

	_, err := s.Get(context.Background(), "products", "shop1")
	require.NoError(t, err)

	s.HandlePushEvent(pushsock.Event{
		Type:     pushsock.EventDataUpdate,
		TenantID: "shop1",
		Key:      "products",
	})

	ev := waitEvent(t, events)
	assert.Equal(t, "products", ev.Key)
	assert.True(t, ev.FromSocket)

	// A consumer reacting to the socket update by persisting must not echo
	// the change back to the server.
	done := s.Save(context.Background(), "products", "shop1", json.RawMessage(`[{"id":1}]`))
	require.NoError(t, <-done)
	assert.Empty(t, gw.persistedCalls())

	// The guard was consumed, so a genuine user edit goes through.
	err = s.SaveImmediate(context.Background(), "products", "shop1", json.RawMessage(`[{"id":2}]`))
	require.NoError(t, err)
	require.Len(t, gw.persistedCalls(), 1)
}

func TestColdStartServesMirrorThenRevalidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.db")
	db, err := bolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	gw := newFakeGateway()
	first := newTestContext(t, gw, WithBoltDB(db))
	require.NoError(t, first.SaveImmediate(context.Background(), "products", "shop1", json.RawMessage(`[{"id":1}]`)))
	require.NoError(t, first.Close())

	// New process over the same mirror, with a newer remote copy.
	gw2 := newFakeGateway()
	gw2.setDoc("shop1", "products", `[{"id":1},{"id":2}]`)
	second := newTestContext(t, gw2, WithBoltDB(db))
	events := watchRefresh(second)

	data, err := second.Get(context.Background(), "products", "shop1")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1}]`, string(data), "mirror copy serves immediately")

	ev := waitEvent(t, events)
	assert.Equal(t, "products", ev.Key)

	data, err = second.Get(context.Background(), "products", "shop1")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1},{"id":2}]`, string(data))
}

func TestBootstrapAggregateSeedsEmptyFields(t *testing.T) {
	gw := newFakeGateway()
	gw.bootstrap = &gateway.BootstrapPayload{
		Products: json.RawMessage(`[{"id":7}]`),
	}
	s := newTestContext(t, gw)

	payload, err := s.Bootstrap(context.Background(), "shop1")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":7}]`, string(payload.Products))
	assert.Contains(t, string(payload.ThemeConfig), "primaryColor")
	assert.NotNil(t, payload.WebsiteConfig)

	// Fetched fields are cached; seeded fields are not.
	data, err := s.Get(context.Background(), "products", "shop1")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":7}]`, string(data))
	assert.Equal(t, 0, gw.calls())
}

func TestBootstrapCachedFastPathRevalidates(t *testing.T) {
	gw := newFakeGateway()
	gw.bootstrap = &gateway.BootstrapPayload{
		Products: json.RawMessage(`[{"id":1},{"id":2}]`),
	}
	gw.bootstrapGate = make(chan struct{})
	s := newTestContext(t, gw)
	require.NoError(t, s.SaveImmediate(context.Background(), "products", "shop1", json.RawMessage(`[{"id":1}]`)))
	events := watchRefresh(s)

	// The aggregate fetch is gated shut, so a return here proves the
	// cached fast path never touched the network.
	payload, err := s.Bootstrap(context.Background(), "shop1")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1}]`, string(payload.Products), "cached set returns without waiting")
	close(gw.bootstrapGate)

	ev := waitEvent(t, events)
	assert.Equal(t, "products", ev.Key)

	data, err := s.Get(context.Background(), "products", "shop1")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1},{"id":2}]`, string(data))
}

func TestBootstrapFallsBackToPerKeyFetches(t *testing.T) {
	gw := newFakeGateway()
	gw.bootstrapErr = assert.AnError
	gw.setDoc("shop1", "products", `[{"id":9}]`)
	s := newTestContext(t, gw)

	payload, err := s.Bootstrap(context.Background(), "shop1")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":9}]`, string(payload.Products))
	assert.Contains(t, string(payload.ThemeConfig), "primaryColor")
}

func TestSecondaryDataAggregateAndSeeds(t *testing.T) {
	gw := newFakeGateway()
	gw.secondary = &gateway.SecondaryPayload{
		Orders: json.RawMessage(`[{"id":"ord-1"}]`),
	}
	s := newTestContext(t, gw)

	payload, err := s.SecondaryData(context.Background(), "shop1")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"ord-1"}]`, string(payload.Orders))
	assert.Equal(t, "[]", string(payload.ChatMessages))

	var cats []map[string]any
	require.NoError(t, json.Unmarshal(payload.Categories, &cats))
	assert.NotEmpty(t, cats, "taxonomy defaults fill empty fields")
}

func TestSecondaryDataCachedFastPath(t *testing.T) {
	gw := newFakeGateway()
	gw.secondary = &gateway.SecondaryPayload{}
	s := newTestContext(t, gw)

	// First call populates the cache from the aggregate plus fallbacks.
	for _, key := range []string{
		"orders", "logo", "delivery_config", "chat_messages", "landing_pages",
		"categories", "subcategories", "child_categories", "brands", "tags",
	} {
		require.NoError(t, s.SaveImmediate(context.Background(), key, "shop1", json.RawMessage(`[]`)))
	}

	payload, err := s.SecondaryData(context.Background(), "shop1")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(payload.Orders))
	assert.Equal(t, "[]", string(payload.Brands))
}

func TestSaveDisabledResolvesWithoutPersisting(t *testing.T) {
	cfg := testConfig()
	cfg.Save.Disabled = true
	gw := newFakeGateway()
	s, err := New(cfg, WithGateway(gw), WithLogger(discardLogger()))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	done := s.Save(context.Background(), "products", "shop1", json.RawMessage(`[{"id":1}]`))
	require.NoError(t, <-done)
	assert.Empty(t, gw.persistedCalls())
}
