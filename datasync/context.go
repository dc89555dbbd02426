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

// Package datasync wires the cache tiers, request deduplicator, write
// coalescer, gateway, push channel, and refresh bus into one explicitly
// constructed sync context. There is no ambient module state: create a
// Context, pass it to consumers, Close it when the session ends. Multiple
// isolated instances can coexist, which is what the tests do.
package datasync

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	bolt "go.etcd.io/bbolt"

	"github.com/cardinalhq/tenantsync/config"
	"github.com/cardinalhq/tenantsync/internal/dedup"
	"github.com/cardinalhq/tenantsync/internal/gateway"
	"github.com/cardinalhq/tenantsync/internal/kvcache"
	"github.com/cardinalhq/tenantsync/internal/pushsock"
	"github.com/cardinalhq/tenantsync/internal/refresh"
	"github.com/cardinalhq/tenantsync/internal/savequeue"
)

// Gateway is the remote document store contract. The HTTP implementation
// lives in internal/gateway; tests substitute fakes.
type Gateway interface {
	FetchDocument(ctx context.Context, tenantID, key string) (json.RawMessage, error)
	PersistDocument(ctx context.Context, tenantID, key string, data json.RawMessage) error
	FetchBootstrap(ctx context.Context, tenantID string) (*gateway.BootstrapPayload, error)
	FetchSecondary(ctx context.Context, tenantID string) (*gateway.SecondaryPayload, error)
}

// Context is one isolated sync session over one remote store.
type Context struct {
	logger  *slog.Logger
	cache   *kvcache.Cache
	fetches dedup.Deduper
	queue   *savequeue.Queue
	gw      Gateway
	bus     *refresh.Bus
	guard   *pushsock.Guard
	push    *pushsock.Client

	db     *bolt.DB
	ownsDB bool
}

type options struct {
	gw          Gateway
	db          *bolt.DB
	dbInjected  bool
	logger      *slog.Logger
	disablePush bool
}

// Option customizes New.
type Option func(*options)

// WithGateway substitutes the remote store implementation.
func WithGateway(gw Gateway) Option {
	return func(o *options) { o.gw = gw }
}

// WithBoltDB supplies an already-open mirror database. The caller keeps
// ownership; Close will not close it.
func WithBoltDB(db *bolt.DB) Option {
	return func(o *options) { o.db = db; o.dbInjected = true }
}

// WithLogger sets the context's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithoutPush skips the push channel even when configuration enables it.
func WithoutPush() Option {
	return func(o *options) { o.disablePush = true }
}

// New builds a Context from cfg. A mirror that cannot be opened degrades to
// memory-only caching rather than failing construction; everything else is
// wired or the error surfaces here.
func New(cfg *config.Config, opts ...Option) (*Context, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Context{logger: logger}

	if o.dbInjected {
		s.db = o.db
	} else if cfg.Cache.MirrorPath != "" {
		db, err := bolt.Open(cfg.Cache.MirrorPath, 0o600, nil)
		if err != nil {
			// The mirror is a convenience tier; a locked or unwritable
			// file must not keep the layer from starting.
			logger.Warn("Cache mirror unavailable, running memory-only",
				"path", cfg.Cache.MirrorPath, "error", err)
		} else {
			s.db = db
			s.ownsDB = true
		}
	}

	cache, err := kvcache.New(s.db, kvcache.Options{
		MemoryTTL: cfg.Cache.MemoryTTL,
		MirrorTTL: cfg.Cache.MirrorTTL,
		KeyPrefix: cfg.Cache.KeyPrefix,
	})
	if err != nil {
		if s.ownsDB {
			_ = s.db.Close()
		}
		return nil, err
	}
	s.cache = cache

	s.bus = refresh.NewBus(logger)
	s.guard = pushsock.NewGuard(0)

	s.gw = o.gw
	if s.gw == nil {
		s.gw = gateway.New(cfg.Gateway.BaseURL,
			gateway.WithAuth(gateway.StaticToken(cfg.Gateway.AuthToken)))
	}

	s.queue = savequeue.New(s.commitDocument, savequeue.Options{
		Window:   cfg.Save.DebounceWindow(),
		Disabled: cfg.Save.Disabled,
		Lookup: func(ctx context.Context, key, tenantID string) (json.RawMessage, bool) {
			data, _, ok := s.cache.Get(ctx, key, tenantID)
			return data, ok
		},
		Logger: logger,
	})

	if cfg.Push.Enabled && cfg.Push.URL != "" && !o.disablePush {
		s.push = pushsock.NewClient(cfg.Push.URL, s.HandlePushEvent, logger)
		s.push.Start()
	}

	return s, nil
}

// OnRefresh subscribes to change notifications. The returned function
// unsubscribes.
func (s *Context) OnRefresh(fn refresh.Listener) func() {
	return s.bus.Subscribe(fn)
}

// JoinTenant joins the tenant's push channel, when the push client is
// configured.
func (s *Context) JoinTenant(tenantID string) {
	if s.push != nil {
		s.push.JoinTenant(tenantID)
	}
}

// LeaveTenant leaves the current push channel.
func (s *Context) LeaveTenant() {
	if s.push != nil {
		s.push.LeaveTenant()
	}
}

// Close flushes pending saves and releases every owned resource.
func (s *Context) Close() error {
	var errs *multierror.Error
	if s.push != nil {
		errs = multierror.Append(errs, s.push.Close())
	}
	errs = multierror.Append(errs, s.queue.Close())
	errs = multierror.Append(errs, s.cache.Close())
	s.guard.Close()
	if s.ownsDB && s.db != nil {
		errs = multierror.Append(errs, s.db.Close())
	}
	return errs.ErrorOrNil()
}
