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

package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates configuration for the sync layer. Each section is owned
// by the package it configures.
type Config struct {
	Gateway GatewayConfig `mapstructure:"gateway"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Save    SaveConfig    `mapstructure:"save"`
	Push    PushConfig    `mapstructure:"push"`
}

// GatewayConfig addresses the remote document store.
type GatewayConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	AuthToken string        `mapstructure:"auth_token"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// CacheConfig tunes the two cache tiers.
type CacheConfig struct {
	MemoryTTL  time.Duration `mapstructure:"memory_ttl"`
	MirrorTTL  time.Duration `mapstructure:"mirror_ttl"`
	MirrorPath string        `mapstructure:"mirror_path"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
}

// SaveConfig tunes the write coalescer.
type SaveConfig struct {
	// DebounceMillis is the debounce window for coalesced saves.
	DebounceMillis int `mapstructure:"debounce_millis"`
	// Disabled turns every remote save into a resolved no-op, for
	// local-only/demo operation.
	Disabled bool `mapstructure:"disabled"`
}

// PushConfig addresses the real-time invalidation channel.
type PushConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaseURL: "http://localhost:4000",
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			MemoryTTL:  10 * time.Minute,
			MirrorTTL:  24 * time.Hour,
			MirrorPath: "tenantsync.db",
			KeyPrefix:  "tenantsync_",
		},
		Save: SaveConfig{
			DebounceMillis: 1200,
		},
		Push: PushConfig{
			Enabled: true,
		},
	}
}

// Load reads configuration from a config file and environment variables.
// Environment variables use the prefix "TENANTSYNC" and the dot character in
// keys is replaced by an underscore. For example, "save.debounce_millis"
// becomes "TENANTSYNC_SAVE_DEBOUNCE_MILLIS".
func Load() (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("tenantsync")
	v.AddConfigPath(".")
	v.SetEnvPrefix("TENANTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DebounceWindow converts the configured window to a duration.
func (c SaveConfig) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceMillis) * time.Millisecond
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		keyParts := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Addr().Interface(), keyParts...)
			continue
		}
		_ = v.BindEnv(strings.Join(keyParts, "."))
	}
}
