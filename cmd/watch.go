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

package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/tenantsync/internal/refresh"
)

func init() {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow live document changes for a tenant",
		RunE: func(c *cobra.Command, _ []string) error {
			tenantID, _ := c.Flags().GetString("tenant")
			return runWatch(tenantID)
		},
	}
	cmd.Flags().String("tenant", "", "tenant to watch (empty means the public scope)")
	rootCmd.AddCommand(cmd)
}

func runWatch(tenantID string) error {
	ctx, cancel := setupLogging("tenantsync-watch")
	defer cancel()

	s, err := newSyncContext(slog.Default())
	if err != nil {
		return err
	}

	unsub := s.OnRefresh(func(ev refresh.Event) {
		slog.Info("Document changed",
			slog.String("key", ev.Key),
			slog.String("tenantID", ev.TenantID),
			slog.Bool("fromSocket", ev.FromSocket))
	})
	defer unsub()

	s.JoinTenant(tenantID)

	// Warm both tiers so subsequent refreshes report deltas from live
	// state rather than from a cold cache.
	if _, err := s.Bootstrap(ctx, tenantID); err != nil {
		slog.Warn("Bootstrap warmup failed", slog.Any("error", err))
	}
	if _, err := s.SecondaryData(ctx, tenantID); err != nil {
		slog.Warn("Secondary warmup failed", slog.Any("error", err))
	}

	slog.Info("Watching for changes", slog.String("tenantID", tenantID))
	<-ctx.Done()

	slog.Info("Shutting down")
	return s.Close()
}
