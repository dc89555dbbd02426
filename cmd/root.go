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
	"os"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/tenantsync/config"
	"github.com/cardinalhq/tenantsync/datasync"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tenantsync",
	Short: "Tenant-scoped storefront data synchronization",
	Long: `Keep storefront documents in sync between the remote tenant store and a
local two-tier cache, with debounced coalesced writes and live push-channel
invalidation.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// newSyncContext loads configuration and builds a sync context with the
// given logger. Callers own the returned context and must Close it.
func newSyncContext(logger *slog.Logger, opts ...datasync.Option) (*datasync.Context, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	opts = append([]datasync.Option{datasync.WithLogger(logger)}, opts...)
	return datasync.New(cfg, opts...)
}
