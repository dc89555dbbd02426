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
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/tenantsync/datasync"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Fetch one document and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			tenantID, _ := c.Flags().GetString("tenant")
			return runGet(args[0], tenantID)
		},
	}
	cmd.Flags().String("tenant", "", "tenant to read from (empty means the public scope)")
	rootCmd.AddCommand(cmd)
}

func runGet(key, tenantID string) error {
	// Logs go to stderr so stdout stays clean JSON for piping.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	s, err := newSyncContext(logger, datasync.WithoutPush())
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	data, err := s.Get(ctx, key, tenantID)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", key, err)
	}
	if data == nil {
		fmt.Println("null")
		return nil
	}
	fmt.Println(string(data))
	return nil
}
