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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/tenantsync/datasync"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put <key> [file]",
		Short: "Store one document from a file or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(c *cobra.Command, args []string) error {
			tenantID, _ := c.Flags().GetString("tenant")
			file := ""
			if len(args) == 2 {
				file = args[1]
			}
			return runPut(args[0], tenantID, file)
		},
	}
	cmd.Flags().String("tenant", "", "tenant to write to (empty means the public scope)")
	rootCmd.AddCommand(cmd)
}

func runPut(key, tenantID, file string) error {
	var raw []byte
	var err error
	if file != "" {
		raw, err = os.ReadFile(file)
	} else {
		raw, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("document for %s is not valid JSON", key)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	s, err := newSyncContext(logger, datasync.WithoutPush())
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := s.SaveImmediate(ctx, key, tenantID, raw); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	logger.Info("Document stored", slog.String("key", key), slog.String("tenantID", tenantID))
	return nil
}
