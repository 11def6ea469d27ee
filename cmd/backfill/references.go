// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bcem/watchfeed/internal/reference"
)

func referencesCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "references",
		Short: "Load a YAML reference table into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			table, err := reference.Load(file)
			if err != nil {
				return err
			}

			_, pool, db, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := db.ImportReferences(ctx, table.Rows())
			if err != nil {
				return err
			}
			fmt.Printf("Loaded %d reference rows from %s\n", n, file)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML reference file (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
