/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mpmcore/mpmcore/mib"
)

var miblistTable bool

func init() {
	RootCmd.AddCommand(miblistCmd)
	miblistCmd.Flags().BoolVar(&miblistTable, "table", false, "print as a flattened table instead of an indented tree")
}

var miblistCmd = &cobra.Command{
	Use:   "miblist <compiled-mib-file>",
	Short: "Print a compiled MIB tree",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ConfigureVerbosity()

		root, err := mib.ReadFromFile(args[0])
		if err != nil {
			log.Fatalf("reading %s: %v", args[0], err)
		}

		if miblistTable {
			root.PrintTable(os.Stdout)
		} else {
			root.Print(os.Stdout, 0)
		}
	},
}
