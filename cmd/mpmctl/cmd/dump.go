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
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mpmcore/mpmcore/protocol/mpm"
)

var dumpFile string

func init() {
	RootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().StringVarP(&dumpFile, "file", "f", "", "file containing a raw MPM frame (default: stdin)")
}

func readFrame() ([]byte, error) {
	if dumpFile == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(dumpFile)
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Parse and print one raw MPM frame",
	Run: func(cmd *cobra.Command, args []string) {
		ConfigureVerbosity()

		raw, err := readFrame()
		if err != nil {
			log.Fatalf("reading frame: %v", err)
		}

		msg, err := mpm.Parse(raw)
		if err != nil {
			log.Fatalf("parsing frame: %v", err)
		}

		if msg.Invalid {
			color.New(color.FgRed, color.Bold).Println("frame marked invalid")
		}
		fmt.Print(msg.Dump())
	},
}
