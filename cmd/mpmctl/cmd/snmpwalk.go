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
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mpmcore/mpmcore/snmp"
	"github.com/mpmcore/mpmcore/snmp/transport"
)

var (
	walkTarget    string
	walkCommunity string
	walkRootOID   string
	walkVersion   int
	walkTimeout   time.Duration
	walkRetries   int
)

func init() {
	RootCmd.AddCommand(snmpwalkCmd)
	snmpwalkCmd.Flags().StringVarP(&walkTarget, "target", "t", "", "agent address, host:port (required)")
	snmpwalkCmd.Flags().StringVarP(&walkCommunity, "community", "c", "public", "SNMP community string")
	snmpwalkCmd.Flags().StringVarP(&walkRootOID, "oid", "o", "1.3.6.1.2.1", "subtree root OID to walk")
	snmpwalkCmd.Flags().IntVar(&walkVersion, "version", snmp.VersionV2c, "SNMP version: 0 (v1) or 1 (v2c)")
	snmpwalkCmd.Flags().DurationVar(&walkTimeout, "timeout", 2*time.Second, "per-request timeout")
	snmpwalkCmd.Flags().IntVar(&walkRetries, "retries", 2, "attempts per request, including the first")
	snmpwalkCmd.MarkFlagRequired("target")
}

var snmpwalkCmd = &cobra.Command{
	Use:   "snmpwalk",
	Short: "Walk an SNMP agent's MIB subtree with successive GetNext requests",
	Run: func(cmd *cobra.Command, args []string) {
		ConfigureVerbosity()

		root, err := snmp.ParseOID(walkRootOID)
		if err != nil {
			log.Fatalf("invalid root OID: %v", err)
		}

		tport, err := transport.Dial(walkTarget)
		if err != nil {
			log.Fatalf("dialing %s: %v", walkTarget, err)
		}
		defer tport.Close()

		current := root
		for {
			request := &snmp.PDU{
				Version:   walkVersion,
				Community: walkCommunity,
				Command:   snmp.CmdGetNextRequest,
				Variables: []snmp.Variable{{OID: current, Type: snmp.TypeNull}},
			}

			response, err := tport.DoRequest(request, walkTimeout, walkRetries)
			if err != nil {
				log.Fatalf("request failed: %v", err)
			}
			if len(response.Variables) == 0 {
				break
			}

			v := response.Variables[0]
			if !v.OID.HasPrefix(root) {
				break
			}
			fmt.Printf("%s = %s\n", v.OID, formatVariable(v))
			current = v.OID
		}
	},
}

// formatVariable renders a variable binding's value the way its BER type
// dictates, rather than dumping raw bytes for non-string types.
func formatVariable(v snmp.Variable) string {
	switch v.Type {
	case snmp.TypeInteger:
		n, err := v.AsInt()
		if err != nil {
			return fmt.Sprintf("<bad integer: %v>", err)
		}
		return fmt.Sprintf("%d", n)
	case snmp.TypeCounter32, snmp.TypeGauge32, snmp.TypeTimeTicks, snmp.TypeUInteger32:
		n, err := v.AsUint()
		if err != nil {
			return fmt.Sprintf("<bad unsigned: %v>", err)
		}
		return fmt.Sprintf("%d", n)
	case snmp.TypeCounter64:
		n, err := v.AsUint64()
		if err != nil {
			return fmt.Sprintf("<bad counter64: %v>", err)
		}
		return fmt.Sprintf("%d", n)
	case snmp.TypeObjectID:
		oid, err := v.AsObjectID()
		if err != nil {
			return fmt.Sprintf("<bad OID: %v>", err)
		}
		return oid.String()
	case snmp.TypeIPAddress:
		ip, err := v.AsIPAddress()
		if err != nil {
			return fmt.Sprintf("<bad IP: %v>", err)
		}
		return ip.String()
	case snmp.TypeNull:
		return "<null>"
	default:
		return v.AsString()
	}
}
