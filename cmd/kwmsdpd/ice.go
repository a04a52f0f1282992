/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	cfg "stash.kopano.io/kwm/kwmsdp/config"
)

func addICEFlags(cmd *cobra.Command) {
	cmd.Flags().StringArray("use-ice-if", nil, "Interface to use when gathering ICE candidates, all interfaces will be used if not set")
	cmd.Flags().StringArray("use-ice-network-type", nil, "ICE network type supported when gathering candidates, if not set all types (udp4, udp6, tcp4, tcp6) are enabled")
	cmd.Flags().String("use-ice-udp-port-range", "", "Range of ephemeral ports that ICE UDP connections can allocate from in format min:max, if not set its not limited")
	cmd.Flags().Bool("use-ice-loopback", false, "Include loopback candidates when gathering ICE candidates")
}

// applyICEFlags sets the ICE settings of config from file and flags, flags
// take precedence.
func applyICEFlags(cmd *cobra.Command, file *cfg.File, config *cfg.Config, logger logrus.FieldLogger) error {
	flags := cmd.Flags()

	portRangeString := ""
	if file != nil {
		config.ICEInterfaces = file.ICE.Interfaces
		config.ICENetworkTypes = file.ICE.NetworkTypes
		config.ICEIncludeLoopback = file.ICE.IncludeLoopback
		portRangeString = file.ICE.UDPPortRange
	}

	if flags.Changed("use-ice-if") {
		config.ICEInterfaces, _ = flags.GetStringArray("use-ice-if")
	}
	if len(config.ICEInterfaces) > 0 {
		logger.WithField("interfaces", config.ICEInterfaces).Infoln("limiting ICE interfaces")
	}
	if flags.Changed("use-ice-network-type") {
		config.ICENetworkTypes, _ = flags.GetStringArray("use-ice-network-type")
	}
	if len(config.ICENetworkTypes) > 0 {
		logger.WithField("types", config.ICENetworkTypes).Infoln("limiting ICE network types")
	}
	if flags.Changed("use-ice-loopback") {
		config.ICEIncludeLoopback, _ = flags.GetBool("use-ice-loopback")
	}
	if flags.Changed("use-ice-udp-port-range") {
		portRangeString, _ = flags.GetString("use-ice-udp-port-range")
	}
	if portRangeString != "" {
		portRange, err := cfg.ParseUDPPortRange(portRangeString)
		if err != nil {
			return fmt.Errorf("invalid use-ice-udp-port-range: %w", err)
		}
		config.ICEEphemeralUDPPortRange = portRange
		logger.WithFields(logrus.Fields{
			"min": config.ICEEphemeralUDPPortRange[0],
			"max": config.ICEEphemeralUDPPortRange[1],
		}).Infoln("limiting ICE port range")
	}

	return nil
}
