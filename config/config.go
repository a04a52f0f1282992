/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"stash.kopano.io/kwm/kwmsdp/sdptransform"
)

// Config defines a Server's configuration settings.
type Config struct {
	ListenAddr string

	WithMetrics       bool
	MetricsListenAddr string

	Logger     logrus.FieldLogger
	RequestLog bool

	Metrics prometheus.Registerer
	// MetricsGatherer is served on MetricsListenAddr when WithMetrics is set.
	MetricsGatherer prometheus.Gatherer

	// DefaultPolicy is used by all transforms which do not bring their own.
	DefaultPolicy *sdptransform.Policy
	VerifyOutput  bool

	RelayMaxRooms        int
	RelayRoomIdleTimeout time.Duration

	ICEInterfaces            []string
	ICENetworkTypes          []string
	ICEEphemeralUDPPortRange [2]uint16
	ICEIncludeLoopback       bool
}

// ParseUDPPortRange parses a port range in min:max form. A missing min
// defaults to 10000, a missing max to 65535.
func ParseUDPPortRange(s string) ([2]uint16, error) {
	portRange := [2]uint16{10000, ^uint16(0)}
	minMax := strings.SplitN(s, ":", 2)
	if minMax[0] != "" {
		minPort, err := strconv.ParseUint(minMax[0], 10, 16)
		if err != nil {
			return portRange, fmt.Errorf("invalid min port value: %w", err)
		}
		portRange[0] = uint16(minPort)
	}
	if len(minMax) > 1 && minMax[1] != "" {
		maxPort, err := strconv.ParseUint(minMax[1], 10, 16)
		if err != nil {
			return portRange, fmt.Errorf("invalid max port value: %w", err)
		}
		if maxPort <= uint64(portRange[0]) {
			return portRange, fmt.Errorf("max port value must be higher than min port %d", portRange[0])
		}
		portRange[1] = uint16(maxPort)
	}
	return portRange, nil
}
