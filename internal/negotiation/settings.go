/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package negotiation

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	cfg "stash.kopano.io/kwm/kwmsdp/config"
)

// NewSettingEngine returns a SettingEngine with the ICE settings of config
// applied.
func NewSettingEngine(config *cfg.Config, logger logrus.FieldLogger) (*webrtc.SettingEngine, error) {
	s := &webrtc.SettingEngine{
		LoggerFactory: newLoggerFactory(logger),
	}
	if config == nil {
		return s, nil
	}

	if len(config.ICEInterfaces) > 0 {
		logger.WithField("interfaces", config.ICEInterfaces).Debugln("enabling ICE interface filter")
		iceInterfaceFilterMap := make(map[string]bool)
		for _, ifName := range config.ICEInterfaces {
			iceInterfaceFilterMap[ifName] = true
		}
		s.SetInterfaceFilter(func(i string) bool {
			return iceInterfaceFilterMap[i]
		})
	}

	if len(config.ICENetworkTypes) > 0 {
		candidateTypes := ParseNetworkTypes(config.ICENetworkTypes, logger)
		if len(candidateTypes) == 0 {
			logger.Errorln("ICE candidate network type list is empty, continuing anyway")
		}
		logger.WithField("types", candidateTypes).Debugln("enabling limit of ICE candidate network type")
		s.SetNetworkTypes(candidateTypes)
	}

	if config.ICEEphemeralUDPPortRange[1] != 0 {
		logger.WithFields(logrus.Fields{
			"min": config.ICEEphemeralUDPPortRange[0],
			"max": config.ICEEphemeralUDPPortRange[1],
		}).Debugln("limiting ICE ports")
		if err := s.SetEphemeralUDPPortRange(config.ICEEphemeralUDPPortRange[0], config.ICEEphemeralUDPPortRange[1]); err != nil {
			return nil, fmt.Errorf("failed to set ICE port range: %w", err)
		}
	}

	if config.ICEIncludeLoopback {
		s.SetIncludeLoopbackCandidate(true)
	}

	return s, nil
}

// ParseNetworkTypes converts network type names, unsupported names are
// skipped.
func ParseNetworkTypes(names []string, logger logrus.FieldLogger) []webrtc.NetworkType {
	candidateTypes := make([]webrtc.NetworkType, 0, len(names))
	for _, networkTypeString := range names {
		var nt webrtc.NetworkType
		switch strings.ToLower(networkTypeString) {
		case "udp4":
			nt = webrtc.NetworkTypeUDP4
		case "udp6":
			nt = webrtc.NetworkTypeUDP6
		case "tcp4":
			nt = webrtc.NetworkTypeTCP4
		case "tcp6":
			nt = webrtc.NetworkTypeTCP6
		default:
			logger.WithField("type", networkTypeString).Warnln("unsupported network type, skipped")
			continue
		}
		candidateTypes = append(candidateTypes, nt)
	}
	return candidateTypes
}

// NewAPI creates a webrtc API with the default codecs and interceptors and
// the ICE settings of config.
func NewAPI(config *cfg.Config, logger logrus.FieldLogger) (*webrtc.API, error) {
	s, err := NewSettingEngine(config, logger)
	if err != nil {
		return nil, err
	}

	m := &webrtc.MediaEngine{}
	if err = m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(*s)), nil
}
