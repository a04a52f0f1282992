/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package config

import (
	"fmt"

	"github.com/spf13/viper"

	"stash.kopano.io/kwm/kwmsdp/sdptransform"
)

// File is the content of a TOML configuration file. Command line flags take
// precedence over values from the file.
type File struct {
	Listen string     `mapstructure:"listen"`
	Policy FilePolicy `mapstructure:"policy"`
	Log    FileLog    `mapstructure:"log"`
	Relay  FileRelay  `mapstructure:"relay"`
	ICE    FileICE    `mapstructure:"ice"`
}

// FilePolicy is the [policy] section, the default transform policy.
type FilePolicy struct {
	PreferredCodec     string   `mapstructure:"preferred_codec"`
	PreferredCodecFmtp string   `mapstructure:"preferred_codec_fmtp"`
	StrictCodecMatch   bool     `mapstructure:"strict_codec_match"`
	MediaType          string   `mapstructure:"media_type"`
	MaxBitrateKbps     uint32   `mapstructure:"max_bitrate_kbps"`
	EnableDTX          bool     `mapstructure:"enable_dtx"`
	EnableFEC          *bool    `mapstructure:"enable_fec"`
	Ptime              uint32   `mapstructure:"ptime"`
	StripLines         []string `mapstructure:"strip_lines"`
	VerifyOutput       bool     `mapstructure:"verify_output"`
}

// FileLog is the [log] section.
type FileLog struct {
	Level      string `mapstructure:"level"`
	Timestamp  *bool  `mapstructure:"timestamp"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// FileRelay is the [relay] section.
type FileRelay struct {
	MaxRooms        int    `mapstructure:"max_rooms"`
	RoomIdleTimeout string `mapstructure:"room_idle_timeout"`
}

// FileICE is the [ice] section, used by peer connections.
type FileICE struct {
	Interfaces      []string `mapstructure:"interfaces"`
	NetworkTypes    []string `mapstructure:"network_types"`
	UDPPortRange    string   `mapstructure:"udp_port_range"`
	IncludeLoopback bool     `mapstructure:"include_loopback"`
}

// LoadFile reads the TOML configuration file at path. Unknown keys are
// treated as error.
func LoadFile(path string) (*File, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config file %s read failed: %w", path, err)
	}

	f := &File{}
	if err := v.UnmarshalExact(f); err != nil {
		return nil, fmt.Errorf("config file %s load failed: %w", path, err)
	}

	return f, nil
}

// Policy returns the transform policy defined by the accociated section.
func (fp *FilePolicy) Policy() *sdptransform.Policy {
	policy := &sdptransform.Policy{
		PreferredCodec:     fp.PreferredCodec,
		PreferredCodecFmtp: fp.PreferredCodecFmtp,
		StrictCodecMatch:   fp.StrictCodecMatch,
		MediaType:          fp.MediaType,
		MaxBitrateKbps:     fp.MaxBitrateKbps,
		EnableDTX:          fp.EnableDTX,
		Ptime:              fp.Ptime,
	}
	if fp.EnableFEC != nil {
		policy.EnableFEC = sdptransform.Bool(*fp.EnableFEC)
	}
	if len(fp.StripLines) > 0 {
		policy.StripLines = append([]string(nil), fp.StripLines...)
	}

	return policy
}
