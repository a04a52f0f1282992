/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	cfg "stash.kopano.io/kwm/kwmsdp/config"
	"stash.kopano.io/kwm/kwmsdp/sdptransform"
)

func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to TOML config file")
}

func loadConfigFile(cmd *cobra.Command) (*cfg.File, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil, nil
	}
	return cfg.LoadFile(path)
}

func addPolicyFlags(cmd *cobra.Command) {
	cmd.Flags().String("codec", "", "Preferred codec as NAME/RATE, for example opus/48000")
	cmd.Flags().String("codec-fmtp", "", "Format parameters the preferred codec must have (strict matching only)")
	cmd.Flags().Bool("strict", false, "Match the preferred codec exactly instead of by substring")
	cmd.Flags().String("media", sdptransform.DefaultMediaType, "Media section to decorate")
	cmd.Flags().Uint32("max-bitrate", 0, "Maximum bitrate in kbps (b=AS), 0 to leave unset")
	cmd.Flags().Bool("dtx", false, "Enable discontinuous transmission (usedtx=1)")
	cmd.Flags().Bool("fec", true, "Keep in-band forward error correction enabled, false sets useinbandfec=0")
	cmd.Flags().Uint32("ptime", 0, "Packet time in milliseconds (a=ptime), 0 to leave unset")
	cmd.Flags().StringArray("strip", nil, "Remove all lines with this prefix, for example b=TIAS:")
}

// policyFromFlags returns the policy of base overridden by all policy flags
// which were set on the command line.
func policyFromFlags(cmd *cobra.Command, base *sdptransform.Policy) (*sdptransform.Policy, error) {
	policy := &sdptransform.Policy{}
	if base != nil {
		*policy = *base
	}

	flags := cmd.Flags()
	if flags.Changed("codec") {
		policy.PreferredCodec, _ = flags.GetString("codec")
	}
	if flags.Changed("codec-fmtp") {
		policy.PreferredCodecFmtp, _ = flags.GetString("codec-fmtp")
	}
	if flags.Changed("strict") {
		policy.StrictCodecMatch, _ = flags.GetBool("strict")
	}
	if flags.Changed("media") || policy.MediaType == "" {
		policy.MediaType, _ = flags.GetString("media")
	}
	if flags.Changed("max-bitrate") {
		policy.MaxBitrateKbps, _ = flags.GetUint32("max-bitrate")
	}
	if flags.Changed("dtx") {
		policy.EnableDTX, _ = flags.GetBool("dtx")
	}
	if flags.Changed("fec") {
		fec, _ := flags.GetBool("fec")
		policy.EnableFEC = sdptransform.Bool(fec)
	}
	if flags.Changed("ptime") {
		policy.Ptime, _ = flags.GetUint32("ptime")
	}
	if flags.Changed("strip") {
		policy.StripLines, _ = flags.GetStringArray("strip")
	}

	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy flags: %w", err)
	}
	return policy, nil
}
