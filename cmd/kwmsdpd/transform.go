/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	api "stash.kopano.io/kwm/kwmsdp/api/v0"
	"stash.kopano.io/kwm/kwmsdp/sdptransform"
)

func commandTransform() *cobra.Command {
	transformCmd := &cobra.Command{
		Use:   "transform [file]",
		Short: "Decorate a session description read from file or stdin",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := transform(cmd, args); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	}
	addConfigFlag(transformCmd)
	addLogFlags(transformCmd)
	addPolicyFlags(transformCmd)
	transformCmd.Flags().Bool("json", false, "Read and write session description objects like {\"type\":\"offer\",\"sdp\":\"...\"}")
	transformCmd.Flags().Bool("verify", false, "Verify that the decorated description can be parsed")

	return transformCmd
}

func commandInspect() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "List the codecs of a session description read from file or stdin",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := inspect(cmd, args); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	}
	inspectCmd.Flags().Bool("json", false, "Read a session description object like {\"type\":\"offer\",\"sdp\":\"...\"}")

	return inspectCmd
}

func readSessionDescription(cmd *cobra.Command, args []string) (*api.SessionDescription, bool, error) {
	var input []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		input, err = io.ReadAll(os.Stdin)
	} else {
		input, err = os.ReadFile(args[0])
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read input: %w", err)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if !asJSON {
		return &api.SessionDescription{
			SDP: string(input),
		}, false, nil
	}

	sd := &api.SessionDescription{}
	if err = json.Unmarshal(input, sd); err != nil {
		return nil, true, fmt.Errorf("failed to parse session description object: %w", err)
	}
	return sd, true, nil
}

func transform(cmd *cobra.Command, args []string) error {
	file, err := loadConfigFile(cmd)
	if err != nil {
		return err
	}
	logger, err := newLoggerFromFlags(cmd, file)
	if err != nil {
		return fmt.Errorf("failed to create logger: %v", err)
	}

	var base *sdptransform.Policy
	verify, _ := cmd.Flags().GetBool("verify")
	if file != nil {
		base = file.Policy.Policy()
		if !cmd.Flags().Changed("verify") {
			verify = file.Policy.VerifyOutput
		}
	}
	policy, err := policyFromFlags(cmd, base)
	if err != nil {
		return err
	}

	sd, asJSON, err := readSessionDescription(cmd, args)
	if err != nil {
		return err
	}

	transformer, err := sdptransform.NewTransformer(&sdptransform.TransformerOptions{
		Logger:       logger,
		VerifyOutput: verify,
	})
	if err != nil {
		return err
	}
	result, err := transformer.Transform(sd.SDP, policy)
	if err != nil {
		return err
	}
	if !result.Applicable {
		logger.WithField("reason", result.Reason).Warnln("policy not applicable, description unchanged")
	}
	for _, skipped := range result.Skipped {
		logger.WithField("rewrite", skipped).Infoln("rewrite skipped")
	}

	if !asJSON {
		_, err = io.WriteString(os.Stdout, result.SDP)
		return err
	}

	sd.SDP = result.SDP
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(sd)
}

func inspect(cmd *cobra.Command, args []string) error {
	sd, _, err := readSessionDescription(cmd, args)
	if err != nil {
		return err
	}

	media, err := sdptransform.Codecs(sd.SDP)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(&api.CodecsResponse{
		Media: media,
	})
}
