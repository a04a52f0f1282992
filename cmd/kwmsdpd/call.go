/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	cfg "stash.kopano.io/kwm/kwmsdp/config"
	"stash.kopano.io/kwm/kwmsdp/internal/negotiation"
	"stash.kopano.io/kwm/kwmsdp/sdptransform"
)

func commandCall() *cobra.Command {
	callCmd := &cobra.Command{
		Use:   "call",
		Short: "Run a decorated loopback audio call and log its outbound stats",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := call(cmd, args); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	}
	addConfigFlag(callCmd)
	addLogFlags(callCmd)
	addPolicyFlags(callCmd)
	addICEFlags(callCmd)
	callCmd.Flags().Duration("duration", 10*time.Second, "Duration of the call")
	callCmd.Flags().Duration("connect-timeout", negotiation.DefaultConnectTimeout, "Maximum time to wait for the call to connect")
	callCmd.Flags().Duration("stats-interval", negotiation.DefaultStatsInterval, "Interval of outbound stats polling")

	return callCmd
}

func call(cmd *cobra.Command, args []string) error {
	file, err := loadConfigFile(cmd)
	if err != nil {
		return err
	}

	logger, err := newLoggerFromFlags(cmd, file)
	if err != nil {
		return fmt.Errorf("failed to create logger: %v", err)
	}

	var base *sdptransform.Policy
	if file != nil {
		base = file.Policy.Policy()
	}
	policy, err := policyFromFlags(cmd, base)
	if err != nil {
		return err
	}

	config := &cfg.Config{
		Logger: logger,
	}
	if err = applyICEFlags(cmd, file, config, logger); err != nil {
		return err
	}

	transformer, err := sdptransform.NewTransformer(&sdptransform.TransformerOptions{
		Logger:       logger.WithField("scope", "sdptransform"),
		VerifyOutput: true,
	})
	if err != nil {
		return err
	}

	duration, _ := cmd.Flags().GetDuration("duration")
	connectTimeout, _ := cmd.Flags().GetDuration("connect-timeout")
	statsInterval, _ := cmd.Flags().GetDuration("stats-interval")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)
	go func() {
		select {
		case <-signalCh:
			logger.Infoln("call interrupted")
			cancel()
		case <-ctx.Done():
		}
	}()

	c, err := negotiation.NewCall(ctx, &negotiation.CallOptions{
		Logger: logger,
		Config: config,

		Transformer:  transformer,
		CallerPolicy: policy,
		CalleePolicy: policy,

		ConnectTimeout: connectTimeout,
		StatsInterval:  statsInterval,
		OnStats: func(stats *negotiation.Stats) {
			logger.WithFields(logrus.Fields{
				"bitrate_kbps":        fmt.Sprintf("%.1f", stats.BitrateKbps),
				"header_bitrate_kbps": fmt.Sprintf("%.1f", stats.HeaderBitrateKbps),
				"packets_per_second":  fmt.Sprintf("%.1f", stats.PacketsPerSecond),
			}).Infoln("call outbound stats")
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"duration": duration,
		"policy":   policy,
	}).Infoln("call start")

	runCtx, runCancel := context.WithTimeout(ctx, duration)
	defer runCancel()

	if err = c.Run(runCtx); err != nil {
		return fmt.Errorf("call failed: %w", err)
	}
	return nil
}
