/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sasha-s/go-deadlock"
	"github.com/spf13/cobra"

	cfg "stash.kopano.io/kwm/kwmsdp/config"
	"stash.kopano.io/kwm/kwmsdp/server"
)

const defaultListenAddr = "127.0.0.1:8780"

var (
	detectDeadlocks = false
)

func commandServe() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve [...args]",
		Short: "Start server and listen for requests",
		Run: func(cmd *cobra.Command, args []string) {
			if err := serve(cmd, args); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("listen", "", fmt.Sprintf("TCP listen address (default \"%s\")", defaultListenAddr))
	addConfigFlag(serveCmd)
	addLogFlags(serveCmd)
	addPolicyFlags(serveCmd)
	addICEFlags(serveCmd)
	serveCmd.Flags().Bool("log-requests", false, "Log every HTTP request")
	serveCmd.Flags().Bool("verify", false, "Verify that every decorated description can be parsed")
	serveCmd.Flags().Int("relay-max-rooms", 0, "Maximum number of relay rooms, 0 for no limit")
	serveCmd.Flags().Duration("relay-room-idle-timeout", 0, "Time after which relay rooms without peers are removed (default 5m)")
	serveCmd.Flags().Bool("with-pprof", false, "With pprof enabled")
	serveCmd.Flags().String("pprof-listen", "127.0.0.1:6060", "TCP listen address for pprof")
	serveCmd.Flags().Bool("with-metrics", false, "Enable metrics")
	serveCmd.Flags().String("metrics-listen", "127.0.0.1:6780", "TCP listen address for metrics")
	serveCmd.Flags().BoolVar(&detectDeadlocks, "with-deadlock-detector", detectDeadlocks, "Enable deadlock detection")

	return serveCmd
}

func serve(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	file, err := loadConfigFile(cmd)
	if err != nil {
		return err
	}

	logger, err := newLoggerFromFlags(cmd, file)
	if err != nil {
		return fmt.Errorf("failed to create logger: %v", err)
	}
	logger.Infoln("serve start")

	deadlock.Opts.Disable = !detectDeadlocks
	deadlock.Opts.DeadlockTimeout = 15 * time.Second
	if !deadlock.Opts.Disable {
		logger.Warnln("enabled automatic deadlock detector")
	}

	config := &cfg.Config{
		Logger: logger,
	}

	listenAddr, _ := cmd.Flags().GetString("listen")
	if listenAddr == "" && file != nil {
		listenAddr = file.Listen
	}
	if listenAddr == "" {
		listenAddr = os.Getenv("KWMSDPD_LISTEN")
	}
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}
	config.ListenAddr = listenAddr

	var basePolicy = &cfg.FilePolicy{}
	if file != nil {
		basePolicy = &file.Policy
		config.VerifyOutput = file.Policy.VerifyOutput
		config.RelayMaxRooms = file.Relay.MaxRooms
		if file.Relay.RoomIdleTimeout != "" {
			if config.RelayRoomIdleTimeout, err = time.ParseDuration(file.Relay.RoomIdleTimeout); err != nil {
				return fmt.Errorf("invalid relay room_idle_timeout: %w", err)
			}
		}
	}
	if config.DefaultPolicy, err = policyFromFlags(cmd, basePolicy.Policy()); err != nil {
		return err
	}
	logger.WithField("policy", config.DefaultPolicy).Infoln("default decoration policy")

	if cmd.Flags().Changed("verify") {
		config.VerifyOutput, _ = cmd.Flags().GetBool("verify")
	}
	config.RequestLog, _ = cmd.Flags().GetBool("log-requests")
	if cmd.Flags().Changed("relay-max-rooms") {
		config.RelayMaxRooms, _ = cmd.Flags().GetInt("relay-max-rooms")
	}
	if cmd.Flags().Changed("relay-room-idle-timeout") {
		config.RelayRoomIdleTimeout, _ = cmd.Flags().GetDuration("relay-room-idle-timeout")
	}

	if err = applyICEFlags(cmd, file, config, logger); err != nil {
		return err
	}

	// Metrics support.
	config.WithMetrics, _ = cmd.Flags().GetBool("with-metrics")
	config.MetricsListenAddr, _ = cmd.Flags().GetString("metrics-listen")
	if config.WithMetrics && config.MetricsListenAddr != "" {
		reg := prometheus.NewPedanticRegistry()
		config.Metrics = prometheus.WrapRegistererWithPrefix("kwmsdpd_", reg)
		config.MetricsGatherer = reg
		// Add the standard process and Go metrics to the custom registry.
		reg.MustRegister(
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
			prometheus.NewGoCollector(),
		)
	}

	srv, err := server.NewServer(config)
	if err != nil {
		return fmt.Errorf("failed to create server: %v", err)
	}

	// Profiling support.
	withPprof, _ := cmd.Flags().GetBool("with-pprof")
	pprofListenAddr, _ := cmd.Flags().GetString("pprof-listen")
	if withPprof && pprofListenAddr != "" {
		runtime.SetMutexProfileFraction(5)
		go func() {
			pprofListen := pprofListenAddr
			logger.WithField("listenAddr", pprofListen).Infoln("pprof enabled, starting listener")
			err := http.ListenAndServe(pprofListen, nil)
			if err != nil {
				logger.WithError(err).Errorln("unable to start pprof listener")
			}
		}()
	}

	logger.Infoln("serve started")
	return srv.Serve(ctx)
}
