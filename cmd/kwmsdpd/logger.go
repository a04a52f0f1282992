/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	cfg "stash.kopano.io/kwm/kwmsdp/config"
)

func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("log-timestamp", true, "Prefix each log line with timestamp")
	cmd.Flags().String("log-level", "info", "Log level (one of panic, fatal, error, warn, info or debug)")
	cmd.Flags().String("log-file", "", "Write log to file with rotation instead of stderr")
	cmd.Flags().Int("log-file-max-size", 100, "Maximum size in megabytes of the log file before it gets rotated")
	cmd.Flags().Int("log-file-max-age", 28, "Maximum number of days to retain rotated log files")
	cmd.Flags().Int("log-file-max-backups", 3, "Maximum number of rotated log files to retain")
}

func newLoggerFromFlags(cmd *cobra.Command, file *cfg.File) (logrus.FieldLogger, error) {
	logTimestamp, _ := cmd.Flags().GetBool("log-timestamp")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logFile, _ := cmd.Flags().GetString("log-file")
	rotate := &lumberjack.Logger{
		LocalTime: true,
	}
	rotate.MaxSize, _ = cmd.Flags().GetInt("log-file-max-size")
	rotate.MaxAge, _ = cmd.Flags().GetInt("log-file-max-age")
	rotate.MaxBackups, _ = cmd.Flags().GetInt("log-file-max-backups")

	if file != nil {
		if file.Log.Timestamp != nil && !cmd.Flags().Changed("log-timestamp") {
			logTimestamp = *file.Log.Timestamp
		}
		if file.Log.Level != "" && !cmd.Flags().Changed("log-level") {
			logLevel = file.Log.Level
		}
		if file.Log.File != "" && !cmd.Flags().Changed("log-file") {
			logFile = file.Log.File
		}
		if file.Log.MaxSizeMB > 0 && !cmd.Flags().Changed("log-file-max-size") {
			rotate.MaxSize = file.Log.MaxSizeMB
		}
		if file.Log.MaxAgeDays > 0 && !cmd.Flags().Changed("log-file-max-age") {
			rotate.MaxAge = file.Log.MaxAgeDays
		}
		if file.Log.MaxBackups > 0 && !cmd.Flags().Changed("log-file-max-backups") {
			rotate.MaxBackups = file.Log.MaxBackups
		}
		rotate.Compress = file.Log.Compress
	}

	var out io.Writer = os.Stderr
	if logFile != "" {
		rotate.Filename = logFile
		out = rotate
	}

	return newLogger(!logTimestamp, logLevel, out)
}

func newLogger(disableTimestamp bool, logLevelString string, out io.Writer) (logrus.FieldLogger, error) {
	logLevel, err := logrus.ParseLevel(logLevelString)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	return &logrus.Logger{
		Out: out,
		Formatter: &logrus.TextFormatter{
			DisableTimestamp: disableTimestamp,
		},
		Level: logLevel,
		Hooks: make(logrus.LevelHooks),
	}, nil
}
