/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package negotiation

import (
	pionLogging "github.com/pion/logging"
	"github.com/sirupsen/logrus"
)

// pionLogger maps pion log levels onto logrus. Pion debug and trace output
// is only forwarded when the logger runs at trace level.
type pionLogger struct {
	logrus.FieldLogger
	verbose bool
}

func (l *pionLogger) Trace(msg string) {
	if l.verbose {
		l.FieldLogger.Debugln(msg)
	}
}

func (l *pionLogger) Tracef(format string, args ...interface{}) {
	if l.verbose {
		l.FieldLogger.Debugf(format, args...)
	}
}

func (l *pionLogger) Debug(msg string) {
	if l.verbose {
		l.FieldLogger.Debugln(msg)
	}
}

func (l *pionLogger) Debugf(format string, args ...interface{}) {
	if l.verbose {
		l.FieldLogger.Debugf(format, args...)
	}
}

func (l *pionLogger) Info(msg string) {
	l.FieldLogger.Infoln(msg)
}

func (l *pionLogger) Warn(msg string) {
	l.FieldLogger.Warnln(msg)
}

func (l *pionLogger) Error(msg string) {
	l.FieldLogger.Errorln(msg)
}

type loggerFactory struct {
	logger  logrus.FieldLogger
	verbose bool
}

func newLoggerFactory(logger logrus.FieldLogger) *loggerFactory {
	return &loggerFactory{
		logger:  logger,
		verbose: traceEnabled(logger),
	}
}

func (factory *loggerFactory) NewLogger(scope string) pionLogging.LeveledLogger {
	return &pionLogger{
		FieldLogger: factory.logger.WithField("webrtc", scope),
		verbose:     factory.verbose,
	}
}

func traceEnabled(logger logrus.FieldLogger) bool {
	switch l := logger.(type) {
	case *logrus.Logger:
		return l.IsLevelEnabled(logrus.TraceLevel)
	case *logrus.Entry:
		return l.Logger.IsLevelEnabled(logrus.TraceLevel)
	}
	return false
}
