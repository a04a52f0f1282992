/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package server

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// debugLogger is an io.Writer which logs every write at debug level, used
// as target of the standard library loggers of net/http.
type debugLogger struct {
	logger logrus.FieldLogger
	prefix string
}

func (l *debugLogger) Write(p []byte) (int, error) {
	l.logger.Debugln(l.prefix + strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
