/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package server

import (
	"net/http"
	"strconv"
)

// HealthCheckHandler a http handler return 200 OK when server health is fine.
func (s *Server) HealthCheckHandler(rw http.ResponseWriter, req *http.Request) {
	if s.services != nil {
		rw.Header().Set("X-Active-Connections", strconv.FormatUint(s.services.NumActive(), 10))
	}
	rw.WriteHeader(http.StatusOK)
}
