/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/sirupsen/logrus"

	api "stash.kopano.io/kwm/kwmsdp/api/v0"
	"stash.kopano.io/kwm/kwmsdp/internal/relay"
	"stash.kopano.io/kwm/kwmsdp/sdptransform"
	"stash.kopano.io/kwm/kwmsdp/service"
)

const (
	URIPrefix = "/api/sdp/v0"
)

// HTTPService binds the HTTP router with handlers for the sdp API v0.
type HTTPService struct {
	logger   logrus.FieldLogger
	services *service.Services

	transformer   *sdptransform.Transformer
	defaultPolicy *sdptransform.Policy
}

// NewHTTPService creates a new HTTPService with the provided options. A nil
// defaultPolicy leaves descriptions without policy unchanged.
func NewHTTPService(ctx context.Context, logger logrus.FieldLogger, services *service.Services, transformer *sdptransform.Transformer, defaultPolicy *sdptransform.Policy) *HTTPService {
	return &HTTPService{
		logger:   logger,
		services: services,

		transformer:   transformer,
		defaultPolicy: defaultPolicy,
	}
}

// AddRoutes configures the services HTTP end point routing on the provided
// context and router.
func (h *HTTPService) AddRoutes(ctx context.Context, router *mux.Router, chain alice.Chain) http.Handler {
	v0 := router.PathPrefix(URIPrefix).Subrouter()

	// /api/sdp/v0/transform
	// /api/sdp/v0/codecs
	v0.Handle("/transform", chain.ThenFunc(h.HTTPTransformHandler)).Methods(http.MethodPost)
	v0.Handle("/codecs", chain.ThenFunc(h.HTTPCodecsHandler)).Methods(http.MethodPost)

	if relaym, ok := h.services.RelayManager.(*relay.Manager); ok {
		// /api/sdp/v0/relay
		// /api/sdp/v0/relay/:room
		// /api/sdp/v0/relay/:room/websocket
		r := v0.PathPrefix("/relay").Subrouter()
		r.Handle("", chain.ThenFunc(relaym.HTTPCreateRoomHandler)).Methods(http.MethodPost)
		r.Handle("/{roomID}", chain.ThenFunc(relaym.HTTPRoomHandler)).Methods(http.MethodGet)
		r.Handle("/{roomID}/websocket", chain.ThenFunc(relaym.HTTPWebsocketHandler)).Methods(http.MethodGet)
	}

	return router
}

// HTTPTransformHandler decorates the session description of a
// TransformRequest.
func (h *HTTPService) HTTPTransformHandler(rw http.ResponseWriter, req *http.Request) {
	request := &api.TransformRequest{}
	if err := api.DecodeJSONRequest(req, request); err != nil {
		h.writeError(rw, err)
		return
	}

	policy := request.Policy
	if policy == nil {
		policy = h.defaultPolicy
	}

	result, err := h.transformer.Transform(request.SDP, policy)
	if err != nil {
		h.writeError(rw, err)
		return
	}

	if writeErr := api.WriteResourceAsJSON(rw, api.NewTransformResponse(request.Type, result)); writeErr != nil {
		h.logger.WithError(writeErr).Errorln("failed to write json response")
	}
}

// HTTPCodecsHandler lists the codecs of the session description of a
// CodecsRequest.
func (h *HTTPService) HTTPCodecsHandler(rw http.ResponseWriter, req *http.Request) {
	request := &api.CodecsRequest{}
	if err := api.DecodeJSONRequest(req, request); err != nil {
		h.writeError(rw, err)
		return
	}

	media, err := sdptransform.Codecs(request.SDP)
	if err != nil {
		h.writeError(rw, fmt.Errorf("failed to inspect codecs: %w", err))
		return
	}

	if writeErr := api.WriteResourceAsJSON(rw, &api.CodecsResponse{
		Media: media,
	}); writeErr != nil {
		h.logger.WithError(writeErr).Errorln("failed to write json response")
	}
}

func (h *HTTPService) writeError(rw http.ResponseWriter, err error) {
	if writeErr := api.WriteErrorAsJSON(rw, err); writeErr != nil {
		h.logger.WithError(writeErr).Errorln("failed to write json error")
	}
}

// NumActive returns the number of the currently active connections at the
// accociated HTTPService.
func (h *HTTPService) NumActive() uint64 {
	return h.services.NumActive()
}
