/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package relay

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"nhooyr.io/websocket"

	api "stash.kopano.io/kwm/kwmsdp/api/v0"
	"stash.kopano.io/kwm/kwmsdp/internal/signaling"
)

// HTTPCreateRoomHandler creates a room from an optional RelayCreateRequest
// body.
func (m *Manager) HTTPCreateRoomHandler(rw http.ResponseWriter, req *http.Request) {
	request := &api.RelayCreateRequest{}
	if err := api.DecodeJSONRequest(req, request); err != nil && !errors.Is(err, io.EOF) {
		m.writeError(rw, err)
		return
	}

	room, err := m.CreateRoom(request.Policy)
	if err != nil {
		if errors.Is(err, ErrRoomLimitReached) {
			err = fmt.Errorf("%w: %w", api.ErrLimitReached, err)
		}
		m.writeError(rw, err)
		return
	}

	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(http.StatusCreated)
	if writeErr := api.WriteResourceAsJSON(rw, m.roomResource(room)); writeErr != nil {
		m.logger.WithError(writeErr).Errorln("failed to write json response")
	}
}

// HTTPRoomHandler returns the room selected by the roomID request var.
func (m *Manager) HTTPRoomHandler(rw http.ResponseWriter, req *http.Request) {
	room := m.getRoomOrWriteError(rw, req)
	if room == nil {
		return
	}

	if writeErr := api.WriteResourceAsJSON(rw, m.roomResource(room)); writeErr != nil {
		m.logger.WithError(writeErr).Errorln("failed to write json response")
	}
}

// HTTPWebsocketHandler joins the room selected by the roomID request var and
// relays messages until the connection ends.
func (m *Manager) HTTPWebsocketHandler(rw http.ResponseWriter, req *http.Request) {
	room := m.getRoomOrWriteError(rw, req)
	if room == nil {
		return
	}
	if err := room.canJoin(); err != nil {
		if errors.Is(err, ErrRoomFull) {
			err = fmt.Errorf("%w: %w", api.ErrConflict, err)
		} else {
			err = fmt.Errorf("%w: %w", api.ErrNotFound, err)
		}
		m.writeError(rw, err)
		return
	}

	ws, err := websocket.Accept(rw, req, &websocket.AcceptOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		m.logger.WithError(err).Debugln("relay websocket accept failed")
		return
	}
	defer ws.CloseNow()
	ws.SetReadLimit(websocketMaxMessageSize)

	m.wg.Add(1)
	defer m.wg.Done()

	p := newPeer(m.ctx, room, ws)
	peers, err := room.join(p)
	if err != nil {
		p.logger.WithError(err).Debugln("relay peer join failed")
		ws.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}
	defer room.leave(p)
	atomic.AddInt64(&m.active, 1)
	defer atomic.AddInt64(&m.active, -1)

	for _, other := range peers {
		if sendErr := other.send(&signaling.Message{Type: signaling.TypeReady}); sendErr != nil {
			other.logger.WithError(sendErr).Debugln("relay failed to send ready")
		}
	}

	err = p.readPump() // This blocks.
	if err != nil {
		ws.Close(websocket.StatusInternalError, "relay error")
	} else {
		ws.Close(websocket.StatusNormalClosure, "")
	}
}

func (m *Manager) getRoomOrWriteError(rw http.ResponseWriter, req *http.Request) *Room {
	roomID, _ := api.GetRequestVar(req, "roomID")
	room, ok := m.Room(roomID)
	if !ok {
		m.writeError(rw, api.NewErrorWithCodeAndMessage(
			"ErrorRelayRoomNotFound",
			"The specified relay room was not found",
			api.ErrNotFound,
		))
		return nil
	}
	return room
}

func (m *Manager) roomResource(room *Room) *api.RelayResource {
	return &api.RelayResource{
		ID:     room.ID(),
		Peers:  room.NumPeers(),
		State:  room.State(),
		Policy: room.Policy(),
	}
}

func (m *Manager) writeError(rw http.ResponseWriter, err error) {
	if writeErr := api.WriteErrorAsJSON(rw, err); writeErr != nil {
		m.logger.WithError(writeErr).Errorln("failed to write json error")
	}
}
