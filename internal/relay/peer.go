/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"stash.kopano.io/kwm/kwmsdp/internal/bpool"
	"stash.kopano.io/kwm/kwmsdp/internal/signaling"
)

const (
	// Subprotocol is the websocket subprotocol spoken by relay peers.
	Subprotocol = "kwmsdp-relay"

	websocketMaxMessageSize = 1048576
	websocketWriteTimeout   = 10 * time.Second
)

type peer struct {
	id     string
	room   *Room
	logger logrus.FieldLogger

	ws    *websocket.Conn
	wsCtx context.Context
}

func newPeer(ctx context.Context, room *Room, ws *websocket.Conn) *peer {
	id := newPeerID()
	return &peer{
		id:     id,
		room:   room,
		logger: room.logger.WithField("peer", id),

		ws:    ws,
		wsCtx: ctx,
	}
}

func (p *peer) send(message *signaling.Message) error {
	ctx, cancel := context.WithTimeout(p.wsCtx, websocketWriteTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, p.ws, message); err != nil {
		return fmt.Errorf("failed to write websocket message: %w", err)
	}
	return nil
}

func (p *peer) readPump() error {
	var mt websocket.MessageType
	var reader io.Reader
	var err error
	for {
		mt, reader, err = p.ws.Reader(p.wsCtx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				p.logger.WithField("status_code", websocket.CloseStatus(err)).Debugln("relay connection close")
				return nil
			}
			p.logger.WithError(err).Debugln("relay connection failed to get reader")
			return err
		}

		b := bpool.Get()
		if _, err = b.ReadFrom(reader); err != nil {
			bpool.Put(b)
			return err
		}

		switch mt {
		case websocket.MessageText:
		default:
			bpool.Put(b)
			p.logger.WithField("message_type", mt).Warnln("relay connection received unknown websocket message type")
			continue
		}

		message := &signaling.Message{}
		err = json.Unmarshal(b.Bytes(), message)
		bpool.Put(b)
		if err != nil {
			p.logger.WithError(err).Debugln("relay connection websocket message parse error")
			if err = p.send(signaling.NewErrorMessage("invalid message")); err != nil {
				return err
			}
			continue
		}

		if err = p.room.handleMessage(p.wsCtx, p, message); err != nil {
			p.logger.WithError(err).Debugln("error while processing relay websocket message")
			return err
		}
		if message.Type == signaling.TypeBye {
			return nil
		}
	}
}
