/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"stash.kopano.io/kwm/kwmsdp/internal/signaling"
	"stash.kopano.io/kwm/kwmsdp/sdptransform"
)

// Room connects two peers and decorates the session descriptions they
// exchange with its policy.
type Room struct {
	deadlock.RWMutex

	id      string
	manager *Manager
	logger  logrus.FieldLogger
	policy  *sdptransform.Policy

	idle   time.Time
	closed bool

	peers   []*peer
	offerer *peer
	state   *signaling.State
}

func newRoom(m *Manager, id string, policy *sdptransform.Policy) *Room {
	room := &Room{
		id:      id,
		manager: m,
		policy:  policy,

		idle: time.Now(),
	}
	room.logger = m.logger.WithField("room", id)
	room.state = room.newState()

	return room
}

func (room *Room) newState() *signaling.State {
	logger := room.logger
	return signaling.NewState(func(from, to string) {
		logger.WithFields(logrus.Fields{
			"from": from,
			"to":   to,
		}).Debugln("relay room signaling state change")
	})
}

// ID returns the room's ID.
func (room *Room) ID() string {
	return room.id
}

// Policy returns the room's decoration policy.
func (room *Room) Policy() *sdptransform.Policy {
	return room.policy
}

// NumPeers returns the number of connected peers.
func (room *Room) NumPeers() int {
	room.RLock()
	defer room.RUnlock()

	return len(room.peers)
}

// State returns the current signaling state.
func (room *Room) State() string {
	room.RLock()
	defer room.RUnlock()

	return room.state.Current()
}

func (room *Room) canJoin() error {
	room.RLock()
	defer room.RUnlock()

	if room.closed {
		return ErrRoomNotFound
	}
	if len(room.peers) >= MaxPeersPerRoom {
		return ErrRoomFull
	}
	return nil
}

func (room *Room) join(p *peer) ([]*peer, error) {
	room.Lock()
	defer room.Unlock()

	if room.closed {
		return nil, ErrRoomNotFound
	}
	if len(room.peers) >= MaxPeersPerRoom {
		return nil, ErrRoomFull
	}
	room.peers = append(room.peers, p)
	p.logger.WithField("peers", len(room.peers)).Infoln("relay peer joined")

	if len(room.peers) < MaxPeersPerRoom {
		return nil, nil
	}
	return append([]*peer(nil), room.peers...), nil
}

// leave removes p. Remaining peers are notified and the signaling state is
// reset. The room is removed when its last peer left.
func (room *Room) leave(p *peer) {
	var remaining []*peer
	empty := func() bool {
		room.Lock()
		defer room.Unlock()

		for idx, other := range room.peers {
			if other == p {
				room.peers = append(room.peers[:idx], room.peers[idx+1:]...)
				break
			}
		}
		if room.offerer == p || room.state.Current() != signaling.StateStable {
			room.state.Close(room.manager.ctx)
			room.state = room.newState()
		}
		room.offerer = nil
		room.idle = time.Now()

		remaining = append(remaining, room.peers...)
		return len(room.peers) == 0
	}()
	p.logger.Infoln("relay peer left")

	if empty {
		room.manager.removeRoom(room)
		return
	}

	for _, other := range remaining {
		if err := other.send(&signaling.Message{
			Type:   signaling.TypeBye,
			Source: p.id,
		}); err != nil {
			other.logger.WithError(err).Debugln("relay failed to send bye")
		}
	}
}

// markClosed closes the room if it has no peers.
func (room *Room) markClosed() bool {
	room.Lock()
	defer room.Unlock()

	if room.closed || len(room.peers) > 0 {
		return false
	}
	room.closed = true
	room.state.Close(room.manager.ctx)
	return true
}

func (room *Room) idleSince(now time.Time) time.Duration {
	room.RLock()
	defer room.RUnlock()

	if len(room.peers) > 0 {
		return 0
	}
	return now.Sub(room.idle)
}

func (room *Room) otherPeer(p *peer) *peer {
	for _, other := range room.peers {
		if other != p {
			return other
		}
	}
	return nil
}

// handleMessage processes a message received from source.
func (room *Room) handleMessage(ctx context.Context, source *peer, message *signaling.Message) error {
	switch message.Type {
	case signaling.TypeOffer, signaling.TypeAnswer:
		room.manager.messagesTotal.WithLabelValues(message.Type).Inc()
		return room.handleDescription(ctx, source, message)

	case signaling.TypeBye:
		// The peer leaves, which notifies the other peer.
		room.manager.messagesTotal.WithLabelValues(message.Type).Inc()
		return nil

	case signaling.TypeCandidate:
		room.manager.messagesTotal.WithLabelValues(message.Type).Inc()
		room.RLock()
		target := room.otherPeer(source)
		room.RUnlock()
		if target == nil {
			return source.send(signaling.NewErrorMessage("no peer in room"))
		}
		return target.send(&signaling.Message{
			Type:      message.Type,
			Candidate: message.Candidate,
			Source:    source.id,
		})

	default:
		room.manager.messagesTotal.WithLabelValues("unknown").Inc()
		return source.send(signaling.NewErrorMessage(fmt.Sprintf("unknown message type: %s", message.Type)))
	}
}

func (room *Room) handleDescription(ctx context.Context, source *peer, message *signaling.Message) error {
	target, out, rejected := func() (*peer, *signaling.Message, string) {
		room.Lock()
		defer room.Unlock()

		target := room.otherPeer(source)
		if target == nil {
			return nil, nil, "no peer in room"
		}
		if !room.state.Can(message.Type) {
			return nil, nil, fmt.Sprintf("%s not allowed in signaling state %s", message.Type, room.state.Current())
		}
		if message.Type == signaling.TypeAnswer && room.offerer == source {
			return nil, nil, "answer must come from the peer which received the offer"
		}

		result, err := room.manager.transformer.Transform(message.SDP, room.policy)
		if err != nil {
			return nil, nil, fmt.Sprintf("%s rejected: %v", message.Type, err)
		}
		if !result.Applicable {
			source.logger.WithField("reason", result.Reason).Debugln("relay room policy not applicable")
		}

		if err = room.state.Fire(ctx, message.Type); err != nil {
			return nil, nil, err.Error()
		}
		if message.Type == signaling.TypeOffer {
			room.offerer = source
		} else {
			room.offerer = nil
		}

		return target, &signaling.Message{
			Type:   message.Type,
			SDP:    result.SDP,
			Source: source.id,
		}, ""
	}()
	if rejected != "" {
		source.logger.WithField("type", message.Type).Debugln("relay rejected session description: " + rejected)
		return source.send(signaling.NewErrorMessage(rejected))
	}

	return target.send(out)
}
