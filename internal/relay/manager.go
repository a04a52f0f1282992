/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orcaman/concurrent-map"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rogpeppe/fastuuid"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
	"stash.kopano.io/kgol/rndm"

	"stash.kopano.io/kwm/kwmsdp/sdptransform"
)

const (
	// MaxPeersPerRoom is the number of peers which can join a room.
	MaxPeersPerRoom = 2

	// DefaultRoomIdleTimeout is the time after which rooms without peers are
	// removed.
	DefaultRoomIdleTimeout = 5 * time.Minute

	roomIDLength = 22
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room is full")
	ErrRoomLimitReached = errors.New("room limit reached")
)

var guidGenerator = fastuuid.MustNewGenerator()

// Options define the settings of a Manager.
type Options struct {
	Logger  logrus.FieldLogger
	Metrics prometheus.Registerer

	// Transformer decorates all relayed offers and answers.
	Transformer *sdptransform.Transformer
	// DefaultPolicy is used for rooms created without policy.
	DefaultPolicy *sdptransform.Policy

	// MaxRooms limits the number of rooms, 0 means no limit.
	MaxRooms        int
	RoomIdleTimeout time.Duration
}

// Manager handles relay rooms.
type Manager struct {
	logger logrus.FieldLogger
	ctx    context.Context

	transformer     *sdptransform.Transformer
	defaultPolicy   *sdptransform.Policy
	maxRooms        int
	roomIdleTimeout time.Duration

	mutex deadlock.Mutex
	rooms cmap.ConcurrentMap

	wg     sync.WaitGroup
	active int64

	roomsGauge    prometheus.Gauge
	messagesTotal *prometheus.CounterVec
}

// NewManager creates a Manager bound to ctx. All connections are closed when
// ctx is done.
func NewManager(ctx context.Context, options *Options) (*Manager, error) {
	if options == nil || options.Logger == nil {
		return nil, fmt.Errorf("relay manager requires options with logger")
	}
	if options.Transformer == nil {
		return nil, fmt.Errorf("relay manager requires a transformer")
	}

	policy := options.DefaultPolicy
	if policy == nil {
		policy = &sdptransform.Policy{}
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid default relay policy: %w", err)
	}

	m := &Manager{
		logger: options.Logger.WithField("manager", "relay"),
		ctx:    ctx,

		transformer:     options.Transformer,
		defaultPolicy:   policy,
		maxRooms:        options.MaxRooms,
		roomIdleTimeout: options.RoomIdleTimeout,

		rooms: cmap.New(),

		roomsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_rooms",
			Help: "Number of open relay rooms",
		}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Number of signaling messages received by type",
		}, []string{"type"}),
	}
	if m.roomIdleTimeout <= 0 {
		m.roomIdleTimeout = DefaultRoomIdleTimeout
	}

	if options.Metrics != nil {
		for _, c := range []prometheus.Collector{m.roomsGauge, m.messagesTotal} {
			if err := options.Metrics.Register(c); err != nil {
				return nil, fmt.Errorf("failed to register relay metrics: %w", err)
			}
		}
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.expireLoop()
	}()

	return m, nil
}

func (m *Manager) expireLoop() {
	ticker := time.NewTicker(m.roomIdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.expireIdleRooms(time.Now())
		}
	}
}

func (m *Manager) expireIdleRooms(now time.Time) {
	for item := range m.rooms.IterBuffered() {
		room := item.Val.(*Room)
		if room.idleSince(now) >= m.roomIdleTimeout {
			room.logger.Debugln("relay room idle, removing")
			m.removeRoom(room)
		}
	}
}

// CreateRoom creates a new room using policy to decorate descriptions. A nil
// policy selects the manager default.
func (m *Manager) CreateRoom(policy *sdptransform.Policy) (*Room, error) {
	if policy == nil {
		policy = m.defaultPolicy
	} else if err := policy.Validate(); err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.maxRooms > 0 && m.rooms.Count() >= m.maxRooms {
		return nil, ErrRoomLimitReached
	}

	var room *Room
	for {
		room = newRoom(m, newRoomID(), policy)
		if m.rooms.SetIfAbsent(room.id, room) {
			break
		}
	}
	m.roomsGauge.Inc()
	room.logger.WithField("policy", policy).Infoln("relay room created")

	return room, nil
}

// Room returns the room with id.
func (m *Manager) Room(id string) (*Room, bool) {
	record, ok := m.rooms.Get(id)
	if !ok {
		return nil, false
	}
	return record.(*Room), true
}

func (m *Manager) removeRoom(room *Room) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !room.markClosed() {
		return
	}
	if record, ok := m.rooms.Get(room.id); ok && record == room {
		m.rooms.Remove(room.id)
		m.roomsGauge.Dec()
		room.logger.Infoln("relay room removed")
	}
}

// NumRooms returns the number of open rooms.
func (m *Manager) NumRooms() int {
	return m.rooms.Count()
}

// NumActive returns the number of connected peers.
func (m *Manager) NumActive() uint64 {
	return uint64(atomic.LoadInt64(&m.active))
}

// Wait blocks until all connections and workers of the accociated manager
// have stopped.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func newRoomID() string {
	return base64.RawURLEncoding.EncodeToString(rndm.GenerateRandomBytes(base64.RawURLEncoding.DecodedLen(roomIDLength)))
}

func newPeerID() string {
	return guidGenerator.Hex128()
}
