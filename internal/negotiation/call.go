/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	cfg "stash.kopano.io/kwm/kwmsdp/config"
	"stash.kopano.io/kwm/kwmsdp/internal/signaling"
	"stash.kopano.io/kwm/kwmsdp/sdptransform"
)

const (
	// DefaultConnectTimeout limits the wait for the connection to establish.
	DefaultConnectTimeout = 10 * time.Second

	opusFrameDuration = 20 * time.Millisecond
	signalQueueSize   = 64
)

// ErrNotConnected is returned by Run when the call did not connect.
var ErrNotConnected = errors.New("call did not connect")

// Opus frame encoding silence.
var opusSilenceFrame = []byte{0xf8, 0xff, 0xfe}

// CallOptions define the settings of a Call.
type CallOptions struct {
	Logger  logrus.FieldLogger
	Config  *cfg.Config
	Metrics prometheus.Registerer

	Transformer *sdptransform.Transformer
	// CallerPolicy decorates the offer, CalleePolicy decorates the answer.
	CallerPolicy *sdptransform.Policy
	CalleePolicy *sdptransform.Policy

	ConnectTimeout time.Duration
	StatsInterval  time.Duration
	OnStats        func(*Stats)
}

// Call connects a caller and a callee in-process. The caller sends a silent
// opus track to the callee.
type Call struct {
	logger  logrus.FieldLogger
	options *CallOptions

	caller *Peer
	callee *Peer
	track  *webrtc.TrackLocalStaticSample

	toCaller chan *signaling.Message
	toCallee chan *signaling.Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connected     chan struct{}
	connectedOnce sync.Once

	packetsReceived uint64
	bytesReceived   uint64
	fractionLost    uint32
}

// NewCall creates the peers of a Call. The call stops when ctx is done or
// Close is called.
func NewCall(ctx context.Context, options *CallOptions) (*Call, error) {
	if options == nil || options.Logger == nil {
		return nil, errors.New("call requires options with logger")
	}
	if options.Transformer == nil {
		return nil, errors.New("call requires a transformer")
	}

	logger := options.Logger.WithField("call", guidGenerator.Hex128())
	api, err := NewAPI(options.Config, logger)
	if err != nil {
		return nil, err
	}

	c := &Call{
		logger:  logger,
		options: options,

		toCaller: make(chan *signaling.Message, signalQueueSize),
		toCallee: make(chan *signaling.Message, signalQueueSize),

		connected: make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	configuration := webrtc.Configuration{
		ICEServers:   []webrtc.ICEServer{},
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlan,
	}

	if c.caller, err = NewPeer(&PeerOptions{
		Logger:        logger.WithField("side", "caller"),
		API:           api,
		Configuration: configuration,
		Transformer:   options.Transformer,
		LocalPolicy:   options.CallerPolicy,
		Signal:        c.signalFunc(c.toCallee),
	}); err != nil {
		c.cancel()
		return nil, err
	}
	if c.callee, err = NewPeer(&PeerOptions{
		Logger:        logger.WithField("side", "callee"),
		API:           api,
		Configuration: configuration,
		Transformer:   options.Transformer,
		LocalPolicy:   options.CalleePolicy,
		Signal:        c.signalFunc(c.toCaller),
	}); err != nil {
		c.caller.Close()
		c.cancel()
		return nil, err
	}

	if c.track, err = webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:    webrtc.MimeTypeOpus,
		ClockRate:   48000,
		Channels:    2,
		SDPFmtpLine: "minptime=10;useinbandfec=1",
	}, "audio", "kwmsdp"); err != nil {
		c.close()
		return nil, fmt.Errorf("failed to create track: %w", err)
	}
	sender, err := c.caller.PeerConnection().AddTrack(c.track)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("failed to add track: %w", err)
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		// Read incoming RTCP so interceptors run.
		for {
			packets, _, readErr := sender.ReadRTCP()
			if readErr != nil {
				return
			}
			c.handleRTCP(packets)
		}
	}()

	c.caller.PeerConnection().OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.WithField("state", state).Debugln("call connection state change")
		if state == webrtc.PeerConnectionStateConnected {
			c.connectedOnce.Do(func() {
				close(c.connected)
			})
		}
	})
	c.callee.PeerConnection().OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.logger.WithFields(logrus.Fields{
			"codec": track.Codec().MimeType,
			"pt":    track.PayloadType(),
		}).Infoln("call callee received track")
		for {
			packet, _, readErr := track.ReadRTP()
			if readErr != nil {
				return
			}
			c.handleRTP(packet)
		}
	})

	c.wg.Add(2)
	go c.pump(c.toCallee, c.callee)
	go c.pump(c.toCaller, c.caller)

	return c, nil
}

func (c *Call) signalFunc(queue chan *signaling.Message) SignalFunc {
	return func(message *signaling.Message) error {
		select {
		case queue <- message:
			return nil
		case <-c.ctx.Done():
			return c.ctx.Err()
		}
	}
}

// pump delivers queued messages in order.
func (c *Call) pump(queue chan *signaling.Message, target *Peer) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case message := <-queue:
			if err := target.HandleMessage(c.ctx, message); err != nil {
				c.logger.WithError(err).WithField("type", message.Type).Warnln("call failed to handle signaling message")
			}
		}
	}
}

// Caller returns the offering peer.
func (c *Call) Caller() *Peer {
	return c.caller
}

// Callee returns the answering peer.
func (c *Call) Callee() *Peer {
	return c.callee
}

func (c *Call) handleRTP(packet *rtp.Packet) {
	atomic.AddUint64(&c.packetsReceived, 1)
	atomic.AddUint64(&c.bytesReceived, uint64(len(packet.Payload)))
}

func (c *Call) handleRTCP(packets []rtcp.Packet) {
	for _, packet := range packets {
		if rr, ok := packet.(*rtcp.ReceiverReport); ok {
			for _, report := range rr.Reports {
				atomic.StoreUint32(&c.fractionLost, uint32(report.FractionLost))
			}
		}
	}
}

// PacketsReceived returns the number of RTP packets the callee received.
func (c *Call) PacketsReceived() uint64 {
	return atomic.LoadUint64(&c.packetsReceived)
}

// BytesReceived returns the RTP payload bytes the callee received.
func (c *Call) BytesReceived() uint64 {
	return atomic.LoadUint64(&c.bytesReceived)
}

// FractionLost returns the loss of the last receiver report in 1/256 units.
func (c *Call) FractionLost() uint8 {
	return uint8(atomic.LoadUint32(&c.fractionLost))
}

// Run negotiates the call, then sends silence and polls stats until ctx is
// done. The call is closed when Run returns.
func (c *Call) Run(ctx context.Context) error {
	defer c.close()

	if err := c.caller.Offer(ctx); err != nil {
		return err
	}

	connectTimeout := c.options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	timer := time.NewTimer(connectTimeout)
	defer timer.Stop()

	select {
	case <-c.connected:
		c.logger.Infoln("call connected")
	case <-timer.C:
		return ErrNotConnected
	case <-ctx.Done():
		return ErrNotConnected
	case <-c.ctx.Done():
		return ErrNotConnected
	}

	poller, err := NewStatsPoller(c.caller.PeerConnection(), &StatsPollerOptions{
		Logger:   c.logger,
		Metrics:  c.options.Metrics,
		Interval: c.options.StatsInterval,
		OnStats:  c.options.OnStats,
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.ctx.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = poller.Run(runCtx)
	}()

	err = c.sendSilence(runCtx)
	cancel()
	wg.Wait()

	c.logger.WithFields(logrus.Fields{
		"packets_received": c.PacketsReceived(),
		"bytes_received":   c.BytesReceived(),
		"fraction_lost":    c.FractionLost(),
	}).Infoln("call ended")
	return err
}

func (c *Call) sendSilence(ctx context.Context) error {
	ticker := time.NewTicker(opusFrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.track.WriteSample(media.Sample{
				Data:     opusSilenceFrame,
				Duration: opusFrameDuration,
			}); err != nil {
				return fmt.Errorf("failed to write sample: %w", err)
			}
		}
	}
}

// Close stops the call. It is safe to call Close while Run is active.
func (c *Call) Close() error {
	c.close()
	return nil
}

func (c *Call) close() {
	c.cancel()
	if err := c.caller.Close(); err != nil {
		c.logger.WithError(err).Debugln("call caller close failed")
	}
	if c.callee != nil {
		if err := c.callee.Close(); err != nil {
			c.logger.WithError(err).Debugln("call callee close failed")
		}
	}
	c.wg.Wait()
}
