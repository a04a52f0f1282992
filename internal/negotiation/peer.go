/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package negotiation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rogpeppe/fastuuid"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"stash.kopano.io/kwm/kwmsdp/internal/signaling"
	"stash.kopano.io/kwm/kwmsdp/sdptransform"
)

var (
	ErrPeerClosed    = errors.New("peer is closed")
	ErrRemoteError   = errors.New("remote error")
	ErrUnexpectedMsg = errors.New("unexpected message")
)

var guidGenerator = fastuuid.MustNewGenerator()

// SignalFunc delivers a message to the remote peer. It is called with the
// peer lock held and must not call back into the same peer.
type SignalFunc func(message *signaling.Message) error

// PeerOptions define the settings of a Peer.
type PeerOptions struct {
	Logger logrus.FieldLogger

	API           *webrtc.API
	Configuration webrtc.Configuration

	Transformer *sdptransform.Transformer
	// LocalPolicy decorates the descriptions sent to the remote peer.
	LocalPolicy *sdptransform.Policy
	// RemotePolicy decorates received descriptions before they are applied.
	RemotePolicy *sdptransform.Policy

	Signal SignalFunc
}

// Peer wraps a PeerConnection and runs the offer/answer exchange with
// decorated session descriptions.
type Peer struct {
	deadlock.Mutex

	id     string
	logger logrus.FieldLogger

	pc *webrtc.PeerConnection

	transformer  *sdptransform.Transformer
	localPolicy  *sdptransform.Policy
	remotePolicy *sdptransform.Policy

	signal SignalFunc
	state  *signaling.State

	offering          bool
	pendingCandidates []webrtc.ICECandidateInit
	closed            bool
}

// NewPeer creates a Peer with a new PeerConnection.
func NewPeer(options *PeerOptions) (*Peer, error) {
	if options == nil || options.Logger == nil {
		return nil, errors.New("peer requires options with logger")
	}
	if options.Signal == nil {
		return nil, errors.New("peer requires a signal function")
	}
	for _, policy := range []*sdptransform.Policy{options.LocalPolicy, options.RemotePolicy} {
		if policy == nil {
			continue
		}
		if options.Transformer == nil {
			return nil, errors.New("peer policies require a transformer")
		}
		if err := policy.Validate(); err != nil {
			return nil, err
		}
	}

	api := options.API
	if api == nil {
		api = webrtc.NewAPI()
	}
	pc, err := api.NewPeerConnection(options.Configuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	id := guidGenerator.Hex128()
	p := &Peer{
		id:     id,
		logger: options.Logger.WithField("peer", id),

		pc: pc,

		transformer:  options.Transformer,
		localPolicy:  options.LocalPolicy,
		remotePolicy: options.RemotePolicy,

		signal: options.Signal,
	}
	p.state = signaling.NewState(func(from, to string) {
		p.logger.WithFields(logrus.Fields{
			"from": from,
			"to":   to,
		}).Debugln("peer signaling state change")
	})

	pc.OnICECandidate(p.onICECandidate)
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		p.logger.WithField("state", state).Debugln("peer ICE connection state change")
	})

	return p, nil
}

// ID returns the peer's ID.
func (p *Peer) ID() string {
	return p.id
}

// PeerConnection returns the wrapped PeerConnection.
func (p *Peer) PeerConnection() *webrtc.PeerConnection {
	return p.pc
}

// State returns the current signaling state.
func (p *Peer) State() string {
	p.Lock()
	defer p.Unlock()

	return p.state.Current()
}

func (p *Peer) onICECandidate(candidate *webrtc.ICECandidate) {
	if candidate == nil {
		p.logger.Debugln("peer ICE gathering complete")
		return
	}

	p.Lock()
	defer p.Unlock()
	if p.closed {
		return
	}

	raw, err := json.Marshal(candidate.ToJSON())
	if err != nil {
		p.logger.WithError(err).Errorln("peer failed to encode candidate")
		return
	}
	if err = p.signal(&signaling.Message{
		Type:      signaling.TypeCandidate,
		Candidate: raw,
	}); err != nil {
		p.logger.WithError(err).Debugln("peer failed to signal candidate")
	}
}

// decorate applies policy to text. Without policy, text is returned
// unchanged.
func (p *Peer) decorate(text string, policy *sdptransform.Policy) (string, error) {
	if policy == nil || policy.IsEmpty() {
		return text, nil
	}
	result, err := p.transformer.Transform(text, policy)
	if err != nil {
		return "", err
	}
	if len(result.Changes) > 0 {
		p.logger.WithField("changes", result.Changes).Debugln("peer session description decorated")
	}
	return result.SDP, nil
}

// Offer creates an offer and signals it decorated with the local policy.
func (p *Peer) Offer(ctx context.Context) error {
	p.Lock()
	defer p.Unlock()

	if p.closed {
		return ErrPeerClosed
	}
	if !p.state.Can(signaling.EventOffer) {
		return fmt.Errorf("%w: offer in signaling state %s", ErrUnexpectedMsg, p.state.Current())
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	// The connection must be given the description it created, only the
	// signaled copy is decorated.
	if err = p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local offer: %w", err)
	}
	text, err := p.decorate(offer.SDP, p.localPolicy)
	if err != nil {
		return fmt.Errorf("failed to decorate local offer: %w", err)
	}
	if err = p.state.Fire(ctx, signaling.EventOffer); err != nil {
		return err
	}
	p.offering = true

	return p.signal(&signaling.Message{
		Type: signaling.TypeOffer,
		SDP:  text,
	})
}

// HandleMessage processes a message received from the remote peer.
func (p *Peer) HandleMessage(ctx context.Context, message *signaling.Message) error {
	if message.Type == signaling.TypeBye {
		p.logger.Debugln("peer remote said bye")
		return p.Close()
	}

	p.Lock()
	defer p.Unlock()

	if p.closed {
		return ErrPeerClosed
	}

	switch message.Type {
	case signaling.TypeOffer:
		return p.handleOffer(ctx, message)
	case signaling.TypeAnswer:
		return p.handleAnswer(ctx, message)
	case signaling.TypeCandidate:
		return p.handleCandidate(message)
	case signaling.TypeReady:
		p.logger.Debugln("peer remote is ready")
		return nil
	case signaling.TypeError:
		p.logger.WithField("message", message.Message).Warnln("peer received error")
		return fmt.Errorf("%w: %s", ErrRemoteError, message.Message)
	default:
		return fmt.Errorf("%w: %s", ErrUnexpectedMsg, message.Type)
	}
}

func (p *Peer) handleOffer(ctx context.Context, message *signaling.Message) error {
	if !p.state.Can(signaling.EventOffer) {
		return fmt.Errorf("%w: offer in signaling state %s", ErrUnexpectedMsg, p.state.Current())
	}

	if err := p.setRemoteDescription(webrtc.SDPTypeOffer, message.SDP); err != nil {
		return err
	}

	text, err := p.createAnswer()
	if err != nil {
		// The connection cannot roll back the remote offer, negotiation ends.
		p.state.Close(ctx)
		return err
	}
	if err = p.state.Fire(ctx, signaling.EventOffer); err != nil {
		return err
	}
	p.offering = false
	if err = p.state.Fire(ctx, signaling.EventAnswer); err != nil {
		return err
	}

	return p.signal(&signaling.Message{
		Type: signaling.TypeAnswer,
		SDP:  text,
	})
}

// createAnswer sets the local answer and returns its decorated text.
func (p *Peer) createAnswer() (string, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}
	if err = p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local answer: %w", err)
	}
	text, err := p.decorate(answer.SDP, p.localPolicy)
	if err != nil {
		return "", fmt.Errorf("failed to decorate local answer: %w", err)
	}
	return text, nil
}

func (p *Peer) handleAnswer(ctx context.Context, message *signaling.Message) error {
	if !p.offering || !p.state.Can(signaling.EventAnswer) {
		return fmt.Errorf("%w: answer in signaling state %s", ErrUnexpectedMsg, p.state.Current())
	}

	if err := p.setRemoteDescription(webrtc.SDPTypeAnswer, message.SDP); err != nil {
		return err
	}
	p.offering = false

	return p.state.Fire(ctx, signaling.EventAnswer)
}

func (p *Peer) setRemoteDescription(sdpType webrtc.SDPType, text string) error {
	text, err := p.decorate(text, p.remotePolicy)
	if err != nil {
		return fmt.Errorf("failed to decorate remote %s: %w", sdpType, err)
	}
	if err = p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: sdpType,
		SDP:  text,
	}); err != nil {
		return fmt.Errorf("failed to set remote %s: %w", sdpType, err)
	}

	if len(p.pendingCandidates) > 0 {
		p.logger.WithField("count", len(p.pendingCandidates)).Debugln("peer adding queued candidates")
		for _, candidate := range p.pendingCandidates {
			if err = p.pc.AddICECandidate(candidate); err != nil {
				p.logger.WithError(err).Warnln("peer failed to add queued candidate")
			}
		}
		p.pendingCandidates = nil
	}

	return nil
}

func (p *Peer) handleCandidate(message *signaling.Message) error {
	if len(message.Candidate) == 0 {
		return nil
	}
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(message.Candidate, &candidate); err != nil {
		return fmt.Errorf("failed to parse candidate: %w", err)
	}
	if candidate.Candidate == "" {
		// End of candidates.
		return nil
	}

	if p.pc.RemoteDescription() == nil {
		p.pendingCandidates = append(p.pendingCandidates, candidate)
		return nil
	}
	if err := p.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("failed to add candidate: %w", err)
	}
	return nil
}

// NumPendingCandidates returns the number of candidates waiting for a
// remote description.
func (p *Peer) NumPendingCandidates() int {
	p.Lock()
	defer p.Unlock()

	return len(p.pendingCandidates)
}

// Close closes the peer and its connection. Closing twice is a no-op.
func (p *Peer) Close() error {
	p.Lock()
	if p.closed {
		p.Unlock()
		return nil
	}
	p.closed = true
	p.pendingCandidates = nil
	p.state.Close(context.Background())
	p.Unlock()

	// Connection callbacks take the peer lock.
	return p.pc.Close()
}
