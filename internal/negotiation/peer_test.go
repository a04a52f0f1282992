/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package negotiation

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stash.kopano.io/kwm/kwmsdp/internal/signaling"
	"stash.kopano.io/kwm/kwmsdp/sdptransform"
)

type recorder struct {
	sync.Mutex
	messages []*signaling.Message
}

func (r *recorder) signal(message *signaling.Message) error {
	r.Lock()
	defer r.Unlock()

	r.messages = append(r.messages, message)
	return nil
}

func (r *recorder) first(messageType string) *signaling.Message {
	r.Lock()
	defer r.Unlock()

	for _, message := range r.messages {
		if message.Type == messageType {
			return message
		}
	}
	return nil
}

func newTestTransformer(t *testing.T) *sdptransform.Transformer {
	transformer, err := sdptransform.NewTransformer(&sdptransform.TransformerOptions{
		Logger: newTestLogger(),
	})
	require.NoError(t, err)
	return transformer
}

func newTestPeer(t *testing.T, local, remote *sdptransform.Policy) (*Peer, *recorder) {
	rec := &recorder{}
	p, err := NewPeer(&PeerOptions{
		Logger:       newTestLogger(),
		Transformer:  newTestTransformer(t),
		LocalPolicy:  local,
		RemotePolicy: remote,
		Signal:       rec.signal,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		p.Close()
	})
	return p, rec
}

func TestPeerOfferAnswerDecorated(t *testing.T) {
	ctx := context.Background()

	caller, callerSignals := newTestPeer(t, &sdptransform.Policy{
		PreferredCodec: "PCMU/8000",
		MaxBitrateKbps: 32,
	}, nil)
	_, err := caller.PeerConnection().AddTransceiverFromKind(webrtc.RTPCodecTypeAudio)
	require.NoError(t, err)

	require.NoError(t, caller.Offer(ctx))
	assert.Equal(t, signaling.StateHaveOffer, caller.State())

	offer := callerSignals.first(signaling.TypeOffer)
	require.NotNil(t, offer)
	assert.Regexp(t, regexp.MustCompile(`(?m)^m=audio \d+ UDP/TLS/RTP/SAVPF 0 `), offer.SDP)
	assert.Contains(t, offer.SDP, "b=AS:32")
	// The connection keeps the undecorated description.
	assert.NotContains(t, caller.PeerConnection().LocalDescription().SDP, "b=AS:32")

	callee, calleeSignals := newTestPeer(t, &sdptransform.Policy{
		MaxBitrateKbps: 16,
	}, &sdptransform.Policy{
		Ptime: 20,
	})
	require.NoError(t, callee.HandleMessage(ctx, offer))
	assert.Equal(t, signaling.StateStable, callee.State())
	assert.Contains(t, callee.PeerConnection().RemoteDescription().SDP, "a=ptime:20")
	assert.Contains(t, callee.PeerConnection().RemoteDescription().SDP, "b=AS:32")

	answer := calleeSignals.first(signaling.TypeAnswer)
	require.NotNil(t, answer)
	assert.Contains(t, answer.SDP, "b=AS:16")

	require.NoError(t, caller.HandleMessage(ctx, answer))
	assert.Equal(t, signaling.StateStable, caller.State())
	require.NotNil(t, caller.PeerConnection().RemoteDescription())
	assert.Contains(t, caller.PeerConnection().RemoteDescription().SDP, "b=AS:16")
}

func TestPeerQueuesCandidatesUntilRemoteDescription(t *testing.T) {
	ctx := context.Background()

	caller, callerSignals := newTestPeer(t, nil, nil)
	_, err := caller.PeerConnection().AddTransceiverFromKind(webrtc.RTPCodecTypeAudio)
	require.NoError(t, err)
	require.NoError(t, caller.Offer(ctx))
	offer := callerSignals.first(signaling.TypeOffer)
	require.NotNil(t, offer)

	callee, _ := newTestPeer(t, nil, nil)

	mid := "0"
	index := uint16(0)
	raw, err := json.Marshal(webrtc.ICECandidateInit{
		Candidate:     "candidate:1 1 udp 2130706431 127.0.0.1 50000 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &index,
	})
	require.NoError(t, err)

	require.NoError(t, callee.HandleMessage(ctx, &signaling.Message{
		Type:      signaling.TypeCandidate,
		Candidate: raw,
	}))
	assert.Equal(t, 1, callee.NumPendingCandidates())

	// End of candidates is ignored.
	require.NoError(t, callee.HandleMessage(ctx, &signaling.Message{
		Type:      signaling.TypeCandidate,
		Candidate: json.RawMessage(`{"candidate":""}`),
	}))
	assert.Equal(t, 1, callee.NumPendingCandidates())

	require.NoError(t, callee.HandleMessage(ctx, offer))
	assert.Equal(t, 0, callee.NumPendingCandidates())
}

func TestPeerRejectsUnexpectedMessages(t *testing.T) {
	ctx := context.Background()

	p, _ := newTestPeer(t, nil, nil)
	_, err := p.PeerConnection().AddTransceiverFromKind(webrtc.RTPCodecTypeAudio)
	require.NoError(t, err)

	err = p.HandleMessage(ctx, &signaling.Message{Type: signaling.TypeAnswer, SDP: "v=0\r\n"})
	assert.ErrorIs(t, err, ErrUnexpectedMsg)

	err = p.HandleMessage(ctx, &signaling.Message{Type: "nope"})
	assert.ErrorIs(t, err, ErrUnexpectedMsg)

	err = p.HandleMessage(ctx, &signaling.Message{Type: signaling.TypeError, Message: "boom"})
	assert.ErrorIs(t, err, ErrRemoteError)

	err = p.HandleMessage(ctx, &signaling.Message{Type: signaling.TypeCandidate, Candidate: json.RawMessage(`[`)})
	assert.Error(t, err)

	require.NoError(t, p.HandleMessage(ctx, &signaling.Message{Type: signaling.TypeReady}))

	// Glare, an offer while our own offer is pending.
	require.NoError(t, p.Offer(ctx))
	err = p.HandleMessage(ctx, &signaling.Message{Type: signaling.TypeOffer, SDP: "v=0\r\n"})
	assert.ErrorIs(t, err, ErrUnexpectedMsg)
	assert.Equal(t, signaling.StateHaveOffer, p.State())
	assert.ErrorIs(t, p.Offer(ctx), ErrUnexpectedMsg)
}

func TestPeerAnswerFailureEndsNegotiation(t *testing.T) {
	ctx := context.Background()

	caller, callerSignals := newTestPeer(t, nil, nil)
	_, err := caller.PeerConnection().AddTransceiverFromKind(webrtc.RTPCodecTypeAudio)
	require.NoError(t, err)
	require.NoError(t, caller.Offer(ctx))
	offer := callerSignals.first(signaling.TypeOffer)
	require.NotNil(t, offer)

	// Without the version line the decorated answer does not parse.
	transformer, err := sdptransform.NewTransformer(&sdptransform.TransformerOptions{
		Logger:       newTestLogger(),
		VerifyOutput: true,
	})
	require.NoError(t, err)
	calleeSignals := &recorder{}
	callee, err := NewPeer(&PeerOptions{
		Logger:      newTestLogger(),
		Transformer: transformer,
		LocalPolicy: &sdptransform.Policy{StripLines: []string{"v="}},
		Signal:      calleeSignals.signal,
	})
	require.NoError(t, err)
	defer callee.Close()

	err = callee.HandleMessage(ctx, offer)
	assert.Error(t, err)
	assert.Equal(t, signaling.StateClosed, callee.State())
	assert.Nil(t, calleeSignals.first(signaling.TypeAnswer))

	err = callee.HandleMessage(ctx, offer)
	assert.ErrorIs(t, err, ErrUnexpectedMsg)
}

func TestPeerByeCloses(t *testing.T) {
	ctx := context.Background()

	p, _ := newTestPeer(t, nil, nil)
	require.NoError(t, p.HandleMessage(ctx, &signaling.Message{Type: signaling.TypeBye}))
	assert.Equal(t, signaling.StateClosed, p.State())
	assert.Equal(t, webrtc.PeerConnectionStateClosed, p.PeerConnection().ConnectionState())

	assert.ErrorIs(t, p.HandleMessage(ctx, &signaling.Message{Type: signaling.TypeReady}), ErrPeerClosed)
	assert.ErrorIs(t, p.Offer(ctx), ErrPeerClosed)
	assert.NoError(t, p.Close())
}

func TestNewPeerValidatesOptions(t *testing.T) {
	_, err := NewPeer(nil)
	assert.Error(t, err)

	_, err = NewPeer(&PeerOptions{Logger: newTestLogger()})
	assert.Error(t, err)

	rec := &recorder{}
	_, err = NewPeer(&PeerOptions{
		Logger:      newTestLogger(),
		Signal:      rec.signal,
		LocalPolicy: &sdptransform.Policy{MaxBitrateKbps: 32},
	})
	assert.Error(t, err)

	_, err = NewPeer(&PeerOptions{
		Logger:      newTestLogger(),
		Signal:      rec.signal,
		Transformer: newTestTransformer(t),
		LocalPolicy: &sdptransform.Policy{MediaType: "audio video"},
	})
	assert.Error(t, err)
}
