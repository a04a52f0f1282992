/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package negotiation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "stash.kopano.io/kwm/kwmsdp/config"
	"stash.kopano.io/kwm/kwmsdp/internal/signaling"
	"stash.kopano.io/kwm/kwmsdp/sdptransform"
)

func TestCallNegotiatesDecoratedDescriptions(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	call, err := NewCall(ctx, &CallOptions{
		Logger: newTestLogger(),
		Config: &cfg.Config{
			ICENetworkTypes:    []string{"udp4"},
			ICEIncludeLoopback: true,
		},
		Metrics:     prometheus.NewPedanticRegistry(),
		Transformer: newTestTransformer(t),
		CallerPolicy: &sdptransform.Policy{
			PreferredCodec: "opus/48000",
			MaxBitrateKbps: 32,
			EnableDTX:      true,
		},
		CalleePolicy: &sdptransform.Policy{
			MaxBitrateKbps: 16,
		},
		ConnectTimeout: 2 * time.Second,
		StatsInterval:  100 * time.Millisecond,
	})
	require.NoError(t, err)

	err = call.Run(ctx)
	if err != nil && !errors.Is(err, ErrNotConnected) {
		require.NoError(t, err)
	}

	assert.Equal(t, signaling.StateClosed, call.Caller().State())
	assert.Equal(t, signaling.StateClosed, call.Callee().State())

	remote := call.Callee().PeerConnection().RemoteDescription()
	require.NotNil(t, remote)
	assert.Contains(t, remote.SDP, "b=AS:32")
	assert.Contains(t, remote.SDP, "usedtx=1")

	remote = call.Caller().PeerConnection().RemoteDescription()
	require.NotNil(t, remote)
	assert.Contains(t, remote.SDP, "b=AS:16")

	assert.NoError(t, call.Close())
}

func TestNewCallValidatesOptions(t *testing.T) {
	ctx := context.Background()

	_, err := NewCall(ctx, nil)
	assert.Error(t, err)

	_, err = NewCall(ctx, &CallOptions{Logger: newTestLogger()})
	assert.Error(t, err)

	_, err = NewCall(ctx, &CallOptions{
		Logger:       newTestLogger(),
		Transformer:  newTestTransformer(t),
		CallerPolicy: &sdptransform.Policy{StripLines: []string{"m="}},
	})
	assert.Error(t, err)
}

func TestCallCountsMedia(t *testing.T) {
	c := &Call{}

	c.handleRTP(&rtp.Packet{Payload: []byte{0xf8, 0xff, 0xfe}})
	c.handleRTP(&rtp.Packet{Payload: []byte{0xf8}})
	assert.Equal(t, uint64(2), c.PacketsReceived())
	assert.Equal(t, uint64(4), c.BytesReceived())

	c.handleRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{},
		&rtcp.ReceiverReport{Reports: []rtcp.ReceptionReport{{FractionLost: 12}}},
	})
	assert.Equal(t, uint8(12), c.FractionLost())
}
