/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kwmsdpd.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfigFile(t, `
listen = "127.0.0.1:9999"

[policy]
preferred_codec = "opus/48000"
max_bitrate_kbps = 32
enable_dtx = true
enable_fec = false
ptime = 20
strip_lines = ["b=TIAS:"]
verify_output = true

[log]
level = "debug"
timestamp = false
file = "/tmp/kwmsdpd.log"
max_size_mb = 10

[relay]
max_rooms = 5
room_idle_timeout = "90s"

[ice]
network_types = ["udp4"]
udp_port_range = "40000:40100"
include_loopback = true
`)

	f, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", f.Listen)
	assert.Equal(t, "debug", f.Log.Level)
	require.NotNil(t, f.Log.Timestamp)
	assert.False(t, *f.Log.Timestamp)
	assert.Equal(t, "/tmp/kwmsdpd.log", f.Log.File)
	assert.Equal(t, 10, f.Log.MaxSizeMB)
	assert.Equal(t, 5, f.Relay.MaxRooms)
	assert.Equal(t, "90s", f.Relay.RoomIdleTimeout)
	assert.Equal(t, []string{"udp4"}, f.ICE.NetworkTypes)
	assert.Equal(t, "40000:40100", f.ICE.UDPPortRange)
	assert.True(t, f.ICE.IncludeLoopback)
	assert.True(t, f.Policy.VerifyOutput)

	policy := f.Policy.Policy()
	assert.Equal(t, "opus/48000", policy.PreferredCodec)
	assert.Equal(t, uint32(32), policy.MaxBitrateKbps)
	assert.True(t, policy.EnableDTX)
	assert.False(t, policy.FECEnabled())
	assert.Equal(t, uint32(20), policy.Ptime)
	assert.Equal(t, []string{"b=TIAS:"}, policy.StripLines)
	assert.Equal(t, "audio", policy.Media())
	assert.NoError(t, policy.Validate())
}

func TestLoadFileDefaults(t *testing.T) {
	f, err := LoadFile(writeConfigFile(t, "[policy]\npreferred_codec = \"PCMU/8000\"\n"))
	require.NoError(t, err)

	policy := f.Policy.Policy()
	assert.Nil(t, policy.EnableFEC)
	assert.True(t, policy.FECEnabled())
	assert.Nil(t, f.Log.Timestamp)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = LoadFile(writeConfigFile(t, "[policy]\nunknown_option = 1\n"))
	assert.Error(t, err)
}

func TestParseUDPPortRange(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want [2]uint16
		err  bool
	}{
		{in: "40000:40100", want: [2]uint16{40000, 40100}},
		{in: "40000", want: [2]uint16{40000, 65535}},
		{in: ":20000", want: [2]uint16{10000, 20000}},
		{in: "40000:30000", err: true},
		{in: "x:30000", err: true},
		{in: "1000:70000", err: true},
	} {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseUDPPortRange(tc.in)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
