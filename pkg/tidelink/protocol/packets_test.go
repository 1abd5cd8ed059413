package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePacketByOp(t *testing.T) {
	pkt, err := DecodePacket([]byte(`{"op":"ready","resumed":true,"sessionId":"abc"}`))
	require.NoError(t, err)
	ready, ok := pkt.(*ReadyPacket)
	require.True(t, ok)
	assert.True(t, ready.Resumed)
	assert.Equal(t, "abc", ready.SessionID)
	assert.Equal(t, OpReady, ready.Op())

	pkt, err = DecodePacket([]byte(`{"op":"playerUpdate","guildId":"g1","state":{"time":5,"position":100,"connected":true,"ping":12}}`))
	require.NoError(t, err)
	pu, ok := pkt.(*PlayerUpdatePacket)
	require.True(t, ok)
	assert.Equal(t, "g1", pu.GuildID)
	assert.EqualValues(t, 100, pu.State.Position)
	assert.EqualValues(t, 12, pu.State.Ping)

	pkt, err = DecodePacket([]byte(`{"op":"stats","players":4,"playingPlayers":2,"uptime":12345,"cpu":{"cores":8}}`))
	require.NoError(t, err)
	st, ok := pkt.(*StatsPacket)
	require.True(t, ok)
	assert.Equal(t, 4, st.Players)
	assert.Equal(t, 8, st.CPU.Cores)
	assert.Nil(t, st.FrameStats)
}

func TestDecodePacketEvents(t *testing.T) {
	cases := []struct {
		name string
		data string
		want EventType
	}{
		{"start", `{"op":"event","type":"TrackStartEvent","guildId":"g1","track":{"encoded":"x"}}`, EventTrackStart},
		{"end", `{"op":"event","type":"TrackEndEvent","guildId":"g1","track":{"encoded":"x"},"reason":"finished"}`, EventTrackEnd},
		{"exception", `{"op":"event","type":"TrackExceptionEvent","guildId":"g1","track":{"encoded":"x"},"exception":{"message":"boom","severity":"common"}}`, EventTrackException},
		{"stuck", `{"op":"event","type":"TrackStuckEvent","guildId":"g1","track":{"encoded":"x"},"thresholdMs":4000}`, EventTrackStuck},
		{"closed", `{"op":"event","type":"WebSocketClosedEvent","guildId":"g1","code":4006,"reason":"invalid session","byRemote":true}`, EventWebSocketClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pkt, err := DecodePacket([]byte(tc.data))
			require.NoError(t, err)
			ev, ok := pkt.(EventPacket)
			require.True(t, ok)
			assert.Equal(t, tc.want, ev.EventType())
			assert.Equal(t, "g1", ev.EventGuildID())
			assert.Equal(t, OpEvent, ev.Op())
		})
	}
}

func TestDecodePacketEventFields(t *testing.T) {
	pkt, err := DecodePacket([]byte(`{"op":"event","type":"TrackEndEvent","guildId":"g1","track":{"encoded":"x"},"reason":"loadFailed"}`))
	require.NoError(t, err)
	end := pkt.(*TrackEndPacket)
	assert.Equal(t, EndReasonLoadFailed, end.Reason)

	pkt, err = DecodePacket([]byte(`{"op":"event","type":"WebSocketClosedEvent","guildId":"g1","code":4015,"reason":"crash","byRemote":true}`))
	require.NoError(t, err)
	closed := pkt.(*WebSocketClosedPacket)
	assert.Equal(t, 4015, closed.Code)
	assert.True(t, closed.ByRemote)
}

func TestDecodePacketUnknownOpIsRaw(t *testing.T) {
	pkt, err := DecodePacket([]byte(`{"op":"somethingNew","payload":1}`))
	require.NoError(t, err)
	raw, ok := pkt.(*RawPacket)
	require.True(t, ok)
	assert.Equal(t, Op("somethingNew"), raw.Op())
	assert.JSONEq(t, `{"op":"somethingNew","payload":1}`, string(raw.Data))
}

func TestDecodePacketErrors(t *testing.T) {
	_, err := DecodePacket([]byte(`{not json`))
	assert.Error(t, err)

	_, err = DecodePacket([]byte(`{"op":"event","type":"NoSuchEvent","guildId":"g1"}`))
	assert.Error(t, err)
}

func TestEndReasonMayStartNext(t *testing.T) {
	assert.True(t, EndReasonFinished.MayStartNext())
	assert.True(t, EndReasonLoadFailed.MayStartNext())
	assert.False(t, EndReasonStopped.MayStartNext())
	assert.False(t, EndReasonReplaced.MayStartNext())
	assert.False(t, EndReasonCleanup.MayStartNext())
}

func TestResumableVoiceClose(t *testing.T) {
	assert.True(t, ResumableVoiceClose(4015))
	assert.True(t, ResumableVoiceClose(4009))
	assert.False(t, ResumableVoiceClose(4004))
	assert.False(t, ResumableVoiceClose(4006))
	assert.False(t, ResumableVoiceClose(4014))
	assert.False(t, ResumableVoiceClose(1000))
}

func TestUpdatePlayerTrackNullEncoded(t *testing.T) {
	// A nil Encoded must serialize as an explicit null, which stops the
	// node-side player; omitting the key would leave it playing.
	data, err := json.Marshal(UpdatePlayerPayload{Track: &UpdatePlayerTrack{Encoded: nil}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"track":{"encoded":null}}`, string(data))

	encoded := "abc"
	data, err = json.Marshal(UpdatePlayerPayload{Track: &UpdatePlayerTrack{Encoded: &encoded}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"track":{"encoded":"abc"}}`, string(data))

	// Untouched fields stay off the wire entirely.
	paused := true
	data, err = json.Marshal(UpdatePlayerPayload{Paused: &paused})
	require.NoError(t, err)
	assert.JSONEq(t, `{"paused":true}`, string(data))
}

func TestLoadResultAccessors(t *testing.T) {
	lr := LoadResult{LoadType: LoadTypeTrack, Data: []byte(`{"encoded":"e","info":{"title":"T","sourceName":"youtube"}}`)}
	track, err := lr.Track()
	require.NoError(t, err)
	assert.Equal(t, "T", track.Info.Title)

	lr = LoadResult{LoadType: LoadTypePlaylist, Data: []byte(`{"info":{"name":"Mix","selectedTrack":0},"tracks":[{"encoded":"e1"},{"encoded":"e2"}]}`)}
	pl, err := lr.Playlist()
	require.NoError(t, err)
	assert.Equal(t, "Mix", pl.Info.Name)
	assert.Len(t, pl.Tracks, 2)

	lr = LoadResult{LoadType: LoadTypeError, Data: []byte(`{"message":"rate limited","severity":"suspicious","cause":"upstream"}`)}
	exc, err := lr.Exception()
	require.NoError(t, err)
	assert.Equal(t, "rate limited: upstream", exc.Error())
}
