package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Peercall/internal/domain"
	"github.com/dkeye/Peercall/internal/protocol"
)

func TestDecodeOffer(t *testing.T) {
	raw := []byte(`{"v":1,"type":"call-offer","from":"alice","to":"bob","sdp":"v=0...","callType":"video","displayName":"Alice"}`)

	msg, err := protocol.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeCallOffer, msg.Type)
	assert.Equal(t, domain.UserID("alice"), msg.From)
	assert.Equal(t, domain.UserID("bob"), msg.To)
	assert.Equal(t, "v=0...", msg.SDP)
	assert.Equal(t, domain.CallVideo, msg.Kind())
}

func TestDecodeMissingType(t *testing.T) {
	_, err := protocol.Decode([]byte(`{"v":1,"from":"alice"}`))
	require.ErrorIs(t, err, protocol.ErrMissingType)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := protocol.Decode([]byte(`{"type":`))
	require.Error(t, err)
}

func TestCandidateRoundTrip(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	msg, err := protocol.Decode([]byte(`{"v":1,"type":"ice-candidate","from":"bob","to":"alice","candidate":"candidate:1 1 udp ...","sdpMid":"0","sdpMLineIndex":0}`))
	require.NoError(t, err)

	ci := msg.CandidateInit()
	assert.Equal(t, "candidate:1 1 udp ...", ci.Candidate)
	require.NotNil(t, ci.SDPMid)
	assert.Equal(t, mid, *ci.SDPMid)
	require.NotNil(t, ci.SDPMLineIndex)
	assert.Equal(t, idx, *ci.SDPMLineIndex)
}

func TestCandidateOmitsAbsentFields(t *testing.T) {
	msg, err := protocol.Decode([]byte(`{"v":1,"type":"ice-candidate","from":"bob","candidate":"candidate:1"}`))
	require.NoError(t, err)
	assert.Nil(t, msg.SDPMid)
	assert.Nil(t, msg.SDPMLineIndex)
}

func TestKindDefaultsToAudio(t *testing.T) {
	assert.Equal(t, domain.CallAudio, protocol.Message{CallType: ""}.Kind())
	assert.Equal(t, domain.CallAudio, protocol.Message{CallType: "hologram"}.Kind())
	assert.Equal(t, domain.CallVideo, protocol.Message{CallType: "video"}.Kind())
}

func TestEncodeOmitsEmptyFields(t *testing.T) {
	data, err := protocol.NewCallReject("alice", "bob").Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1,"type":"call-reject","from":"alice","to":"bob"}`, string(data))
}

func TestRegisterCarriesVersion(t *testing.T) {
	msg := protocol.NewRegister("alice")
	assert.Equal(t, protocol.SchemaVersion, msg.V)
	assert.Equal(t, protocol.TypeRegister, msg.Type)
	assert.Empty(t, msg.To)
}
