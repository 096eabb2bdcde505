package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adwski/meetsignal/internal/codec"
	"github.com/adwski/meetsignal/internal/model"
)

func TestDecode_RejectsMalformedJSON(t *testing.T) {
	_, err := codec.Decode([]byte("{not json"))
	require.Error(t, err)
}

func TestDecode_RejectsUnknownType(t *testing.T) {
	_, err := codec.Decode([]byte(`{"type":"self-destruct"}`))
	require.Error(t, err)
}

func TestDecode_RejectsMissingRequiredField(t *testing.T) {
	_, err := codec.Decode([]byte(`{"type":"join"}`))
	require.Error(t, err)
}

func TestDecode_AcceptsValidJoin(t *testing.T) {
	msg, err := codec.Decode([]byte(`{"type":"join","roomId":"ABC123","name":"alice"}`))
	require.NoError(t, err)
	assert.Equal(t, model.TypeJoin, msg.Type)
	assert.Equal(t, "alice", msg.Name)
}

func TestDecode_OfferRequiresTargetAndSDP(t *testing.T) {
	_, err := codec.Decode([]byte(`{"type":"offer","targetId":"p1"}`))
	assert.Error(t, err, "offer without sdp must be rejected")

	msg, err := codec.Decode([]byte(`{"type":"offer","targetId":"p1","sdp":"v=0..."}`))
	require.NoError(t, err)
	assert.Equal(t, "p1", msg.TargetID)
}

func TestDecode_ParticipantUpdatedRequiresAtLeastOneFlag(t *testing.T) {
	_, err := codec.Decode([]byte(`{"type":"participant-updated"}`))
	assert.Error(t, err)

	msg, err := codec.Decode([]byte(`{"type":"participant-updated","isMuted":true}`))
	require.NoError(t, err)
	require.NotNil(t, msg.IsMuted)
	assert.True(t, *msg.IsMuted)
}

func TestDecode_RejectsOutboundOnlyTypeFromClient(t *testing.T) {
	_, err := codec.Decode([]byte(`{"type":"participant-joined"}`))
	assert.Error(t, err, "outbound-only types are not a valid client-to-server tag")
}

func TestEncodeDecode_EncodedErrorIsRejectedAsInbound(t *testing.T) {
	original := model.NewError("ROOM1", "Room is full", "", 1234)

	raw, err := codec.Encode(original)
	require.NoError(t, err)

	decoded, err := codec.Decode(raw)
	require.Error(t, err, "error is outbound-only, must not be accepted as inbound")
	_ = decoded
}
