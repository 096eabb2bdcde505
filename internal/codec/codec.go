// Package codec decodes and validates the closed set of wire envelopes
// defined in internal/model. Decoding is total: every byte slice either
// produces a validated *model.Message or a *DecodeError describing why it
// was rejected. No variant-specific type escapes this package; callers work
// with model.Message and trust that required fields for its Type are set.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/adwski/meetsignal/internal/model"
)

// DecodeError is returned for malformed JSON, an unknown type tag, or a
// variant missing/mis-kinding a required field. It always maps to the
// generic protocol error envelope on the wire (spec: no code, socket stays
// open).
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid message: %s", e.Reason)
}

// inboundTypes enumerates the tags a client is allowed to send. Outbound-only
// types (participant-joined, participant-left, waiting-room, error) are
// rejected from a client the same as an unknown tag would be.
var inboundTypes = map[string]func(*model.Message) error{
	model.TypeJoin:            requireFields("name"),
	model.TypeLeave:           requireNone,
	model.TypeOffer:           requireFields("targetId", "sdp"),
	model.TypeAnswer:          requireFields("targetId", "sdp"),
	model.TypeICE:             requireFields("targetId", "candidate"),
	model.TypeFileOffer:       requireFields("targetId", "fileName"),
	model.TypeFileAnswer:      requireFields("targetId", "accepted"),
	model.TypeFileChunk:       requireFields("targetId", "chunk"),
	model.TypeQualityChange:   requireFields("targetId", "quality"),
	model.TypeChat:            requireFields("text"),
	model.TypeParticipantUpdated: requireAnyOf("isMuted", "isVideoOff", "isHandRaised"),
	model.TypeRaiseHand:       requireNone,
	model.TypeLowerHand:       requireNone,
	model.TypeModeratorAction: requireFields("targetId", "action"),
	model.TypeRoomLocked:      requireNone,
	model.TypeRoomUnlocked:    requireNone,
	model.TypeAdmitUser:       requireFields("targetId"),
	model.TypeRejectUser:      requireFields("targetId"),
}

// Decode parses raw into a model.Message and validates it against the
// variant named by its Type field.
func Decode(raw []byte) (*model.Message, error) {
	var msg model.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, &DecodeError{Reason: "malformed JSON"}
	}
	if msg.Type == "" {
		return nil, &DecodeError{Reason: "missing type"}
	}
	validate, ok := inboundTypes[msg.Type]
	if !ok {
		return nil, &DecodeError{Reason: "unknown type: " + msg.Type}
	}
	if err := validate(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func requireNone(*model.Message) error { return nil }

func requireFields(fields ...string) func(*model.Message) error {
	return func(m *model.Message) error {
		for _, f := range fields {
			if !fieldPresent(m, f) {
				return &DecodeError{Reason: "missing required field: " + f}
			}
		}
		return nil
	}
}

func requireAnyOf(fields ...string) func(*model.Message) error {
	return func(m *model.Message) error {
		for _, f := range fields {
			if fieldPresent(m, f) {
				return nil
			}
		}
		return &DecodeError{Reason: "at least one of " + joinFields(fields) + " is required"}
	}
}

func joinFields(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += ", "
		}
		out += f
	}
	return out
}

func fieldPresent(m *model.Message, field string) bool {
	switch field {
	case "name":
		return m.Name != ""
	case "text":
		return m.Text != ""
	case "targetId":
		return m.TargetID != ""
	case "sdp":
		return m.SDP != ""
	case "candidate":
		return m.Candidate != nil
	case "fileName":
		return m.FileName != ""
	case "accepted":
		return m.Accepted != nil
	case "chunk":
		return m.Chunk != ""
	case "quality":
		return m.Quality != ""
	case "action":
		return m.Action != ""
	case "isMuted":
		return m.IsMuted != nil
	case "isVideoOff":
		return m.IsVideoOff != nil
	case "isHandRaised":
		return m.IsHandRaised != nil
	default:
		return false
	}
}

// Encode serializes an outbound message once; registry callers reuse the
// returned bytes across every recipient of a broadcast.
func Encode(msg *model.Message) ([]byte, error) {
	return json.Marshal(msg)
}
