package registry

import "crypto/rand"

// roomCodeAlphabet excludes visually ambiguous characters (0/O, 1/I) the
// way a human reads a code aloud over a call.
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const roomCodeLength = 6

// generateRoomCode mints a 6-char uppercase alphanumeric room id, grounded
// on the hex-code generator in mikebionic-coopcinema's ServeGenerateRoom
// but drawing from an alphabet a moderator can read out loud unambiguously.
func generateRoomCode() string {
	b := make([]byte, roomCodeLength)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand failing means the platform entropy source is broken
	}
	out := make([]byte, roomCodeLength)
	for i, v := range b {
		out[i] = roomCodeAlphabet[int(v)%len(roomCodeAlphabet)]
	}
	return string(out)
}
