// Package sid generates session identifiers for connected sockets.
package sid

import (
	"math/rand/v2"
	"strings"
)

const (
	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Length is the number of characters in a session id. The sid doubles
	// as the socket's default room name, so it must be unique for the
	// lifetime of the process.
	Length = 30
)

// Generate returns a new random session id. The source is not
// cryptographically sensitive; collisions at realistic connection counts
// are negligible and not defended against.
func Generate() string {
	var b strings.Builder
	b.Grow(Length)
	for range Length {
		b.WriteByte(alphabet[rand.IntN(len(alphabet))])
	}
	return b.String()
}
