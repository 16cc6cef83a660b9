package app

import (
	"crypto/subtle"

	"github.com/dkeye/cbradio/internal/domain"
	"github.com/zeebo/blake3"
)

// Hasher turns a plaintext password into a digest keyed only by the plaintext.
// It is a deterrent, not an authentication scheme.
type Hasher interface {
	Digest(password string) domain.Digest
}

type Blake3Hasher struct{}

func (Blake3Hasher) Digest(password string) domain.Digest {
	return domain.Digest(blake3.Sum256([]byte(password)))
}

// passwordMatches reports whether supplied hashes to want. An absent or
// empty password never matches.
func passwordMatches(h Hasher, want domain.Digest, supplied *string) bool {
	if supplied == nil || *supplied == "" || want.IsZero() {
		return false
	}
	got := h.Digest(*supplied)
	return subtle.ConstantTimeCompare(got[:], want[:]) == 1
}
