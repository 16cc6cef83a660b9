package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlake3Hasher(t *testing.T) {
	req := require.New(t)
	h := Blake3Hasher{}

	req.Equal(h.Digest("x"), h.Digest("x"))
	req.NotEqual(h.Digest("x"), h.Digest("y"))
	req.False(h.Digest("").IsZero())
}

func TestPasswordMatches(t *testing.T) {
	req := require.New(t)
	h := Blake3Hasher{}
	want := h.Digest("x")

	req.True(passwordMatches(h, want, ptr("x")))
	req.False(passwordMatches(h, want, ptr("y")))
	req.False(passwordMatches(h, want, nil))
	req.False(passwordMatches(h, want, ptr("")))
	req.False(passwordMatches(h, [32]byte{}, ptr("x")))
}
