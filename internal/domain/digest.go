package domain

// Digest is a one-way digest of a channel password.
// The zero value never equals the digest of any password.
type Digest [32]byte

func (d Digest) IsZero() bool { return d == Digest{} }
