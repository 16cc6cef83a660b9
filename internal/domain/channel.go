package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ChannelID names a channel. Clients send it either as a JSON string or a
// JSON number; both decode to the same canonical string.
type ChannelID string

func (id *ChannelID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ChannelID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("channel id: %w", ErrMalformedInput)
	}
	*id = ChannelID(canonicalNumber(n))
	return nil
}

// canonicalNumber spells n the way a JavaScript client would stringify it,
// so 19, 19.0 and 1.9e1 name the same channel.
func canonicalNumber(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	f, err := n.Float64()
	if err != nil {
		return n.String()
	}
	if f == 0 {
		return "0"
	}
	if a := math.Abs(f); a >= 1e-6 && a < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	return strings.NewReplacer("e+0", "e+", "e-0", "e-").Replace(s)
}

// Channel is the registry's view of one channel, without transport.
type Channel struct {
	ID        ChannelID
	IsPrivate bool
	Digest    Digest
	CreatedBy UserID
	CreatedAt time.Time
}

// ChannelInfo is what Inspect reveals. It never carries the digest.
type ChannelInfo struct {
	ID        ChannelID
	Exists    bool
	IsPrivate bool
	UserCount int
}

// Stats aggregates the registry for monitoring.
type Stats struct {
	Channels        int `json:"channels"`
	PrivateChannels int `json:"privateChannels"`
	TotalUsers      int `json:"totalUsers"`
}
