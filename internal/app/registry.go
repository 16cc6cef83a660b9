package app

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/cbradio/internal/core"
	"github.com/dkeye/cbradio/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type channelState struct {
	meta    domain.Channel
	members []core.Member
}

func (c *channelState) indexOf(uid domain.UserID) int {
	return slices.IndexFunc(c.members, func(m core.Member) bool { return m.UserID == uid })
}

func (c *channelState) peersOf(uid domain.UserID) []domain.UserID {
	return lo.FilterMap(c.members, func(m core.Member, _ int) (domain.UserID, bool) {
		return m.UserID, m.UserID != uid
	})
}

// JoinResult is what a successful join reports back to the caller.
type JoinResult struct {
	ChannelID domain.ChannelID
	UserID    domain.UserID
	Peers     []domain.UserID
	IsPrivate bool
}

// ChannelSummary is one row of the channel listing.
type ChannelSummary struct {
	ID        domain.ChannelID `json:"id"`
	UserCount int              `json:"userCount"`
	IsPrivate bool             `json:"isPrivate"`
}

type Option func(*Registry)

func WithHasher(h Hasher) Option { return func(r *Registry) { r.hasher = h } }

func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

func WithPolicy(p Policy) Option { return func(r *Registry) { r.policy = p } }

// Registry is the process-wide channel map.
//
// Every operation runs under one mutex, so Join/Leave/Relay never observe a
// half-updated member list. Frames are handed to members with the
// non-blocking TrySend while the lock is held; per-connection notification
// order equals mutation order.
type Registry struct {
	mu       sync.Mutex
	channels map[domain.ChannelID]*channelState
	hasher   Hasher
	policy   Policy
	now      func() time.Time
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		channels: make(map[domain.ChannelID]*channelState),
		hasher:   Blake3Hasher{},
		policy:   SimplePolicy{Action: DropFrame},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreatePrivate creates a password-gated channel and joins its creator.
// prev is the creator's current channel, released before the join.
func (r *Registry) CreatePrivate(id domain.ChannelID, password string, m core.Member, prev domain.ChannelID) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.channels[id]; ok {
		return JoinResult{}, fmt.Errorf("create channel %q: %w", id, domain.ErrChannelExists)
	}
	if prev != "" {
		r.leaveLocked(prev, m.UserID)
	}
	r.channels[id] = &channelState{meta: domain.Channel{
		ID:        id,
		IsPrivate: true,
		Digest:    r.hasher.Digest(password),
		CreatedBy: m.UserID,
		CreatedAt: r.now(),
	}}
	log.Info().Str("module", "app.registry").Str("channel", string(id)).Str("user", string(m.UserID)).Msg("private channel created")

	res := r.joinLocked(r.channels[id], m)
	r.sendLocked(id, m, core.ChannelCreated{Type: core.TypeChannelCreated, ChannelID: id})
	return res, nil
}

// Join adds m to channel id, creating it as public when it does not exist
// and no password was supplied. A private channel requires password to hash
// to its digest. A password aimed at a channel that no longer exists fails the
// same way, so a vanished private scope cannot be told apart from a wrong
// password. On failure the caller keeps its previous membership. On success
// prev is left first, with its cleanup and notifications done before the new
// channel is touched.
func (r *Registry) Join(id domain.ChannelID, m core.Member, password *string, prev domain.ChannelID) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, exists := r.channels[id]
	gated := (exists && ch.meta.IsPrivate) || (!exists && password != nil && *password != "")
	if gated && (!exists || !passwordMatches(r.hasher, ch.meta.Digest, password)) {
		log.Info().Str("module", "app.registry").Str("channel", string(id)).Str("user", string(m.UserID)).Msg("join rejected")
		return JoinResult{}, fmt.Errorf("join channel %q: %w", id, domain.ErrWrongPassword)
	}

	if exists && ch.indexOf(m.UserID) >= 0 {
		res := JoinResult{ChannelID: id, UserID: m.UserID, Peers: ch.peersOf(m.UserID), IsPrivate: ch.meta.IsPrivate}
		r.sendLocked(id, m, joinedEvent(res))
		return res, nil
	}

	if prev != "" && prev != id {
		r.leaveLocked(prev, m.UserID)
	}
	if !exists {
		ch = &channelState{meta: domain.Channel{ID: id, CreatedBy: m.UserID, CreatedAt: r.now()}}
		r.channels[id] = ch
	}
	return r.joinLocked(ch, m), nil
}

func (r *Registry) joinLocked(ch *channelState, m core.Member) JoinResult {
	ch.members = append(ch.members, m)
	res := JoinResult{
		ChannelID: ch.meta.ID,
		UserID:    m.UserID,
		Peers:     ch.peersOf(m.UserID),
		IsPrivate: ch.meta.IsPrivate,
	}
	r.sendLocked(ch.meta.ID, m, joinedEvent(res))
	r.broadcastLocked(ch, m.UserID, core.PeerJoined{Type: core.TypePeerJoined, UserID: m.UserID})

	log.Info().
		Str("module", "app.registry").
		Str("channel", string(ch.meta.ID)).
		Str("user", string(m.UserID)).
		Int("members", len(ch.members)).
		Bool("private", ch.meta.IsPrivate).
		Msg("joined")
	return res
}

func joinedEvent(res JoinResult) core.ChannelJoined {
	peers := res.Peers
	if peers == nil {
		peers = []domain.UserID{}
	}
	return core.ChannelJoined{
		Type:      core.TypeChannelJoined,
		ChannelID: res.ChannelID,
		UserID:    res.UserID,
		Peers:     peers,
		IsPrivate: res.IsPrivate,
	}
}

// Leave removes uid from channel id. Unknown channels or non-members are a no-op.
// The last member leaving deletes the channel and, with it, any password.
func (r *Registry) Leave(id domain.ChannelID, uid domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(id, uid)
}

func (r *Registry) leaveLocked(id domain.ChannelID, uid domain.UserID) bool {
	ch, ok := r.channels[id]
	if !ok {
		return false
	}
	i := ch.indexOf(uid)
	if i < 0 {
		return false
	}
	ch.members = slices.Delete(ch.members, i, i+1)

	if len(ch.members) == 0 {
		delete(r.channels, id)
		log.Info().Str("module", "app.registry").Str("channel", string(id)).Bool("private", ch.meta.IsPrivate).Msg("channel removed")
		return true
	}
	r.broadcastLocked(ch, uid, core.PeerLeft{Type: core.TypePeerLeft, UserID: uid})
	log.Info().Str("module", "app.registry").Str("channel", string(id)).Str("user", string(uid)).Int("members", len(ch.members)).Msg("left")
	return true
}

// Relay forwards an opaque signaling payload, stamped with from, to every
// other member of the sender's channel. It returns the number of members
// the frame was handed to.
func (r *Registry) Relay(id domain.ChannelID, from domain.UserID, payload core.SignalPayload) (int, error) {
	if id == "" {
		return 0, nil
	}
	stamped, err := payload.WithFrom(from)
	if err != nil {
		return 0, err
	}
	frame, err := core.Encode(stamped)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[id]
	if !ok || ch.indexOf(from) < 0 {
		return 0, nil
	}
	return r.fanoutLocked(ch, from, frame), nil
}

// BroadcastPresence tells the other members whether from is transmitting.
// Nothing is remembered after the broadcast.
func (r *Registry) BroadcastPresence(id domain.ChannelID, from domain.UserID, transmitting bool) int {
	if id == "" {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[id]
	if !ok || ch.indexOf(from) < 0 {
		return 0
	}
	return r.broadcastLocked(ch, from, core.PeerTransmitting{
		Type:         core.TypePeerTransmitting,
		UserID:       from,
		Transmitting: transmitting,
	})
}

// Inspect reports existence, privacy and occupancy of a channel.
func (r *Registry) Inspect(id domain.ChannelID) domain.ChannelInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[id]
	if !ok {
		return domain.ChannelInfo{ID: id}
	}
	return domain.ChannelInfo{
		ID:        id,
		Exists:    true,
		IsPrivate: ch.meta.IsPrivate,
		UserCount: len(ch.members),
	}
}

// Members returns the user IDs of a channel in join order.
func (r *Registry) Members(id domain.ChannelID) []domain.UserID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[id]
	if !ok {
		return nil
	}
	return lo.Map(ch.members, func(m core.Member, _ int) domain.UserID { return m.UserID })
}

func (r *Registry) Stats() domain.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.Stats{
		Channels:        len(r.channels),
		PrivateChannels: lo.CountBy(lo.Values(r.channels), func(c *channelState) bool { return c.meta.IsPrivate }),
		TotalUsers:      lo.SumBy(lo.Values(r.channels), func(c *channelState) int { return len(c.members) }),
	}
}

// List returns a summary of every channel, ordered by ID.
func (r *Registry) List() []ChannelSummary {
	r.mu.Lock()
	out := lo.MapToSlice(r.channels, func(id domain.ChannelID, c *channelState) ChannelSummary {
		return ChannelSummary{ID: id, UserCount: len(c.members), IsPrivate: c.meta.IsPrivate}
	})
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b ChannelSummary) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (r *Registry) sendLocked(id domain.ChannelID, m core.Member, v any) {
	frame, err := core.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Msg("encode event")
		return
	}
	r.deliver(id, m, frame)
}

func (r *Registry) broadcastLocked(ch *channelState, exclude domain.UserID, v any) int {
	frame, err := core.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Msg("encode event")
		return 0
	}
	return r.fanoutLocked(ch, exclude, frame)
}

func (r *Registry) fanoutLocked(ch *channelState, exclude domain.UserID, frame core.Frame) int {
	sent := 0
	for _, m := range ch.members {
		if m.UserID == exclude {
			continue
		}
		if r.deliver(ch.meta.ID, m, frame) {
			sent++
		}
	}
	log.Debug().Str("module", "app.registry").Str("channel", string(ch.meta.ID)).Str("from", string(exclude)).Int("sent_to", sent).Msg("broadcast result")
	return sent
}

// deliver is best effort: closed or congested members are skipped.
// A congested member is kicked instead when the policy says so; its
// connection close path then runs the Leave.
func (r *Registry) deliver(id domain.ChannelID, m core.Member, frame core.Frame) bool {
	if m.Conn == nil || !m.Conn.IsOpen() {
		return false
	}
	err := m.Conn.TrySend(frame)
	if err == nil {
		return true
	}
	if errors.Is(err, core.ErrBackpressure) && r.policy.OnBackPressure(id, m) == KickMember {
		log.Warn().Str("module", "app.registry").Str("channel", string(id)).Str("user", string(m.UserID)).Msg("slow consumer kicked")
		m.Conn.Close()
		return false
	}
	log.Debug().Err(err).Str("module", "app.registry").Str("user", string(m.UserID)).Msg("frame dropped")
	return false
}
