package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/cbradio/internal/core"
	"github.com/rs/zerolog/log"
)

const DefaultSweepPeriod = 30 * time.Second

type probeEntry struct {
	probe core.Probe
	alive bool
}

// Sweeper evicts connections that do not answer a probe within one period.
//
// Each tick terminates every connection still awaiting an ack from the
// previous tick, then marks the rest as awaiting and probes them.
// Terminating the transport must make the session run its close path,
// which is where the channel leave happens.
type Sweeper struct {
	mu     sync.Mutex
	probes map[core.SessionID]*probeEntry
	period time.Duration

	// OnEvict, if set, is called once per terminated session.
	OnEvict func(core.SessionID)
}

func NewSweeper(period time.Duration) *Sweeper {
	if period <= 0 {
		period = DefaultSweepPeriod
	}
	return &Sweeper{
		probes: make(map[core.SessionID]*probeEntry),
		period: period,
	}
}

func (s *Sweeper) Track(sid core.SessionID, p core.Probe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes[sid] = &probeEntry{probe: p, alive: true}
}

func (s *Sweeper) Forget(sid core.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.probes, sid)
}

// Ack records a liveness acknowledgment for sid.
func (s *Sweeper) Ack(sid core.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.probes[sid]; ok {
		e.alive = true
	}
}

func (s *Sweeper) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.probes)
}

// Tick runs one sweep and returns the evicted sessions.
func (s *Sweeper) Tick() []core.SessionID {
	var (
		evicted []core.SessionID
		dead    []core.Probe
		ping    = make(map[core.SessionID]core.Probe)
	)
	s.mu.Lock()
	for sid, e := range s.probes {
		if !e.alive {
			delete(s.probes, sid)
			evicted = append(evicted, sid)
			dead = append(dead, e.probe)
			continue
		}
		e.alive = false
		ping[sid] = e.probe
	}
	s.mu.Unlock()

	for i, p := range dead {
		log.Info().Str("module", "app.liveness").Str("sid", string(evicted[i])).Msg("no ack since last sweep, terminating")
		p.Terminate()
		if s.OnEvict != nil {
			s.OnEvict(evicted[i])
		}
	}
	for sid, p := range ping {
		if err := p.Ping(); err != nil {
			log.Debug().Err(err).Str("module", "app.liveness").Str("sid", string(sid)).Msg("ping failed")
		}
	}
	return evicted
}

// Run ticks every period until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	log.Info().Str("module", "app.liveness").Dur("period", s.period).Msg("liveness sweep started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.liveness").Msg("liveness sweep stopped")
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}
