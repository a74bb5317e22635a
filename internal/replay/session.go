package replay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/talgya/pantheon/internal/eventlog"
	"github.com/talgya/pantheon/internal/world"
)

// Rebuild folds every event with tick <= target into a fresh state.
// Events that cannot be applied are skipped and counted. A target past the
// end of the log stops at the last recorded tick.
func Rebuild(shard string, events []eventlog.GameEvent, target uint64) (*world.State, int) {
	st := world.NewState(shard)
	skipped := 0
	for _, ev := range events {
		if ev.Tick > target {
			break
		}
		if err := Apply(st, ev); err != nil {
			skipped++
			logSkip(ev, err)
		}
	}
	if n := len(events); n > 0 {
		advance(st, min(target, events[n-1].Tick))
	}
	return st, skipped
}

// EndTick returns the tick of the last event, or zero for an empty log.
func EndTick(events []eventlog.GameEvent) uint64 {
	if len(events) == 0 {
		return 0
	}
	return events[len(events)-1].Tick
}

func logSkip(ev eventlog.GameEvent, err error) {
	level := slog.LevelDebug
	if !errors.Is(err, ErrMissingEntity) {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "replay event skipped", "id", ev.ID, "type", ev.Type, "tick", ev.Tick, "error", err)
}

// LastSeason returns the number and start tick of the latest season
// recorded in events, or zero values when none is present.
func LastSeason(events []eventlog.GameEvent) (int, uint64) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type != eventlog.TypeSeasonStarted {
			continue
		}
		p, err := events[i].Decode()
		if err != nil {
			continue
		}
		s := p.(*eventlog.SeasonStarted)
		return s.Season, s.StartTick
	}
	return 0, 0
}

// Session is a seekable view over an ordered event list.
type Session struct {
	Shard     string
	Events    []eventlog.GameEvent
	StartTick uint64
	EndTick   uint64
	Speed     float64 // Ticks per second of playback

	state   *world.State
	cursor  uint64
	next    int
	carry   float64
	skipped int
}

// NewSession prepares a session over events, which must already be sorted.
// The range defaults to the ticks the events span.
func NewSession(shard string, events []eventlog.GameEvent) *Session {
	s := &Session{Shard: shard, Events: events, Speed: 1}
	if len(events) > 0 {
		s.StartTick = events[0].Tick
		s.EndTick = events[len(events)-1].Tick
	}
	s.reset()
	return s
}

func (s *Session) reset() {
	s.state = world.NewState(s.Shard)
	s.cursor = 0
	s.next = 0
	s.skipped = 0
}

// Seek moves the session to target, clamped to [StartTick, EndTick].
// Seeking backward rebuilds from empty state; seeking forward applies only
// the events after the cursor.
func (s *Session) Seek(target uint64) *world.State {
	target = min(max(target, s.StartTick), s.EndTick)
	if target < s.cursor {
		s.reset()
	}
	for s.next < len(s.Events) && s.Events[s.next].Tick <= target {
		ev := s.Events[s.next]
		if err := Apply(s.state, ev); err != nil {
			s.skipped++
			logSkip(ev, err)
		}
		s.next++
	}
	advance(s.state, target)
	s.cursor = target
	return s.state
}

// Advance plays elapsed wall time at Speed ticks per second and returns
// whether the cursor reached EndTick.
func (s *Session) Advance(elapsed time.Duration) bool {
	if s.Speed <= 0 {
		return s.cursor >= s.EndTick
	}
	s.carry += elapsed.Seconds() * s.Speed
	whole := uint64(s.carry)
	s.carry -= float64(whole)
	if whole > 0 {
		s.Seek(s.cursor + whole)
	}
	return s.cursor >= s.EndTick
}

// State is the reconstructed state at the cursor. Callers must not mutate it.
func (s *Session) State() *world.State { return s.state }

// Cursor is the tick the state reflects.
func (s *Session) Cursor() uint64 { return s.cursor }

// Skipped counts events that could not be applied since the last rebuild.
func (s *Session) Skipped() int { return s.skipped }
