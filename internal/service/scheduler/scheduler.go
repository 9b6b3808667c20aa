// Package scheduler drives when matching attempts happen: a deferred attempt
// after session start, a redundant fixed-cadence sweep, cooldown re-matching
// after declines, and the single-shot auto-resolution timer per pairing.
//
// Timers are in-process and best-effort. Correctness never depends on them:
// the auto-resolution handler runs a guarded state transition, so a timer
// that outlives its pairing's resolution is a no-op, and a lost trigger is
// repaired by the next sweep cycle.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vlvt-app/spark/internal/app"
	"github.com/vlvt-app/spark/internal/db"
	"github.com/vlvt-app/spark/internal/event"
	"github.com/vlvt-app/spark/internal/repository"
)

// Matcher is the slice of the proximity matcher the scheduler drives.
type Matcher interface {
	FindAndCreatePairing(ctx context.Context, sessionID uint64) (*db.Pairing, error)
}

// Scheduler owns the sweep loop and all keyed one-shot timers.
type Scheduler struct {
	appCtx   *app.AppContext
	matcher  Matcher
	sessions *repository.SessionRepository
	pairings *repository.PairingRepository

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a scheduler with dependencies from AppContext.
func New(appCtx *app.AppContext, matcher Matcher) *Scheduler {
	return &Scheduler{
		appCtx:   appCtx,
		matcher:  matcher,
		sessions: repository.NewSessionRepository(appCtx.DB),
		pairings: repository.NewPairingRepository(appCtx.DB),
		timers:   make(map[string]*time.Timer),
	}
}

// Run executes the sweep on its fixed cadence until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.appCtx.Cfg.Match.SweepInterval)
	defer ticker.Stop()

	s.appCtx.Logger.Info("scheduler sweep started", "interval", s.appCtx.Cfg.Match.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			s.cancelAll()
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep attempts matching for every active session that has no active
// pairing. This is the self-healing path: a session stranded by a lost
// event-driven trigger gets picked up within one cycle. Returns how many
// pairings this pass created.
func (s *Scheduler) Sweep(ctx context.Context) int {
	now := time.Now().UTC()
	ids, err := s.sessions.ActiveSessionIDsWithoutPairing(ctx, now)
	if err != nil {
		s.appCtx.Logger.Error("sweep query failed", "err", err)
		return 0
	}

	created := 0
	for _, id := range ids {
		p, err := s.matcher.FindAndCreatePairing(ctx, id)
		if err != nil {
			s.appCtx.Logger.Error("sweep match attempt failed", "session_id", id, "err", err)
			continue
		}
		if p != nil {
			s.onPairingCreated(ctx, p)
			created++
		}
	}
	return created
}

// OnSessionStart schedules the first matching attempt a grace period after
// session creation so the client UI is ready before a pairing can appear.
func (s *Scheduler) OnSessionStart(sessionID uint64) {
	key := fmt.Sprintf("grace:session:%d", sessionID)
	s.schedule(key, s.appCtx.Cfg.Match.StartGrace, func() {
		s.attemptMatch(sessionID)
	})
}

// OnPairingResolved best-effort cancels the pairing's auto-resolution timer.
// A failed cancellation is logged and ignored: the guarded transition in the
// timer handler makes double-resolution impossible either way.
func (s *Scheduler) OnPairingResolved(pairingID uint64) {
	key := autoResolveKey(pairingID)
	if !s.cancel(key) {
		s.appCtx.Logger.Debug("auto-resolve timer already gone", "pairing_id", pairingID)
	}
}

// ScheduleRematchForUsers re-enters each user's active session into the pool
// after the given cooldown. Session lookup happens at fire time, since the
// session may end before the cooldown elapses.
func (s *Scheduler) ScheduleRematchForUsers(userIDs []uint64, after time.Duration) {
	for _, userID := range userIDs {
		uid := userID
		key := fmt.Sprintf("rematch:user:%d", uid)
		s.schedule(key, after, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			ses, err := s.sessions.ActiveByUser(ctx, uid, time.Now().UTC())
			if err != nil {
				s.appCtx.Logger.Error("rematch session lookup failed", "user_id", uid, "err", err)
				return
			}
			if ses == nil {
				return
			}
			s.attemptMatch(ses.ID)
		})
	}
}

// attemptMatch runs one matching attempt and arms the lifecycle machinery on
// success. Errors are logged only; the next sweep retries.
func (s *Scheduler) attemptMatch(sessionID uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	p, err := s.matcher.FindAndCreatePairing(ctx, sessionID)
	if err != nil {
		s.appCtx.Logger.Error("match attempt failed", "session_id", sessionID, "err", err)
		return
	}
	if p != nil {
		s.onPairingCreated(ctx, p)
	}
}

// onPairingCreated arms the auto-resolution timer and announces the pairing.
func (s *Scheduler) onPairingCreated(ctx context.Context, p *db.Pairing) {
	s.armAutoResolve(p.ID)
	s.publish(ctx, event.Event{
		PairingID: p.ID,
		UserIDs:   []uint64{p.UserA, p.UserB},
		Type:      event.TypeCreated,
		Timestamp: time.Now().UTC(),
	})
}

// armAutoResolve arms the single-shot timer that system-declines the pairing
// if nobody resolves it first.
func (s *Scheduler) armAutoResolve(pairingID uint64) {
	s.schedule(autoResolveKey(pairingID), s.appCtx.Cfg.Match.AutoResolveAfter, func() {
		s.autoResolve(pairingID)
	})
}

// autoResolve is the timer handler: guarded system decline, notification,
// and quick re-entry of both users with the short cooldown.
func (s *Scheduler) autoResolve(pairingID uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	won, p, err := s.pairings.GuardedDecline(ctx, pairingID, db.SystemUserID, time.Now().UTC())
	if err != nil {
		s.appCtx.Logger.Error("auto-resolve failed", "pairing_id", pairingID, "err", err)
		return
	}
	if !won {
		// Resolved by a user action before the timer fired.
		return
	}

	s.appCtx.Logger.Info("pairing auto-declined", "pairing_id", pairingID)
	s.publish(ctx, event.Event{
		PairingID: p.ID,
		UserIDs:   []uint64{p.UserA, p.UserB},
		Type:      event.TypeAutoDeclined,
		Timestamp: time.Now().UTC(),
	})

	// Shorter cooldown than a manual decline, to recover momentum quickly.
	s.ScheduleRematchForUsers([]uint64{p.UserA, p.UserB}, s.appCtx.Cfg.Match.AutoDeclineCooldown)
}

// publish is fire-and-forget: a dead bus never blocks a state transition.
func (s *Scheduler) publish(ctx context.Context, e event.Event) {
	if err := s.appCtx.Publisher.Publish(ctx, e); err != nil {
		s.appCtx.Logger.Warn("event publish failed", "type", e.Type, "pairing_id", e.PairingID, "err", err)
	}
}

func autoResolveKey(pairingID uint64) string {
	return fmt.Sprintf("autoresolve:pairing:%d", pairingID)
}

// schedule arms a keyed one-shot timer, replacing any timer already armed
// under the same key.
func (s *Scheduler) schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	s.timers[key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
}

// cancel stops the timer for key, reporting whether one was armed.
func (s *Scheduler) cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[key]
	if !ok {
		return false
	}
	delete(s.timers, key)
	return t.Stop()
}

func (s *Scheduler) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}
