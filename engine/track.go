package engine

import (
	"context"
	"errors"

	"agriscore/core"
)

// Outcome is the result of a best-effort scoring attempt made on behalf of a
// feature module. Producers may inspect it or ignore it; it never carries a panic.
type Outcome struct {
	Result ActivityResult
	Err    error
}

// Scored reports whether the activity was applied.
func (o Outcome) Scored() bool { return o.Err == nil }

// Retryable reports whether the same event may be reported again.
func (o Outcome) Retryable() bool { return errors.Is(o.Err, ErrPersistence) }

// Track scores an activity without failing the caller's own action. Errors are
// logged and returned inside the Outcome.
func (s *ScoreService) Track(ctx context.Context, user core.UserID, activity core.ActivityType, description string) Outcome {
	res, err := s.LogActivity(ctx, user, activity, description)
	if err != nil {
		s.logger.Warn("activity not scored",
			"user_id", user, "activity_type", activity,
			"retryable", errors.Is(err, ErrPersistence), "error", err)
		return Outcome{Err: err}
	}
	return Outcome{Result: res}
}

// TrackAsync scores an activity in the background. The unit of work is detached
// from ctx cancellation so a producer that stops waiting never leaves a mutation
// half applied. The returned channel yields exactly one Outcome; once Close has
// begun that Outcome carries ErrClosed.
func (s *ScoreService) TrackAsync(ctx context.Context, user core.UserID, activity core.ActivityType, description string) <-chan Outcome {
	out := make(chan Outcome, 1)
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		out <- Outcome{Err: ErrClosed}
		close(out)
		return out
	}
	s.inflight.Add(1)
	s.closeMu.Unlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		defer s.inflight.Done()
		out <- s.Track(detached, user, activity, description)
		close(out)
	}()
	return out
}
