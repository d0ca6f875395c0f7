package filehistory

import (
	"context"
	"sort"
	"time"

	"github.com/adhocore/gronx"
)

// RetentionPolicy bounds how much snapshot history a Store keeps. A zero
// field means that bound is not enforced.
type RetentionPolicy struct {
	MaxSessions    int
	MaxAgeDays     int
	MaxTotalSizeMB int
}

// Sweep removes Changes that fall outside policy and returns how many were
// removed. Age and session-count bounds are applied first, then the
// total-size bound trims the oldest remaining Changes until under cap.
func (s *Store) Sweep(policy RetentionPolicy) (int, error) {
	removed := 0

	if policy.MaxAgeDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -policy.MaxAgeDays)
		for _, c := range s.All() {
			if c.Timestamp.Before(cutoff) {
				if err := s.Remove(c); err != nil {
					return removed, err
				}
				removed++
			}
		}
	}

	if policy.MaxSessions > 0 {
		n, err := s.trimToMaxSessions(policy.MaxSessions)
		if err != nil {
			return removed, err
		}
		removed += n
	}

	if policy.MaxTotalSizeMB > 0 {
		n, err := s.trimToMaxSize(int64(policy.MaxTotalSizeMB) * 1024 * 1024)
		if err != nil {
			return removed, err
		}
		removed += n
	}

	return removed, nil
}

// trimToMaxSessions keeps only the maxSessions sessions with the most recent
// activity (latest Change timestamp), deleting every Change in older ones.
func (s *Store) trimToMaxSessions(maxSessions int) (int, error) {
	latest := map[string]time.Time{}
	for _, c := range s.All() {
		if t, ok := latest[c.SessionID]; !ok || c.Timestamp.After(t) {
			latest[c.SessionID] = c.Timestamp
		}
	}
	if len(latest) <= maxSessions {
		return 0, nil
	}

	sessions := make([]string, 0, len(latest))
	for id := range latest {
		sessions = append(sessions, id)
	}
	sort.Slice(sessions, func(i, j int) bool { return latest[sessions[i]].After(latest[sessions[j]]) })

	drop := map[string]bool{}
	for _, id := range sessions[maxSessions:] {
		drop[id] = true
	}

	removed := 0
	for _, c := range s.All() {
		if drop[c.SessionID] {
			if err := s.Remove(c); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// trimToMaxSize deletes the oldest Changes (by Timestamp) until the combined
// size of remaining Before/After payloads is at or under maxBytes.
func (s *Store) trimToMaxSize(maxBytes int64) (int, error) {
	changes := s.All()
	sort.Slice(changes, func(i, j int) bool { return changes[i].Timestamp.Before(changes[j].Timestamp) })

	var total int64
	for _, c := range changes {
		total += changeSize(c)
	}

	removed := 0
	for _, c := range changes {
		if total <= maxBytes {
			break
		}
		if err := s.Remove(c); err != nil {
			return removed, err
		}
		total -= changeSize(c)
		removed++
	}
	return removed, nil
}

func changeSize(c *Change) int64 {
	var n int64
	if c.Before != nil {
		n += c.Before.Size
	}
	if c.After != nil {
		n += c.After.Size
	}
	return n
}

// StartRetentionCron runs Sweep every time cronExpr is due, until ctx is
// canceled. cronExpr follows standard five-field cron syntax (e.g.
// "0 * * * *" for hourly sweeps).
func StartRetentionCron(ctx context.Context, cronExpr string, s *Store, policy RetentionPolicy) error {
	if !gronx.IsValid(cronExpr) {
		return &InvalidCronError{Expr: cronExpr}
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			due, err := gronx.IsDue(cronExpr, now)
			if err != nil {
				return err
			}
			if due {
				if _, err := s.Sweep(policy); err != nil {
					return err
				}
			}
		}
	}
}

// InvalidCronError reports a malformed retention cron expression.
type InvalidCronError struct{ Expr string }

func (e *InvalidCronError) Error() string { return "filehistory: invalid cron expression " + e.Expr }
