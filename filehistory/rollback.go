package filehistory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Target names a rollback scope: ChangeID, then FilePath, then AgentID, then
// SessionID, then After, checked in that priority order. FilePath and After
// may be combined to narrow to the earliest snapshot of that one file after
// the given time; the other fields are mutually exclusive.
type Target struct {
	ChangeID  string
	FilePath  string
	AgentID   string
	SessionID string
	After     *time.Time
}

// Action is one file restore or delete a rollback Plan will perform.
type Action struct {
	FilePath string
	ChangeID string // the Change whose Before state drives this restore
	Restore  *FileState
	Delete   bool // true when the target file never existed before this Change
}

// Plan is the dry-run output of PlanRollback: it never touches disk.
type Plan struct {
	Target  Target
	Actions []Action
}

// PlanRollback resolves a Target into a Plan without writing anything to
// disk, so callers can inspect it (or show a diff) before ApplyRollback.
func (s *Store) PlanRollback(target Target) (Plan, error) {
	switch {
	case target.ChangeID != "":
		ch, ok := s.ByChangeID(target.ChangeID)
		if !ok {
			return Plan{}, fmt.Errorf("filehistory: change %q not found", target.ChangeID)
		}
		return Plan{Target: target, Actions: []Action{actionFor(ch)}}, nil
	case target.FilePath != "" && target.After != nil:
		return Plan{Target: target, Actions: earliestPerFile(filterAfter(s.ByFilePath(target.FilePath), *target.After))}, nil
	case target.FilePath != "":
		return Plan{Target: target, Actions: earliestPerFile(s.ByFilePath(target.FilePath))}, nil
	case target.AgentID != "":
		return Plan{Target: target, Actions: earliestPerFile(s.ByAgent(target.AgentID))}, nil
	case target.SessionID != "":
		return Plan{Target: target, Actions: earliestPerFile(s.BySession(target.SessionID))}, nil
	case target.After != nil:
		return Plan{Target: target, Actions: earliestPerFile(s.After(*target.After))}, nil
	default:
		return Plan{}, fmt.Errorf("filehistory: empty rollback target")
	}
}

// actionFor restores a single Change's Before state, or deletes the file if
// the Change created it (Before == nil).
func actionFor(ch *Change) Action {
	if ch.Before == nil {
		return Action{FilePath: ch.FilePath, ChangeID: ch.ChangeID, Delete: true}
	}
	return Action{FilePath: ch.FilePath, ChangeID: ch.ChangeID, Restore: ch.Before}
}

// filterAfter narrows changes to those recorded strictly after t, for
// combining FilePath with After into a single narrower target.
func filterAfter(changes []*Change, t time.Time) []*Change {
	out := make([]*Change, 0, len(changes))
	for _, c := range changes {
		if c.Timestamp.After(t) {
			out = append(out, c)
		}
	}
	return out
}

// earliestPerFile groups changes by FilePath and returns one Action per
// group driven by that group's earliest (by Timestamp) Change, for the
// agentId/sessionId/after:timestamp restore rules.
func earliestPerFile(changes []*Change) []Action {
	byPath := map[string]*Change{}
	for _, c := range changes {
		cur, ok := byPath[c.FilePath]
		if !ok || c.Timestamp.Before(cur.Timestamp) {
			byPath[c.FilePath] = c
		}
	}
	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	actions := make([]Action, 0, len(paths))
	for _, p := range paths {
		actions = append(actions, actionFor(byPath[p]))
	}
	return actions
}

// ApplyRollback executes a Plan's Actions against files rooted at rootDir.
// Each Action is all-or-nothing: a restore either lands in full (via an
// atomic rename) or the file is left untouched; one Action's failure does
// not undo Actions already applied.
func ApplyRollback(rootDir string, plan Plan) error {
	for _, a := range plan.Actions {
		path, ok := resolve(rootDir, a.FilePath)
		if !ok {
			return fmt.Errorf("filehistory: rollback path %q escapes root", a.FilePath)
		}
		if a.Delete {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("filehistory: delete %s: %w", a.FilePath, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("filehistory: rollback %s: %w", a.FilePath, err)
		}
		if err := writeFileAtomic(path, []byte(a.Restore.Content)); err != nil {
			return fmt.Errorf("filehistory: rollback %s: %w", a.FilePath, err)
		}
	}
	return nil
}

// resolve joins rootDir and a claimed relative path, rejecting any result
// that escapes rootDir via "..".
func resolve(rootDir, rel string) (string, bool) {
	joined := filepath.Join(rootDir, rel)
	cleanRoot := filepath.Clean(rootDir)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", false
	}
	return joined, true
}
