package tool

import "path/filepath"

// Permissions holds deny/allow glob lists, matched against tool names
// (AllowsTool) or against a path or command argument (AllowsArg). Deny
// always wins over allow. An empty allow list means "allow
// everything not explicitly denied".
type Permissions struct {
	Allow []string
	Deny  []string
}

// AllowsTool reports whether name is permitted to execute at all, ignoring
// any path/command argument (use AllowsArg for that).
func (p Permissions) AllowsTool(name string) bool {
	if matchAny(p.Deny, name) {
		return false
	}
	return len(p.Allow) == 0 || matchAny(p.Allow, name)
}

// AllowsArg reports whether the given glob-matchable argument (a filesystem
// path or shell command fragment) is permitted by the same lists. The loop
// checks only AllowsTool before dispatch; nothing in this module extracts a
// call's path or command argument and passes it to AllowsArg.
func (p Permissions) AllowsArg(arg string) bool {
	if matchAny(p.Deny, arg) {
		return false
	}
	return len(p.Allow) == 0 || matchAny(p.Allow, arg)
}

func matchAny(patterns []string, s string) bool {
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, s); ok {
			return true
		}
	}
	return false
}
