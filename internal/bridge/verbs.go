package bridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/switchboardhq/supervisor/internal/core/ids"
)

// line is one whitespace-split verb request: the verb token plus whatever
// follows it, unsplit, so a handler can decide how much of the remainder is
// one argument (a URL or name may itself contain spaces).
type line struct {
	verb string
	rest string
}

// parseLine splits "<verb> <args...>" into its verb and raw remainder.
// Leading/trailing whitespace around the whole line is trimmed first; the
// remainder keeps whatever whitespace the caller put between arguments.
func parseLine(raw string) line {
	trimmed := strings.TrimSpace(raw)
	verb, rest, _ := strings.Cut(trimmed, " ")
	return line{verb: verb, rest: strings.TrimSpace(rest)}
}

// fields splits the remainder into exactly n whitespace-delimited tokens,
// where the last token absorbs everything left over — the convention used
// for trailing name/URL arguments that may themselves contain spaces.
func (l line) fields(n int) ([]string, error) {
	parts := strings.SplitN(l.rest, " ", n)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < n || parts[n-1] == "" {
		return nil, fmt.Errorf("%s: expected %d argument(s), got %q", l.verb, n, l.rest)
	}
	return parts, nil
}

// parseID parses a strict base-10 unsigned integer id; no signs, no
// whitespace, no leading "+".
func parseID(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty id")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("malformed id %q: not base-10", s)
		}
	}
	return strconv.ParseUint(s, 10, 64)
}

func parseProfileID(s string) (ids.ProfileID, error) {
	v, err := parseID(s)
	return ids.ProfileID(v), err
}

func parseWorkspaceID(s string) (ids.WorkspaceID, error) {
	v, err := parseID(s)
	return ids.WorkspaceID(v), err
}

func parseTabID(s string) (ids.TabID, error) {
	v, err := parseID(s)
	return ids.TabID(v), err
}

func parseBool(s string) (bool, error) {
	switch s {
	case "true", "1", "on":
		return true, nil
	case "false", "0", "off":
		return false, nil
	}
	return false, fmt.Errorf("malformed bool %q", s)
}
