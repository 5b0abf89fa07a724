package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/leviroth/bernard/reddit"
)

// Trigger decides whether a report string and target type satisfy a rule.
// The configured literal command strings are compiled once into a single
// anchored, case-insensitive alternation.
type Trigger struct {
	re    *regexp.Regexp
	kinds map[reddit.Kind]bool
}

func NewTrigger(commands []string, kinds []reddit.Kind) (*Trigger, error) {
	if len(commands) == 0 {
		return nil, fmt.Errorf("trigger requires at least one command")
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("trigger requires at least one target type")
	}
	escaped := make([]string, len(commands))
	for i, cmd := range commands {
		escaped[i] = regexp.QuoteMeta(cmd)
	}
	re, err := regexp.Compile(`(?i)\A(?:` + strings.Join(escaped, "|") + `)\z`)
	if err != nil {
		return nil, fmt.Errorf("compiling trigger: %w", err)
	}
	kindSet := make(map[reddit.Kind]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}
	return &Trigger{re: re, kinds: kindSet}, nil
}

// Match reports whether the report text is one of the trigger's commands
// and the target is of an applicable type. No side effects.
func (t *Trigger) Match(reportText string, target reddit.Target) bool {
	return t.re.MatchString(reportText) && t.kinds[target.Kind()]
}

// Kinds returns the applicable target types.
func (t *Trigger) Kinds() []reddit.Kind {
	out := make([]reddit.Kind, 0, len(t.kinds))
	for _, k := range []reddit.Kind{reddit.KindComment, reddit.KindPost} {
		if t.kinds[k] {
			out = append(out, k)
		}
	}
	return out
}
