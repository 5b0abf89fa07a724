// Package config parses per-subreddit YAML rule documents into engine
// rules. All validation happens here, at load time: unknown action names,
// mistyped parameters, and unsupported target types refuse to start the
// process rather than failing mid-cycle.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leviroth/bernard/engine"
	"github.com/leviroth/bernard/reddit"
	"github.com/leviroth/bernard/store"
)

// SubredditOpener hands out per-subreddit client handles.
type SubredditOpener interface {
	Subreddit(name string) engine.SubredditClient
}

// Dependencies are the collaborators threaded into every rule.
type Dependencies struct {
	Client SubredditOpener
	Store  *store.Store
	Logger *slog.Logger
}

// LoadDirectory builds one Browser per "<subreddit>.yaml" file in dir.
func LoadDirectory(ctx context.Context, dir string, deps Dependencies) ([]*engine.Browser, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading config directory: %w", err)
	}
	var browsers []*engine.Browser
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)
		f, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		browser, err := LoadSubreddit(ctx, name, f, deps)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", entry.Name(), err)
		}
		browsers = append(browsers, browser)
	}
	return browsers, nil
}

// LoadSubreddit parses one subreddit's rule stream (one YAML document per
// rule) and returns a ready Browser with its shared ledgers.
func LoadSubreddit(ctx context.Context, name string, r io.Reader, deps Dependencies) (*engine.Browser, error) {
	sub := deps.Client.Subreddit(name)
	info, err := sub.About(ctx)
	if err != nil {
		return nil, err
	}
	_, subredditID, err := info.Fullname.Parse()
	if err != nil {
		return nil, fmt.Errorf("parsing subreddit fullname: %w", err)
	}

	ledgers := engine.NewLedgerBuilder(sub, deps.Logger)

	var rules []*engine.Rule
	dec := yaml.NewDecoder(r)
	for {
		var doc ruleConfig
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing rule config: %w", err)
		}
		rule, err := buildRule(sub, ledgers, deps, subredditID, doc)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	browser := engine.NewBrowser(sub, deps.Store, subredditID, deps.Logger, rules, ledgers.Ledgers())
	if err := browser.RefreshMetadata(ctx); err != nil {
		return nil, fmt.Errorf("seeding subreddit metadata: %w", err)
	}
	return browser, nil
}

type ruleConfig struct {
	Trigger struct {
		Commands []string `yaml:"commands"`
		Types    []string `yaml:"types"`
	} `yaml:"trigger"`
	Info struct {
		Name    string `yaml:"name"`
		Details string `yaml:"details"`
	} `yaml:"info"`
	Dedupe  string         `yaml:"dedupe"`
	Actions []actionConfig `yaml:"actions"`
}

// actionConfig is either a bare action name or a one-key mapping of
// name to parameters.
type actionConfig struct {
	Name   string
	Params *yaml.Node
}

func (a *actionConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&a.Name)
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: action entry must have exactly one key", node.Line)
		}
		if err := node.Content[0].Decode(&a.Name); err != nil {
			return err
		}
		a.Params = node.Content[1]
		return nil
	default:
		return fmt.Errorf("line %d: action entry must be a name or a single-key mapping", node.Line)
	}
}

func buildRule(sub engine.SubredditClient, ledgers *engine.LedgerBuilder, deps Dependencies, subredditID int64, doc ruleConfig) (*engine.Rule, error) {
	kinds, err := parseKinds(doc.Trigger.Types)
	if err != nil {
		return nil, err
	}
	trigger, err := engine.NewTrigger(doc.Trigger.Commands, kinds)
	if err != nil {
		return nil, err
	}
	if doc.Info.Name == "" {
		return nil, fmt.Errorf("rule is missing info.name")
	}
	scope, err := parseDedupe(doc.Dedupe)
	if err != nil {
		return nil, err
	}

	cfg := engine.RuleConfig{
		Trigger: trigger,
		Name:    doc.Info.Name,
		Details: doc.Info.Details,
		Scope:   scope,
	}
	for _, action := range doc.Actions {
		if action.Name == "remove" {
			params, err := decodeParams[removeParams](action.Params)
			if err != nil {
				return nil, fmt.Errorf("action remove: %w", err)
			}
			cfg.Remove = true
			cfg.Lock = (params.Lock == nil || *params.Lock) && hasKind(kinds, reddit.KindPost)
			continue
		}
		builder, ok := actionRegistry[action.Name]
		if !ok {
			return nil, fmt.Errorf("unknown action: %q", action.Name)
		}
		built, err := builder(sub, ledgers, deps.Logger, action.Params)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", action.Name, err)
		}
		if err := validateKinds(action.Name, built, kinds); err != nil {
			return nil, err
		}
		cfg.Actions = append(cfg.Actions, built)
	}

	return engine.NewRule(sub, deps.Store, subredditID, deps.Logger, cfg), nil
}

func parseKinds(types []string) ([]reddit.Kind, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("trigger requires at least one target type")
	}
	kinds := make([]reddit.Kind, len(types))
	for i, t := range types {
		kind, err := reddit.ParseKind(t)
		if err != nil {
			return nil, err
		}
		kinds[i] = kind
	}
	return kinds, nil
}

func parseDedupe(s string) (engine.DedupeScope, error) {
	switch s {
	case "", "moderator":
		return engine.DedupeByModerator, nil
	case "target":
		return engine.DedupeByTarget, nil
	default:
		return 0, fmt.Errorf("unknown dedupe scope: %q", s)
	}
}

// validateKinds rejects an action whose supported target types do not
// cover the rule's target types.
func validateKinds(name string, action engine.Action, ruleKinds []reddit.Kind) error {
	for _, kind := range ruleKinds {
		if !hasKind(action.ValidKinds(), kind) {
			return fmt.Errorf("action %s does not support target type %s", name, kind)
		}
	}
	return nil
}

func hasKind(kinds []reddit.Kind, kind reddit.Kind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// decodeParams strictly decodes an action's parameter mapping: unknown
// fields and mistyped values are load-time errors.
func decodeParams[T any](node *yaml.Node) (T, error) {
	var out T
	if node == nil {
		return out, nil
	}
	raw, err := yaml.Marshal(node)
	if err != nil {
		return out, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("invalid parameters: %w", err)
	}
	return out, nil
}
