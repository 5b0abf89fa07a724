package config

import (
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/leviroth/bernard/engine"
)

type banParams struct {
	Message  string `yaml:"message"`
	Reason   string `yaml:"reason"`
	Duration int    `yaml:"duration"`
}

type notifyParams struct {
	Text string `yaml:"text"`
}

type modmailParams struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type usernoteParams struct {
	Text  string `yaml:"text"`
	Level string `yaml:"level"`
}

type watchParams struct {
	Placeholder string `yaml:"placeholder"`
}

type removeParams struct {
	Lock *bool `yaml:"lock"`
}

type actionBuilder func(sub engine.SubredditClient, ledgers *engine.LedgerBuilder, logger *slog.Logger, params *yaml.Node) (engine.Action, error)

// actionRegistry is the closed mapping from configuration names to
// constructors, resolved at load time. "remove" is special-cased into the
// rule itself rather than built as an action.
var actionRegistry = map[string]actionBuilder{
	"ban": func(sub engine.SubredditClient, _ *engine.LedgerBuilder, logger *slog.Logger, node *yaml.Node) (engine.Action, error) {
		p, err := decodeParams[banParams](node)
		if err != nil {
			return nil, err
		}
		return engine.NewBanner(sub, logger, p.Message, p.Reason, p.Duration), nil
	},
	"notify": func(sub engine.SubredditClient, _ *engine.LedgerBuilder, logger *slog.Logger, node *yaml.Node) (engine.Action, error) {
		p, err := decodeParams[notifyParams](node)
		if err != nil {
			return nil, err
		}
		return engine.NewNotifier(sub, logger, p.Text), nil
	},
	"lock": func(sub engine.SubredditClient, _ *engine.LedgerBuilder, logger *slog.Logger, node *yaml.Node) (engine.Action, error) {
		if _, err := decodeParams[struct{}](node); err != nil {
			return nil, err
		}
		return engine.NewLocker(sub, logger), nil
	},
	"modmail": func(sub engine.SubredditClient, _ *engine.LedgerBuilder, logger *slog.Logger, node *yaml.Node) (engine.Action, error) {
		p, err := decodeParams[modmailParams](node)
		if err != nil {
			return nil, err
		}
		return engine.NewModmailer(sub, logger, p.Subject, p.Body), nil
	},
	"nuke": func(sub engine.SubredditClient, ledgers *engine.LedgerBuilder, logger *slog.Logger, node *yaml.Node) (engine.Action, error) {
		if _, err := decodeParams[struct{}](node); err != nil {
			return nil, err
		}
		return engine.NewNuker(sub, logger, ledgers.Nuke()), nil
	},
	"usernote": func(_ engine.SubredditClient, ledgers *engine.LedgerBuilder, _ *slog.Logger, node *yaml.Node) (engine.Action, error) {
		p, err := decodeParams[usernoteParams](node)
		if err != nil {
			return nil, err
		}
		return engine.NewToolboxNoteAdder(ledgers.Notes(), p.Text, p.Level), nil
	},
	"domainwatch": func(_ engine.SubredditClient, ledgers *engine.LedgerBuilder, _ *slog.Logger, node *yaml.Node) (engine.Action, error) {
		p, err := decodeParams[watchParams](node)
		if err != nil {
			return nil, err
		}
		return engine.NewAutomodDomainWatcher(ledgers.Watcher(), p.Placeholder), nil
	},
	"userwatch": func(_ engine.SubredditClient, ledgers *engine.LedgerBuilder, logger *slog.Logger, node *yaml.Node) (engine.Action, error) {
		p, err := decodeParams[watchParams](node)
		if err != nil {
			return nil, err
		}
		return engine.NewAutomodUserWatcher(ledgers.Watcher(), logger, p.Placeholder), nil
	},
}
