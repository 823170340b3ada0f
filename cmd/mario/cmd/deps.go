package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/solatis/mario/internal/capability"
	"github.com/solatis/mario/internal/core/config"
	"github.com/solatis/mario/internal/core/journal"
	"github.com/solatis/mario/internal/core/ruleset"
	"github.com/solatis/mario/internal/rules"
)

// newEngine wires the engine to the real capabilities. The returned cleanup
// closes the session bus connection and must always be called.
func newEngine(cfg *config.Config, opts ...rules.EngineOption) (*rules.Engine, *capability.MIMEClassifier, func()) {
	fetcher := capability.NewHTTPFetcher(nil, cfg.UserAgent)
	classifier := capability.NewMIMEClassifier(fetcher, cfg.StrictContentLookup)

	var notifier rules.Notifier = capability.NewLogNotifier()
	cleanup := func() {}
	if cfg.Notifications {
		dn, err := capability.NewDBusNotifier()
		if err != nil {
			log.Warn().Err(err).Msg("Desktop notifications unavailable, logging them instead")
		} else {
			notifier = dn
			cleanup = func() { dn.Close() }
		}
	}

	caps := rules.Capabilities{
		Classifier: classifier,
		Runner:     capability.NewExecRunner(),
		Notifier:   notifier,
		Fetcher:    fetcher,
	}
	opts = append([]rules.EngineOption{rules.WithTempDir(cfg.TempDir)}, opts...)
	return rules.NewEngine(caps, opts...), classifier, cleanup
}

func loadRules(cfg *config.Config) (*ruleset.Set, error) {
	set, err := ruleset.Load(cfg.RulesFile, cfg.RulesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return set, nil
}

func openJournal(cfg *config.Config) (*journal.Journal, error) {
	j, err := journal.Open(cfg.Journal.DBURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return j, nil
}
