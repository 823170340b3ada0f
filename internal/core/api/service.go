// Package api implements the gRPC plumbing service: remote clients hand a
// message to the same engine and rules the local CLI uses.
package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	"github.com/solatis/mario/internal/core/journal"
	"github.com/solatis/mario/internal/core/ruleset"
	"github.com/solatis/mario/internal/logging"
	"github.com/solatis/mario/internal/rules"
	"github.com/solatis/mario/internal/types"
)

// Recorder stores dispatches. Implemented by *journal.Journal.
type Recorder interface {
	Record(ctx context.Context, msg types.Message, res *rules.Result, source journal.Source) (types.DispatchID, error)
}

// PlumberService implements PlumberServer.
// Thin orchestration layer delegating to the engine and the journal.
type PlumberService struct {
	engine         *rules.Engine
	recorder       Recorder
	maxMessageSize int
	logger         zerolog.Logger

	// Rules are swapped wholesale on reload; a dispatch keeps the list it
	// started with.
	mu    sync.RWMutex
	set   *ruleset.Set
	etag  string
	texts []RuleSummary
}

// NewPlumberService creates service instance with dependencies. recorder may
// be nil to disable the journal.
func NewPlumberService(engine *rules.Engine, set *ruleset.Set, recorder Recorder, maxMessageSize int) (*PlumberService, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if set == nil {
		return nil, fmt.Errorf("rule set cannot be nil")
	}
	if maxMessageSize <= 0 {
		maxMessageSize = types.DefaultMaxMessageSize
	}

	s := &PlumberService{
		engine:         engine,
		recorder:       recorder,
		maxMessageSize: maxMessageSize,
		logger:         logging.GetLogger("core.api"),
	}
	s.SetRules(set)
	return s, nil
}

// SetRules replaces the rule set used by subsequent requests.
func (s *PlumberService) SetRules(set *ruleset.Set) {
	all := set.Rules()
	texts := make([]RuleSummary, 0, len(all))
	for _, r := range all {
		texts = append(texts, RuleSummary{Name: r.Name, Source: rules.Format([]types.Rule{r})})
	}
	etag := computeETag(all)

	s.mu.Lock()
	s.set = set
	s.etag = etag
	s.texts = texts
	s.mu.Unlock()

	s.logger.Info().Int("rules", len(all)).Str("etag", etag).Msg("Rule set installed")
}

func (s *PlumberService) snapshot() (*ruleset.Set, string, []RuleSummary) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set, s.etag, s.texts
}

// computeETag hashes the canonical form of the rules: the same rules always
// produce the same ETag, whatever their formatting or file layout.
func computeETag(all []types.Rule) string {
	sum := blake3.Sum256([]byte(rules.Format(all)))
	return fmt.Sprintf("%x", sum[:16])
}
