// internal/rules/engine.go
package rules

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/solatis/mario/internal/logging"
	"github.com/solatis/mario/internal/types"
)

// Classifier detects the content type of a value of the given kind.
// An empty type means unknown; a non-nil error means the backend is unusable.
type Classifier interface {
	Classify(ctx context.Context, kind types.Kind, value string) (string, error)
}

// Runner executes argv without a shell and reports its exit status.
type Runner interface {
	Run(ctx context.Context, argv []string) (int, error)
}

// Notifier delivers a desktop notification.
type Notifier interface {
	Notify(title, body string) error
}

// Fetcher streams the body of a URL.
type Fetcher interface {
	Get(ctx context.Context, url string) (io.ReadCloser, error)
}

// Capabilities are the external collaborators clauses and actions call
// through. Implementations must be safe for concurrent use when one Engine
// serves concurrent dispatches.
type Capabilities struct {
	Classifier Classifier
	Runner     Runner
	Notifier   Notifier
	Fetcher    Fetcher
}

// Engine evaluates compiled rules against messages.
type Engine struct {
	caps    Capabilities
	dryRun  bool
	tempDir string
	logger  zerolog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDryRun makes the engine evaluate match clauses but only report the
// actions of the matching rule.
func WithDryRun(dryRun bool) EngineOption {
	return func(e *Engine) {
		e.dryRun = dryRun
	}
}

// WithTempDir sets the directory save and download create files in.
// Empty means os.TempDir().
func WithTempDir(dir string) EngineOption {
	return func(e *Engine) {
		e.tempDir = dir
	}
}

// WithLogger replaces the engine logger.
func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an engine calling through caps.
func NewEngine(caps Capabilities, opts ...EngineOption) *Engine {
	e := &Engine{
		caps:   caps,
		logger: logging.GetLogger("rules.engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// With returns a copy of the engine with opts applied. The receiver is
// unchanged, so a shared engine can be specialised per request.
func (e *Engine) With(opts ...EngineOption) *Engine {
	c := *e
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// DryRun reports whether actions are suppressed.
func (e *Engine) DryRun() bool {
	return e.dryRun
}

func (e *Engine) tempDirectory() string {
	if e.tempDir != "" {
		return e.tempDir
	}
	return os.TempDir()
}

// ActionOutcome records one action of the matching rule.
type ActionOutcome struct {
	Verb      types.ActionVerb
	Argument  string // as written in the rule file
	Resolved  string // after expansion, empty when expansion failed
	Line      int
	Succeeded bool
	Skipped   bool   // dry run
	Detail    string // failure reason, empty on success
}

// Result is the outcome of one dispatch.
type Result struct {
	Matched   bool
	RuleName  string
	RuleIndex int // -1 when nothing matched
	Completed bool // every action of the matching rule succeeded
	Actions   []ActionOutcome
	Bindings  map[string]string // final context
}

// Dispatch evaluates rules against msg with a fresh context and type cache.
// The error is non-nil only for capability failures.
func (e *Engine) Dispatch(ctx context.Context, msg types.Message, rules []*CompiledRule) (*Result, error) {
	return e.Evaluate(ctx, NewMessageContext(msg), NewTypeCache(), rules)
}
