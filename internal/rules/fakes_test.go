// internal/rules/fakes_test.go
package rules

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/solatis/mario/internal/types"
)

// fakeClassifier returns types from a fixed table, counts calls and keeps
// the kind of the last call.
type fakeClassifier struct {
	types    map[string]string
	err      error
	calls    int
	lastKind types.Kind
}

func (f *fakeClassifier) Classify(_ context.Context, kind types.Kind, value string) (string, error) {
	f.calls++
	f.lastKind = kind
	if f.err != nil {
		return "", f.err
	}
	return f.types[value], nil
}

// fakeRunner records argv and returns a fixed exit code per program.
type fakeRunner struct {
	calls [][]string
	codes map[string]int
	err   error
}

func (f *fakeRunner) Run(_ context.Context, argv []string) (int, error) {
	f.calls = append(f.calls, append([]string(nil), argv...))
	if f.err != nil {
		return -1, f.err
	}
	return f.codes[argv[0]], nil
}

type notification struct {
	title string
	body  string
}

type fakeNotifier struct {
	sent []notification
}

func (f *fakeNotifier) Notify(title, body string) error {
	f.sent = append(f.sent, notification{title: title, body: body})
	return nil
}

// fakeFetcher serves bodies from a table; unknown URLs fail.
type fakeFetcher struct {
	bodies map[string]string
}

func (f *fakeFetcher) Get(_ context.Context, url string) (io.ReadCloser, error) {
	body, ok := f.bodies[url]
	if !ok {
		return nil, errors.New("404 Not Found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

type fakes struct {
	classifier *fakeClassifier
	runner     *fakeRunner
	notifier   *fakeNotifier
	fetcher    *fakeFetcher
}

// newTestEngine returns an engine wired to fresh fakes, writing temp files
// under a per-test directory.
func newTestEngine(t *testing.T, opts ...EngineOption) (*Engine, *fakes) {
	t.Helper()
	f := &fakes{
		classifier: &fakeClassifier{types: map[string]string{}},
		runner:     &fakeRunner{codes: map[string]int{}},
		notifier:   &fakeNotifier{},
		fetcher:    &fakeFetcher{bodies: map[string]string{}},
	}
	caps := Capabilities{
		Classifier: f.classifier,
		Runner:     f.runner,
		Notifier:   f.notifier,
		Fetcher:    f.fetcher,
	}
	opts = append([]EngineOption{WithTempDir(t.TempDir()), WithLogger(zerolog.Nop())}, opts...)
	return NewEngine(caps, opts...), f
}
