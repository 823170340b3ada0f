// internal/rules/evaluate_test.go
package rules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/mario/internal/types"
)

func dispatch(t *testing.T, e *Engine, msg types.Message, src string) *Result {
	t.Helper()
	result, err := e.Dispatch(context.Background(), msg, mustCompile(t, src))
	if err != nil {
		t.Fatalf("Dispatch() error = %v, want nil", err)
	}
	return result
}

func TestDispatch_MatchGroupsReachRun(t *testing.T) {
	e, f := newTestEngine(t)
	result := dispatch(t, e, types.Message{Kind: types.KindRaw, Data: "foo1bar2"}, `[test]
kind is raw
arg matches {data} foo(.)bar(.)
plumb run echo {\0}{\1}
`)

	if !result.Matched || !result.Completed {
		t.Fatalf("Matched, Completed = %v, %v, want true, true", result.Matched, result.Completed)
	}
	want := [][]string{{"echo", "12"}}
	if !reflect.DeepEqual(f.runner.calls, want) {
		t.Errorf("runner calls = %v, want %v", f.runner.calls, want)
	}
	if result.Bindings[`\0`] != "1" || result.Bindings[`\1`] != "2" {
		t.Errorf("Bindings = %v, want \\0=1 \\1=2", result.Bindings)
	}
	if result.Bindings["rule_name"] != "test" {
		t.Errorf("rule_name = %q, want test", result.Bindings["rule_name"])
	}
}

func TestDispatch_NumericGroupShorthandInActions(t *testing.T) {
	e, f := newTestEngine(t)
	dispatch(t, e, types.Message{Kind: types.KindText, Data: "solatis/mario#12"}, `[issue]
data matches ^([a-z]+)/([a-z]+)#([0-9]+)$
plumb run open https://github.com/{0}/{1}/issues/{2}
`)
	want := [][]string{{"open", "https://github.com/solatis/mario/issues/12"}}
	if !reflect.DeepEqual(f.runner.calls, want) {
		t.Errorf("runner calls = %v, want %v", f.runner.calls, want)
	}
}

func TestDispatch_ArgumentsAreNotResplit(t *testing.T) {
	e, f := newTestEngine(t)
	dispatch(t, e, types.Message{Kind: types.KindText, Data: "two words"}, `[t]
plumb run printf %s {data}
`)
	want := [][]string{{"printf", "%s", "two words"}}
	if !reflect.DeepEqual(f.runner.calls, want) {
		t.Errorf("runner calls = %v, want %v", f.runner.calls, want)
	}
}

func TestDispatch_FirstMatchWins(t *testing.T) {
	e, f := newTestEngine(t)
	f.runner.codes["second"] = 1
	result := dispatch(t, e, types.Message{Kind: types.KindText, Data: "hello"}, `[first]
data is goodbye
plumb run first

[second]
data matches ^h
plumb run second
plumb run never

[third]
plumb run third
`)

	if !result.Matched || result.RuleName != "second" || result.RuleIndex != 1 {
		t.Fatalf("result = %+v, want match on second", result)
	}
	if result.Completed {
		t.Errorf("Completed = true, want false after failing action")
	}
	want := [][]string{{"second"}}
	if !reflect.DeepEqual(f.runner.calls, want) {
		t.Errorf("runner calls = %v, want %v (no fallthrough, no further actions)", f.runner.calls, want)
	}
	if len(result.Actions) != 1 || result.Actions[0].Succeeded {
		t.Errorf("Actions = %+v, want one failed outcome", result.Actions)
	}
	if !strings.Contains(result.Actions[0].Detail, "exit status 1") {
		t.Errorf("Detail = %q, want exit status", result.Actions[0].Detail)
	}
}

func TestDispatch_ShortCircuitAND(t *testing.T) {
	e, f := newTestEngine(t)
	result := dispatch(t, e, types.Message{Kind: types.KindURL, Data: "http://x/a.png"}, `[t]
kind is text
data istype ^image/
plumb run viewer
`)
	if result.Matched {
		t.Errorf("Matched = true, want false")
	}
	if f.classifier.calls != 0 {
		t.Errorf("classifier calls = %d, want 0: clause after failing kind clause ran", f.classifier.calls)
	}
}

func TestDispatch_CaptureLifetime(t *testing.T) {
	e, f := newTestEngine(t)
	result := dispatch(t, e, types.Message{Kind: types.KindText, Data: "abc"}, `[binds then fails]
data matches (b)
data rewrite a,z
data is nothing
plumb run never

[reads capture]
plumb run echo {\0}

[fallback]
plumb run fallback {data}
`)

	if result.RuleName != "reads capture" {
		t.Fatalf("RuleName = %q, want reads capture", result.RuleName)
	}
	if result.Completed {
		t.Errorf("Completed = true, want false: {\\0} must be unbound in the next rule")
	}
	if len(f.runner.calls) != 0 {
		t.Errorf("runner calls = %v, want none", f.runner.calls)
	}
	if result.Bindings["data"] != "abc" {
		t.Errorf("data = %q, want abc restored", result.Bindings["data"])
	}
	if _, ok := result.Bindings[`\0`]; ok {
		t.Errorf(`\0 still bound after failed rule`)
	}
}

func TestDispatch_CaptureVisibleWithinRule(t *testing.T) {
	e, f := newTestEngine(t)
	dispatch(t, e, types.Message{Kind: types.KindText, Data: "key=value"}, `[kv]
data matches ^(\w+)=(\w+)$
arg is {0} key
arg rewrite {1} value,VALUE
plumb run set {0} {1}
`)
	want := [][]string{{"set", "key", "VALUE"}}
	if !reflect.DeepEqual(f.runner.calls, want) {
		t.Errorf("runner calls = %v, want %v", f.runner.calls, want)
	}
}

func TestDispatch_LaterMatchOverwritesGroups(t *testing.T) {
	e, f := newTestEngine(t)
	dispatch(t, e, types.Message{Kind: types.KindText, Data: "ab"}, `[t]
data matches (a)
data matches (b)
plumb run echo {0}
`)
	want := [][]string{{"echo", "b"}}
	if !reflect.DeepEqual(f.runner.calls, want) {
		t.Errorf("runner calls = %v, want %v", f.runner.calls, want)
	}
}

func TestDispatch_EmptyMatchBlockAlwaysMatches(t *testing.T) {
	for _, msg := range []types.Message{
		{Kind: types.KindRaw, Data: "\x00\xff"},
		{Kind: types.KindText, Data: ""},
		{Kind: types.KindURL, Data: "https://example.com"},
	} {
		e, f := newTestEngine(t)
		result := dispatch(t, e, msg, `[always]
plumb notify got a {kind}
`)
		if !result.Matched || !result.Completed {
			t.Errorf("kind %v: Matched, Completed = %v, %v", msg.Kind, result.Matched, result.Completed)
		}
		want := []notification{{title: "always", body: "got a " + msg.Kind.String()}}
		if !reflect.DeepEqual(f.notifier.sent, want) {
			t.Errorf("notifications = %v, want %v", f.notifier.sent, want)
		}
	}
}

func TestDispatch_NoRuleMatched(t *testing.T) {
	e, f := newTestEngine(t)
	result := dispatch(t, e, types.Message{Kind: types.KindText, Data: "x"}, `[t]
data is y
plumb run never
`)
	if result.Matched || result.RuleIndex != -1 || result.RuleName != "" {
		t.Errorf("result = %+v, want no match", result)
	}
	if len(f.runner.calls) != 0 {
		t.Errorf("runner calls = %v, want none", f.runner.calls)
	}
	want := map[string]string{"data": "x", "kind": "text"}
	if !reflect.DeepEqual(result.Bindings, want) {
		t.Errorf("Bindings = %v, want %v", result.Bindings, want)
	}
}

func TestDispatch_NoRules(t *testing.T) {
	e, _ := newTestEngine(t)
	result, err := e.Dispatch(context.Background(), types.Message{Kind: types.KindText, Data: "x"}, nil)
	if err != nil || result.Matched {
		t.Errorf("Dispatch(nil rules) = %+v, %v", result, err)
	}
}

func TestDispatch_MissingVariableInActionStopsSequence(t *testing.T) {
	e, f := newTestEngine(t)
	result := dispatch(t, e, types.Message{Kind: types.KindText, Data: "x"}, `[t]
plumb run echo {nope}
plumb run never
`)
	if !result.Matched || result.Completed {
		t.Errorf("Matched, Completed = %v, %v, want true, false", result.Matched, result.Completed)
	}
	if len(f.runner.calls) != 0 {
		t.Errorf("runner calls = %v, want none", f.runner.calls)
	}
}

func TestDispatch_MissingExecutableIsActionFailure(t *testing.T) {
	e, f := newTestEngine(t)
	f.runner.err = errors.New(`exec: "nope": executable file not found in $PATH`)
	result := dispatch(t, e, types.Message{Kind: types.KindText, Data: "x"}, `[t]
plumb run nope
`)
	if !result.Matched || result.Completed {
		t.Errorf("Matched, Completed = %v, %v, want true, false", result.Matched, result.Completed)
	}
}

func TestDispatch_SaveBindsDataFile(t *testing.T) {
	e, f := newTestEngine(t)
	result := dispatch(t, e, types.Message{Kind: types.KindRaw, Data: "payload\x00bytes"}, `[t]
plumb save
plumb run cat {data_file}
`)
	if !result.Completed {
		t.Fatalf("Completed = false, actions = %+v", result.Actions)
	}
	path := result.Bindings["data_file"]
	if !strings.HasPrefix(filepath.Base(path), "plumber-temp-") {
		t.Errorf("data_file = %q, want plumber-temp-* name", path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(data_file) error = %v", err)
	}
	if string(content) != "payload\x00bytes" {
		t.Errorf("saved content = %q", content)
	}
	if len(f.runner.calls) != 1 || f.runner.calls[0][1] != path {
		t.Errorf("runner calls = %v, want cat %s", f.runner.calls, path)
	}
}

func TestDispatch_SaveFailureIsCapabilityError(t *testing.T) {
	e, _ := newTestEngine(t, WithTempDir(filepath.Join(t.TempDir(), "does", "not", "exist")))
	result, err := e.Dispatch(context.Background(), types.Message{Kind: types.KindText, Data: "x"}, mustCompile(t, `[t]
plumb save
`))
	if !errors.Is(err, types.ErrCapability) {
		t.Fatalf("Dispatch() error = %v, want ErrCapability", err)
	}
	if result == nil || !result.Matched || result.Completed {
		t.Errorf("result = %+v, want matched and not completed", result)
	}
}

func TestDispatch_Download(t *testing.T) {
	e, f := newTestEngine(t)
	f.fetcher.bodies["https://example.com/a.png"] = "PNGDATA"
	result := dispatch(t, e, types.Message{Kind: types.KindURL, Data: "https://example.com/a.png"}, `[t]
kind is url
plumb download {data}
plumb run feh {filename}
`)
	if !result.Completed {
		t.Fatalf("Completed = false, actions = %+v", result.Actions)
	}
	path := result.Bindings["filename"]
	if !strings.HasPrefix(filepath.Base(path), "plumber-") {
		t.Errorf("filename = %q, want plumber-* name", path)
	}
	content, err := os.ReadFile(path)
	if err != nil || string(content) != "PNGDATA" {
		t.Errorf("downloaded content = %q, %v", content, err)
	}
}

func TestDispatch_DownloadFailureIsActionFailure(t *testing.T) {
	e, f := newTestEngine(t)
	result := dispatch(t, e, types.Message{Kind: types.KindURL, Data: "https://example.com/missing"}, `[t]
plumb download {data}
plumb run feh {filename}
`)
	if !result.Matched || result.Completed {
		t.Errorf("Matched, Completed = %v, %v, want true, false", result.Matched, result.Completed)
	}
	if len(f.runner.calls) != 0 {
		t.Errorf("runner calls = %v, want none", f.runner.calls)
	}
	if _, ok := result.Bindings["filename"]; ok {
		t.Errorf("filename bound after failed download")
	}
}

func TestDispatch_ClassifierFailureAbortsDispatch(t *testing.T) {
	e, f := newTestEngine(t)
	f.classifier.err = errors.New("backend gone")
	_, err := e.Dispatch(context.Background(), types.Message{Kind: types.KindRaw, Data: "x"}, mustCompile(t, `[t]
data istype .
plumb run never
`))
	if !errors.Is(err, types.ErrCapability) {
		t.Errorf("Dispatch() error = %v, want ErrCapability", err)
	}
	if len(f.runner.calls) != 0 {
		t.Errorf("runner calls = %v, want none", f.runner.calls)
	}
}

func TestDispatch_DryRun(t *testing.T) {
	e, f := newTestEngine(t, WithDryRun(true))
	result := dispatch(t, e, types.Message{Kind: types.KindText, Data: "hello"}, `[t]
data matches (ell)
plumb run echo {0}
plumb notify {data}
plumb save
`)
	if !result.Matched || !result.Completed {
		t.Fatalf("Matched, Completed = %v, %v", result.Matched, result.Completed)
	}
	if len(f.runner.calls) != 0 || len(f.notifier.sent) != 0 {
		t.Errorf("dry run executed actions: runs %v, notifications %v", f.runner.calls, f.notifier.sent)
	}
	if len(result.Actions) != 3 {
		t.Fatalf("Actions = %d, want 3", len(result.Actions))
	}
	if !result.Actions[0].Skipped || result.Actions[0].Resolved != "echo ell" {
		t.Errorf("Actions[0] = %+v, want skipped with resolved argv", result.Actions[0])
	}
	if _, ok := result.Bindings["data_file"]; ok {
		t.Errorf("dry run bound data_file")
	}
}

func TestEngine_With(t *testing.T) {
	e, f := newTestEngine(t)
	dry := e.With(WithDryRun(true))
	if e.DryRun() || !dry.DryRun() {
		t.Fatalf("DryRun() = %v, %v, want false, true", e.DryRun(), dry.DryRun())
	}

	src := "[t]\nplumb notify {data}\n"
	dispatch(t, dry, types.Message{Kind: types.KindText, Data: "x"}, src)
	if len(f.notifier.sent) != 0 {
		t.Fatalf("dry copy notified: %v", f.notifier.sent)
	}
	dispatch(t, e, types.Message{Kind: types.KindText, Data: "x"}, src)
	if len(f.notifier.sent) != 1 {
		t.Errorf("original engine notified %d times, want 1", len(f.notifier.sent))
	}
}

// Property-based test: a failed rule leaves no trace in the context
func TestEvaluate_PropertyFailedRuleLeavesNoTrace(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// Clause pool: the first four always hold and mutate, the last never holds.
	pool := []string{
		"data matches (.)(.)",
		"data rewrite a,b",
		"arg rewrite {kind} t,T",
		"data istype ^text/(.*)$",
		"data is never-this",
	}

	properties.Property("context after a failing rule equals context before it", prop.ForAll(
		func(clauses []int, failAt int) bool {
			var lines []string
			for _, c := range clauses {
				lines = append(lines, pool[c%4])
			}
			pos := failAt % (len(lines) + 1)
			lines = append(lines[:pos], append([]string{pool[4]}, lines[pos:]...)...)

			src := "[fails]\n" + strings.Join(lines, "\n") + "\nplumb run never\n"
			compiled, err := CompileAll(mustParse(t, src))
			if err != nil {
				t.Logf("compile: %v", err)
				return false
			}

			e, f := newTestEngine(t)
			f.classifier.types["abc"] = "text/plain"
			f.classifier.types["bbc"] = "text/plain"
			vars := NewContext(map[string]string{"data": "abc", "kind": "text"}, "data", "kind")
			before := vars.Snapshot()
			beforeKeys := vars.Keys()

			result, err := e.Evaluate(context.Background(), vars, NewTypeCache(), compiled)
			if err != nil || result.Matched {
				return false
			}
			return reflect.DeepEqual(vars.Snapshot(), before) &&
				reflect.DeepEqual(vars.Keys(), beforeKeys) &&
				len(f.runner.calls) == 0
		},
		gen.SliceOfN(6, gen.IntRange(0, 3)),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

func TestDispatch_IndependentDispatches(t *testing.T) {
	e, f := newTestEngine(t)
	rules := mustCompile(t, `[t]
data matches (x)
plumb run echo {0}
`)
	for i := 0; i < 3; i++ {
		msg := types.Message{Kind: types.KindText, Data: fmt.Sprintf("x%d", i)}
		if _, err := e.Dispatch(context.Background(), msg, rules); err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
	}
	if len(f.runner.calls) != 3 {
		t.Errorf("runner calls = %d, want 3", len(f.runner.calls))
	}
}
