package capability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"

	"github.com/solatis/mario/internal/types"
)

func newTestServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var agents []string
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.UserAgent())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, "<html></html>")
	})
	mux.HandleFunc("/bare", func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &agents
}

func TestHTTPFetcher_Get(t *testing.T) {
	srv, agents := newTestServer(t)
	f := NewHTTPFetcher(srv.Client(), "test-agent/1.0")

	body, err := f.Get(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "<html></html>" {
		t.Errorf("body = %q", data)
	}
	if len(*agents) != 1 || (*agents)[0] != "test-agent/1.0" {
		t.Errorf("User-Agent = %v, want test-agent/1.0", *agents)
	}

	if _, err := f.Get(context.Background(), srv.URL+"/missing"); err == nil {
		t.Errorf("Get(/missing) error = nil, want 404 error")
	}
}

func TestHTTPFetcher_Head(t *testing.T) {
	srv, _ := newTestServer(t)
	f := NewHTTPFetcher(srv.Client(), "")

	got, err := f.Head(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if got != "text/html" {
		t.Errorf("Head() = %q, want text/html", got)
	}

	if _, err := f.Head(context.Background(), srv.URL+"/bare"); err == nil {
		t.Errorf("Head(/bare) error = nil, want missing Content-Type error")
	}
}

func TestMediaType(t *testing.T) {
	tests := map[string]string{
		"text/html; charset=utf-8": "text/html",
		"image/png":                "image/png",
		"":                         "",
		"Text/Plain ; x":           "text/plain",
	}
	for in, want := range tests {
		if got := MediaType(in); got != want {
			t.Errorf("MediaType(%q) = %q, want %q", in, got, want)
		}
	}
}

type fakeHead struct {
	types map[string]string
	calls int
}

func (f *fakeHead) Head(_ context.Context, url string) (string, error) {
	f.calls++
	t, ok := f.types[url]
	if !ok {
		return "", errors.New("connection refused")
	}
	return t, nil
}

func TestMIMEClassifier(t *testing.T) {
	head := &fakeHead{types: map[string]string{
		"https://example.com/watch?v=1": "text/html",
		"https://example.com/a.png":     "application/octet-stream",
	}}

	tests := []struct {
		name   string
		strict bool
		kind   types.Kind
		value  string
		want   string
	}{
		{"url by extension", false, types.KindURL, "https://example.com/a.png", "image/png"},
		{"url extension ignores query", false, types.KindURL, "https://example.com/a.png?size=2", "image/png"},
		{"url falls back to HEAD", false, types.KindURL, "https://example.com/watch?v=1", "text/html"},
		{"url strict always HEADs", true, types.KindURL, "https://example.com/a.png", "application/octet-stream"},
		{"url lookup failure is unknown", false, types.KindURL, "https://unreachable.invalid/x", ""},
		{"raw png is sniffed", false, types.KindRaw, "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR", "image/png"},
		{"raw text is sniffed without charset", false, types.KindRaw, "plain words\n", "text/plain"},
		{"text is text/plain", false, types.KindText, "anything", "text/plain"},
		{"unspecified is unknown", false, types.KindUnspecified, "x", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewMIMEClassifier(head, tt.strict)
			got, err := c.Classify(context.Background(), tt.kind, tt.value)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify(%v, %q) = %q, want %q", tt.kind, tt.value, got, tt.want)
			}
		})
	}
}

func TestMIMEClassifier_NoHeadFetcher(t *testing.T) {
	c := NewMIMEClassifier(nil, false)
	got, err := c.Classify(context.Background(), types.KindURL, "https://example.com/watch")
	if err != nil || got != "" {
		t.Errorf("Classify() = %q, %v, want empty, nil", got, err)
	}
}

func TestExecRunner(t *testing.T) {
	for _, prog := range []string{"true", "false"} {
		if _, err := exec.LookPath(prog); err != nil {
			t.Skipf("%s not available: %v", prog, err)
		}
	}
	r := &ExecRunner{}

	code, err := r.Run(context.Background(), []string{"true"})
	if err != nil || code != 0 {
		t.Errorf("Run(true) = %d, %v, want 0, nil", code, err)
	}

	code, err = r.Run(context.Background(), []string{"false"})
	if err != nil || code != 1 {
		t.Errorf("Run(false) = %d, %v, want 1, nil", code, err)
	}

	_, err = r.Run(context.Background(), []string{"mario-no-such-program-xyz"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Run(missing) error = %v, want ErrNotFound", err)
	}

	if _, err := r.Run(context.Background(), nil); err == nil {
		t.Errorf("Run(nil) error = nil, want error")
	}
}

func TestLogNotifier(t *testing.T) {
	if err := NewLogNotifier().Notify("rule", "body"); err != nil {
		t.Errorf("Notify() error = %v", err)
	}
}
