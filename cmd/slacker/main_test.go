package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/slacker/internal/config"
)

type hookRequest struct {
	Hook string
	Body string
	At   time.Time
}

type fakeSlack struct {
	mu     sync.Mutex
	reqs   []hookRequest
	status int
	srv    *httptest.Server
}

func newFakeSlack(t *testing.T) *fakeSlack {
	t.Helper()
	f := &fakeSlack{status: http.StatusOK}

	r := chi.NewRouter()
	r.Post("/services/{hook}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.reqs = append(f.reqs, hookRequest{
			Hook: chi.URLParam(r, "hook"),
			Body: string(body),
			At:   time.Now(),
		})
		status := f.status
		f.mu.Unlock()
		w.WriteHeader(status)
	})

	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSlack) hook(name string) string {
	return f.srv.URL + "/services/" + name
}

func (f *fakeSlack) requests() []hookRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]hookRequest(nil), f.reqs...)
}

func (f *fakeSlack) bodies() []string {
	var out []string
	for _, r := range f.requests() {
		out = append(out, r.Body)
	}
	return out
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slacker.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

type result struct {
	code   int
	stdout string
	stderr string
}

func runWith(t *testing.T, stdin io.Reader, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, stdin, &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestDefaultHookRateLimited(t *testing.T) {
	slack := newFakeSlack(t)
	cfg := writeConfig(t, fmt.Sprintf("slack_hook = %q\n", slack.hook("XYZ")))

	res := runWith(t, strings.NewReader("hello\nworld\n"), "-c", cfg, "--interval", "50ms")

	assert.Equal(t, 0, res.code)
	assert.Empty(t, res.stdout)
	assert.Empty(t, res.stderr)

	reqs := slack.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, `{"text":"hello"}`, reqs[0].Body)
	assert.Equal(t, `{"text":"world"}`, reqs[1].Body)
	assert.Equal(t, "XYZ", reqs[1].Hook)
	// Allow a little slack for the request reaching the server.
	assert.Greater(t, reqs[1].At.Sub(reqs[0].At), 40*time.Millisecond)
}

func TestURLFlagSkipsConfig(t *testing.T) {
	slack := newFakeSlack(t)

	res := runWith(t, strings.NewReader("hi\n"), "-u", slack.hook("W"), "-c", "/nonexistent")

	assert.Equal(t, 0, res.code)
	assert.Empty(t, res.stderr)
	assert.Equal(t, []string{`{"text":"hi"}`}, slack.bodies())
}

func TestNamedHook(t *testing.T) {
	slack := newFakeSlack(t)
	cfg := writeConfig(t, fmt.Sprintf("[hooks]\nalerts = %q\ndev = %q\n", slack.hook("alerts"), slack.hook("dev")))

	res := runWith(t, strings.NewReader("ping\n"), "-c", cfg, "-n", "dev")

	assert.Equal(t, 0, res.code)
	reqs := slack.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "dev", reqs[0].Hook)
	assert.Equal(t, `{"text":"ping"}`, reqs[0].Body)
}

func TestMissingNamedHook(t *testing.T) {
	slack := newFakeSlack(t)
	cfg := writeConfig(t, fmt.Sprintf("[hooks]\nalerts = %q\n", slack.hook("alerts")))

	res := runWith(t, strings.NewReader("ping\n"), "-c", cfg, "-n", "missing")

	assert.Equal(t, 1, res.code)
	assert.Equal(t, "Could not find Slack Webhook 'missing'\n", res.stderr)
	assert.Empty(t, slack.requests())
}

func TestMissingDefaultHook(t *testing.T) {
	cfg := writeConfig(t, "")

	res := runWith(t, strings.NewReader("ping\n"), "-c", cfg)

	assert.Equal(t, 1, res.code)
	assert.Equal(t, "Missing default Slack Webhook\n", res.stderr)
}

func TestUnreadableConfig(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.conf") }},
		{"bad toml", func(t *testing.T) string { return writeConfig(t, "slack_hook = [") }},
		{"not a url", func(t *testing.T) string { return writeConfig(t, `slack_hook = "mailto:ops@example.com"`) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runWith(t, strings.NewReader("x\n"), "-c", tt.path(t))

			assert.Equal(t, 1, res.code)
			assert.True(t, strings.HasPrefix(res.stderr, "Failed to read config ("), res.stderr)
			assert.True(t, strings.HasSuffix(res.stderr, ")\n"), res.stderr)
		})
	}
}

func TestDefaultConfigPathUnderHome(t *testing.T) {
	slack := newFakeSlack(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".config"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(home, ".config", "slacker.conf"),
		[]byte(fmt.Sprintf("slack_hook = %q\n", slack.hook("home"))),
		0o600,
	))

	res := runWith(t, strings.NewReader("from home\n"))

	assert.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, []string{`{"text":"from home"}`}, slack.bodies())
}

func TestNoRateLimit(t *testing.T) {
	slack := newFakeSlack(t)

	var in strings.Builder
	var want []string
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&in, "msg %d\n", i)
		want = append(want, fmt.Sprintf(`{"text":"msg %d"}`, i))
	}

	start := time.Now()
	res := runWith(t, strings.NewReader(in.String()), "-u", slack.hook("fast"), "--no-rate-limit", "--interval", "1h")

	assert.Equal(t, 0, res.code)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, want, slack.bodies())
}

func TestSendFailuresAreNotFatal(t *testing.T) {
	slack := newFakeSlack(t)
	slack.status = http.StatusInternalServerError

	res := runWith(t, strings.NewReader("a\nb\n"), "-u", slack.hook("down"), "--no-rate-limit")

	assert.Equal(t, 0, res.code)
	assert.Len(t, slack.requests(), 2)
	assert.Equal(t,
		"Failed to send message (webhook returned 500 Internal Server Error)\n"+
			"Failed to send message (webhook returned 500 Internal Server Error)\n",
		res.stderr)
}

func TestReadFailure(t *testing.T) {
	slack := newFakeSlack(t)
	in := io.MultiReader(strings.NewReader("ok\n"), iotest.ErrReader(errors.New("boom")))

	res := runWith(t, in, "-u", slack.hook("r"), "--no-rate-limit")

	assert.Equal(t, 1, res.code)
	assert.Equal(t, "Failed to read input (boom).\n", res.stderr)
	assert.Equal(t, []string{`{"text":"ok"}`}, slack.bodies())
}

func TestInvalidUTF8Input(t *testing.T) {
	slack := newFakeSlack(t)

	res := runWith(t, strings.NewReader("fine\na\xffb\n"), "-u", slack.hook("u"), "--no-rate-limit")

	assert.Equal(t, 1, res.code)
	assert.Equal(t, "Failed to read input (stream did not contain valid UTF-8).\n", res.stderr)
	assert.Equal(t, []string{`{"text":"fine"}`}, slack.bodies())
}

func TestQuietLogLevelsRejected(t *testing.T) {
	cfg := writeConfig(t, "")

	for _, level := range []string{"fatal", "panic", "disabled"} {
		t.Run(level, func(t *testing.T) {
			res := runWith(t, strings.NewReader("x\n"), "-c", cfg, "--log-level", level)

			assert.Equal(t, 1, res.code)
			assert.Contains(t, res.stderr, "--log-level")
			assert.Contains(t, res.stderr, "Usage:")
		})
	}
}

func TestQuietLogLevelFromEnvRejected(t *testing.T) {
	t.Setenv("SLACKER_LOG_LEVEL", "disabled")

	res := runWith(t, strings.NewReader("x\n"), "-c", writeConfig(t, ""))

	assert.Equal(t, 1, res.code)
	assert.NotEmpty(t, res.stderr)
}

func TestErrorLevelKeepsDiagnostics(t *testing.T) {
	res := runWith(t, strings.NewReader("x\n"), "-c", writeConfig(t, ""), "--log-level", "error")

	assert.Equal(t, 1, res.code)
	assert.Equal(t, "Missing default Slack Webhook\n", res.stderr)
}

func TestIntervalWithoutUnitRejected(t *testing.T) {
	t.Setenv("SLACKER_INTERVAL", "1000")

	res := runWith(t, strings.NewReader("x\n"), "-u", "https://hooks.example/x")

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "invalid --interval")
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"url and name", []string{"-u", "https://hooks.example/x", "-n", "dev"}, "none of the others can be"},
		{"unknown flag", []string{"--bogus"}, "unknown flag: --bogus"},
		{"malformed url", []string{"-u", "hooks.example/x"}, "invalid --url"},
		{"bad interval", []string{"-u", "https://hooks.example/x", "--interval", "0s"}, "--interval must be positive"},
		{"stray argument", []string{"extra"}, "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runWith(t, strings.NewReader(""), tt.args...)

			assert.Equal(t, 1, res.code)
			assert.Contains(t, res.stderr, tt.want)
			assert.Contains(t, res.stderr, "Usage:")
		})
	}
}

func TestURLAndNameFromEnv(t *testing.T) {
	t.Setenv("SLACKER_URL", "https://hooks.example/x")

	res := runWith(t, strings.NewReader(""), "-n", "dev")

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "mutually exclusive")
}

func TestURLFromEnv(t *testing.T) {
	slack := newFakeSlack(t)
	t.Setenv("SLACKER_URL", slack.hook("env"))

	res := runWith(t, strings.NewReader("via env\n"), "-c", "/nonexistent")

	assert.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, []string{`{"text":"via env"}`}, slack.bodies())
}

func TestVersion(t *testing.T) {
	res := runWith(t, strings.NewReader(""), "version")

	assert.Equal(t, 0, res.code)
	assert.Equal(t, "slacker v"+version+"\n", res.stdout)
}

func TestDiagnose(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&config.HookNotFoundError{Name: "ops"}, "Could not find Slack Webhook 'ops'"},
		{config.ErrNoDefaultHook, "Missing default Slack Webhook"},
		{&config.LoadError{Path: "/x", Err: errors.New("permission denied")}, "Failed to read config (permission denied)"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, diagnose(tt.err))
	}
}
