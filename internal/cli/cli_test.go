package cli

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payallenka/isl/internal/authn"
	"github.com/payallenka/isl/internal/backend"
	"github.com/payallenka/isl/internal/server"
	"github.com/payallenka/isl/internal/storage/memory"
)

// newBackend serves the real API over an in-memory store, in front of a
// model service that answers with reply.
func newBackend(t *testing.T, status int, reply string) string {
	t.Helper()

	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(model.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	auth := authn.NewService(store, authn.NewTokenManager([]byte("cli-test"), "isl-test", time.Hour, 24*time.Hour), logger)

	h, err := backend.NewHandler(store, auth, backend.NewInferenceClient(model.URL, 5*time.Second), logger)
	require.NoError(t, err)

	srv := server.New(server.Options{Logger: logger, Authenticator: auth})
	for _, reg := range h.Routes() {
		srv.Router.Method(reg.Method, reg.Path, reg.Handler)
	}
	api := httptest.NewServer(srv.Router)
	t.Cleanup(api.Close)
	return api.URL
}

// run executes the CLI with a config file that does not exist, so only
// defaults and flags apply.
func run(t *testing.T, baseURL string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCommand(strings.NewReader(""), &out, &errOut)

	full := []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}
	if baseURL != "" {
		full = append(full, "--base-url", baseURL)
	}
	root.SetArgs(append(full, args...))
	err := root.Execute()
	return out.String(), errOut.String(), err
}

const helloReply = `{"gesture":"HELLO","confidence":0.87}`

func TestPredict_Synthetic(t *testing.T) {
	url := newBackend(t, http.StatusOK, helloReply)

	out, _, err := run(t, url, "predict", "--source", "synthetic", "--no-progress")
	require.NoError(t, err)
	assert.Contains(t, out, "Gesture: HELLO")
	assert.Contains(t, out, "Confidence: 87.0%")
}

func TestPredict_BackendRejects(t *testing.T) {
	url := newBackend(t, http.StatusInternalServerError, "model unavailable")

	_, _, err := run(t, url, "predict", "--source", "synthetic", "--no-progress")
	require.Error(t, err)
	assert.Equal(t, "Error: model unavailable", err.Error())
}

func TestPredict_NetworkError(t *testing.T) {
	_, _, err := run(t, "http://127.0.0.1:1", "predict", "--source", "synthetic", "--no-progress")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "Error: Network request failed: "), err.Error())
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}

func TestPredict_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"source", []string{"--source", "webcam"}, "unknown frame source"},
		{"position", []string{"--source", "synthetic", "--position", "side"}, "unknown camera position"},
		{"quality", []string{"--source", "synthetic", "--quality", "101"}, "--quality"},
		{"frames", []string{"--source", "synthetic", "--frames", "-1"}, "--frames"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, "http://127.0.0.1:1", append([]string{"predict"}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPredict_PromptDeclined(t *testing.T) {
	var out, errOut bytes.Buffer
	root := NewRootCommand(strings.NewReader("n\n"), &out, &errOut)
	root.SetArgs([]string{
		"--config", filepath.Join(t.TempDir(), "missing.yaml"),
		"predict", "--source", "ffmpeg", "--device", "/dev/null", "--no-progress",
	})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Camera permission denied or blocked")
	assert.Contains(t, errOut.String(), "Allow access to the camera?")
}

func TestAccountAndHistoryFlow(t *testing.T) {
	url := newBackend(t, http.StatusOK, helloReply)

	out, _, err := run(t, url, "history")
	require.NoError(t, err)
	assert.Equal(t, "No transactions found.\n", out)

	out, _, err = run(t, url, "auth", "signup", "--email", "asha@example.com", "--password", "secret123", "--display-name", "Asha")
	require.NoError(t, err)
	assert.Contains(t, out, "Account created for asha@example.com")
	assert.Contains(t, out, "Display name: Asha")

	_, _, err = run(t, url, "predict", "--source", "synthetic", "--no-progress")
	require.NoError(t, err)

	out, _, err = run(t, url, "predict", "--source", "synthetic", "--no-progress",
		"--email", "asha@example.com", "--password", "secret123", "--show-latest")
	require.NoError(t, err)
	assert.Contains(t, out, "Last Transaction:")
	assert.Contains(t, out, "HELLO")

	out, _, err = run(t, url, "history")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "status:"), out)

	out, _, err = run(t, url, "history", "--email", "asha@example.com", "--password", "secret123")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "status:"), out)

	out, _, err = run(t, url, "history", "--latest")
	require.NoError(t, err)
	assert.Contains(t, out, "Last Transaction:")
	assert.Contains(t, out, "success")
}

func TestAuth_Errors(t *testing.T) {
	url := newBackend(t, http.StatusOK, helloReply)

	_, _, err := run(t, url, "auth", "signup", "--email", "ravi@example.com", "--password", "secret123")
	require.NoError(t, err)

	_, _, err = run(t, url, "auth", "signin", "--email", "ravi@example.com", "--password", "wrong-pass")
	require.Error(t, err)
	assert.Equal(t, "Incorrect password. Please try again.", err.Error())

	_, _, err = run(t, url, "auth", "signup", "--email", "ravi@example.com", "--password", "secret123")
	require.Error(t, err)
	assert.Equal(t, "An account with this email already exists. Please sign in instead.", err.Error())

	_, _, err = run(t, url, "auth", "signup", "--email", "ravi@example.com", "--password", "abc")
	require.Error(t, err)
	assert.Equal(t, "Password should be at least 6 characters long.", err.Error())

	out, _, err := run(t, url, "auth", "signin", "--email", "ravi@example.com", "--password", "secret123", "--print-token")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as ravi@example.com")
	assert.Equal(t, 2, strings.Count(out, "\n"), "token printed on its own line")
}

func TestSign(t *testing.T) {
	out, _, err := run(t, "", "sign", "Good morning", "Ravi")
	require.NoError(t, err)
	assert.Equal(t, "[GOOD MORNING] R A V I\n", out)

	out, _, err = run(t, "", "sign", "--json", "hi")
	require.NoError(t, err)
	assert.Contains(t, out, `"kind": "letter"`)

	_, _, err = run(t, "", "sign", "...")
	assert.EqualError(t, err, "nothing to sign")

	_, _, err = run(t, "", "sign")
	assert.Error(t, err)
}

func TestRoot_InvalidLogLevel(t *testing.T) {
	_, _, err := run(t, "", "--log-level", "loud", "sign", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --log-level")
}
