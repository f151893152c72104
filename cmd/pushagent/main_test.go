package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runAgent(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(slog.New(slog.NewTextHandler(io.Discard, nil)))
	root.SetOut(&out)
	root.SetArgs(args)
	require.NoError(t, root.ExecuteContext(context.Background()))
	return out.String()
}

func TestSigninCommand(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("PUSH_GATEWAY_URL", srv.URL)
	t.Setenv("PUSH_REQUEST_TIMEOUT", "")
	t.Setenv("IDENTITY_KEY", "")
	t.Setenv("PREFERENCES_PATH", filepath.Join(t.TempDir(), "prefs.json"))

	t.Run("Without a token only the identity is stored", func(t *testing.T) {
		assert.Equal(t, "signed_in\n", runAgent(t, "signin", "worker-1"))
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("With a token the device is registered", func(t *testing.T) {
		assert.Equal(t, "dispatched\n", runAgent(t, "signin", "worker-1", "--token", "tok-1"))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Rotation uses the stored identity", func(t *testing.T) {
		assert.Equal(t, "dispatched\n", runAgent(t, "rotate", "tok-2"))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("Signed out rotation is skipped", func(t *testing.T) {
		runAgent(t, "signout")
		assert.Equal(t, "skipped_no_identity\n", runAgent(t, "rotate", "tok-3"))
		assert.Equal(t, int32(2), calls.Load())
	})
}
