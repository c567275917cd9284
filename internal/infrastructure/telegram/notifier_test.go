package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QAForge/internal/domain"
)

type capture struct {
	mu    sync.Mutex
	paths []string
	texts []string
}

func newServer(t *testing.T, status int) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "42", r.PostForm.Get("chat_id"))
		assert.Equal(t, "Markdown", r.PostForm.Get("parse_mode"))
		c.mu.Lock()
		c.paths = append(c.paths, r.URL.Path)
		c.texts = append(c.texts, r.PostForm.Get("text"))
		c.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, c
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierPostsRunSummaries(t *testing.T) {
	t.Parallel()

	server, got := newServer(t, http.StatusOK)
	n := NewNotifier("token", "42", quietLogger())
	n.apiBase = server.URL
	n.client = server.Client()

	stats := domain.Stats{Documents: 2, PairsGenerated: 4, PairsWritten: 3, HighWritten: 2, MediumWritten: 1}
	n.DocumentStarted(domain.DocumentEvent{})
	n.RunCompleted(stats)
	n.RunFailed(errors.New("io: `PATH_UNWRITABLE`"), stats)

	require.Len(t, got.texts, 2)
	assert.Equal(t, "/bottoken/sendMessage", got.paths[0])
	assert.Contains(t, got.texts[0], "run completed")
	assert.Contains(t, got.texts[0], "written: 3 (2 high, 1 medium)")
	assert.Contains(t, got.texts[0], "retention: 75.0%")
	assert.Contains(t, got.texts[1], "run failed")
	assert.Contains(t, got.texts[1], "'PATH_UNWRITABLE'")
}

func TestPublishDigestErrors(t *testing.T) {
	t.Parallel()

	server, _ := newServer(t, http.StatusBadRequest)
	n := NewNotifier("token", "42", quietLogger())
	n.apiBase = server.URL
	n.client = server.Client()
	require.ErrorContains(t, n.PublishDigest(context.Background(), "hi"), "400")

	require.ErrorContains(t, NewNotifier("", "42", nil).PublishDigest(context.Background(), "hi"), "misconfigured")
}
