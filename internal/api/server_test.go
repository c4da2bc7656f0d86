package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/core"
	"github.com/mikey/llm-mail-pipeline/internal/mailsync"
)

type fakePipeline struct {
	activated   []string
	deactivated []string
	resyncs     int
}

func (f *fakePipeline) Status(ctx context.Context) (mailsync.Status, error) {
	return mailsync.Status{
		Accounts:  []mailsync.AccountStatus{{ID: "a", Status: core.AccountWatching, Session: mailsync.StateWatching, Connected: true}},
		Connected: 1,
		Total:     1,
		Model:     mailsync.ModelStatus{Name: "rules"},
	}, nil
}

func (f *fakePipeline) SyncAll(ctx context.Context) (int, error) { return 2, nil }

func (f *fakePipeline) ForceResync(ctx context.Context) error {
	f.resyncs++
	return nil
}

func (f *fakePipeline) Reindex(ctx context.Context) (int, error) {
	return 0, fmt.Errorf("no search index configured")
}

func (f *fakePipeline) Activate(ctx context.Context, id string) error {
	if id == "missing" {
		return fmt.Errorf("failed to activate account %s: %w", id, core.ErrNotFound)
	}
	f.activated = append(f.activated, id)
	return nil
}

func (f *fakePipeline) Deactivate(ctx context.Context, id string) error {
	f.deactivated = append(f.deactivated, id)
	return nil
}

func (f *fakePipeline) Reclassify(ctx context.Context, id string) (*core.Classification, error) {
	return &core.Classification{Category: core.CategoryMeetingBooked, Confidence: 0.9, Source: core.SourceRules}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path string) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var env envelope
	if path != "/healthz" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func TestStatusEndpoints(t *testing.T) {
	p := &fakePipeline{}
	h := NewStatusServer(p, "127.0.0.1:0", zap.NewNop()).Handler()

	code, _ := do(t, h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, code)

	code, env := do(t, h, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, code)
	var st mailsync.Status
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, 1, st.Connected)
	assert.Equal(t, mailsync.StateWatching, st.Accounts[0].Session)

	code, env = do(t, h, http.MethodPost, "/sync")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"sessions_started":2}`, string(env.Data))

	code, _ = do(t, h, http.MethodPost, "/resync")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, p.resyncs)
}

func TestAccountAndMessageEndpoints(t *testing.T) {
	p := &fakePipeline{}
	h := NewStatusServer(p, "127.0.0.1:0", zap.NewNop()).Handler()

	code, _ := do(t, h, http.MethodPost, "/accounts/a/activate")
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, h, http.MethodPost, "/accounts/b/deactivate")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"a"}, p.activated)
	assert.Equal(t, []string{"b"}, p.deactivated)

	code, env := do(t, h, http.MethodPost, "/accounts/missing/activate")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	code, env = do(t, h, http.MethodPost, "/messages/m1@acme.io/reclassify")
	require.Equal(t, http.StatusOK, code)
	var cls core.Classification
	require.NoError(t, json.Unmarshal(env.Data, &cls))
	assert.Equal(t, core.CategoryMeetingBooked, cls.Category)

	code, env = do(t, h, http.MethodPost, "/reindex")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, env.Error.Message, "no search index")
}

func TestServerStartStop(t *testing.T) {
	s := NewStatusServer(&fakePipeline{}, "127.0.0.1:0", zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.Stop())
}
