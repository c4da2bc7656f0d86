package index

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

func testMessage(id string) *core.Message {
	return &core.Message{
		CanonicalID: id,
		AccountID:   "acct-1",
		From:        core.Address{Name: "Jane Doe", Email: "jane@acme.io"},
		To:          []core.Address{{Email: "sales@example.org"}},
		Subject:     "Pricing",
		TextBody:    "Can you send pricing?",
		Folder:      "INBOX",
		ReceivedAt:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Attachments: []core.Attachment{{Filename: "brief.pdf", ContentType: "application/pdf", Size: 10}},
		Classification: &core.Classification{
			Category:   core.CategoryInterested,
			Confidence: 0.8,
			Source:     core.SourceRules,
		},
	}
}

func TestNewDocument(t *testing.T) {
	doc := NewDocument(testMessage("m1@acme.io"), nil)
	assert.Equal(t, "m1@acme.io", doc.ID)
	assert.Equal(t, "jane@acme.io", doc.From)
	assert.Equal(t, []string{"sales@example.org"}, doc.To)
	assert.Equal(t, []string{"brief.pdf"}, doc.Attachments)
	assert.Equal(t, "interested", doc.Category)
	assert.Equal(t, "Can you send pricing?", doc.Body)
}

func TestMemoryIndexUpserts(t *testing.T) {
	idx := NewMemoryIndex(nil)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, testMessage("a")))
	msg := testMessage("a")
	msg.Subject = "Updated"
	require.NoError(t, idx.BulkIndex(ctx, []*core.Message{msg, testMessage("b")}))

	assert.Equal(t, 2, idx.Len())
	doc, ok := idx.Get("a")
	require.True(t, ok)
	assert.Equal(t, "Updated", doc.Subject)
}

func TestElasticIndexSingle(t *testing.T) {
	var gotPath string
	var got Document
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		assert.Equal(t, http.MethodPut, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	}))
	defer srv.Close()

	idx := NewElasticIndexer(srv.URL+"/", "mail", time.Second, nil, zap.NewNop())
	require.NoError(t, idx.Index(context.Background(), testMessage("m1@acme.io")))

	assert.Equal(t, "/mail/_doc/m1@acme.io", gotPath)
	assert.Equal(t, "m1@acme.io", got.ID)
}

func TestElasticBulkIndex(t *testing.T) {
	var lines []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_bulk", r.URL.Path)
		assert.Equal(t, "application/x-ndjson", r.Header.Get("Content-Type"))
		scanner := bufio.NewScanner(r.Body)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		_, _ = io.WriteString(w, `{"errors":false,"items":[]}`)
	}))
	defer srv.Close()

	idx := NewElasticIndexer(srv.URL, "mail", time.Second, nil, zap.NewNop())
	err := idx.BulkIndex(context.Background(), []*core.Message{testMessage("a"), testMessage("b")})
	require.NoError(t, err)

	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"_id":"a"`)
	assert.Contains(t, lines[2], `"_id":"b"`)
}

func TestElasticBulkIndexReportsItemErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = io.WriteString(w, `{"errors":true,"items":[
			{"index":{"_id":"a","status":201}},
			{"index":{"_id":"b","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad date"}}}
		]}`)
	}))
	defer srv.Close()

	idx := NewElasticIndexer(srv.URL, "mail", time.Second, nil, zap.NewNop())
	err := idx.BulkIndex(context.Background(), []*core.Message{testMessage("a"), testMessage("b")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, err.Error(), "bad date")
}

func TestElasticIndexHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cluster blocked", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	idx := NewElasticIndexer(srv.URL, "mail", time.Second, nil, zap.NewNop())
	err := idx.Index(context.Background(), testMessage("a"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "503"))
}

func TestNoopIndexer(t *testing.T) {
	var idx core.SearchIndexer = NoopIndexer{}
	assert.NoError(t, idx.Index(context.Background(), testMessage("a")))
	assert.NoError(t, idx.BulkIndex(context.Background(), nil))
}
