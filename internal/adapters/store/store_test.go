package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

type repo interface {
	core.MessageRepository
	Stop()
}

func stores(t *testing.T) map[string]repo {
	t.Helper()

	sqlite, err := NewSQLiteStore(":memory:", zap.NewNop(), 0, time.Hour)
	require.NoError(t, err)

	out := map[string]repo{
		"memory": NewMemoryStore(zap.NewNop(), 0, time.Hour),
		"sqlite": sqlite,
	}
	for _, s := range out {
		t.Cleanup(s.Stop)
	}
	return out
}

func testMessage(id string, received time.Time) *core.Message {
	return &core.Message{
		CanonicalID: id,
		AccountID:   "acc-1",
		UID:         7,
		From:        core.Address{Name: "Dana", Email: "dana@example.com"},
		To:          []core.Address{{Email: "sales@acme.io"}},
		Cc:          []core.Address{{Name: "Boss", Email: "boss@example.com"}},
		Subject:     "Re: pricing",
		TextBody:    "Budget approved",
		HTMLBody:    "<p>Budget approved</p>",
		Folder:      "INBOX",
		IsRead:      true,
		ReceivedAt:  received,
		Attachments: []core.Attachment{{Filename: "quote.pdf", ContentType: "application/pdf", Size: 12}},
		Classification: &core.Classification{
			Category:     core.CategoryInterested,
			Confidence:   0.9,
			Source:       core.SourceRules,
			ClassifiedAt: received,
			Insights:     &core.Insights{Sentiment: "positive", Signals: []string{"budget approved"}},
		},
	}
}

func TestCreateAndFind(t *testing.T) {
	at := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := testMessage("abc@example.com", at)
			require.NoError(t, s.Create(ctx, want))

			got, err := s.FindByCanonicalID(ctx, "abc@example.com")
			require.NoError(t, err)
			assert.Equal(t, want.From, got.From)
			assert.Equal(t, want.To, got.To)
			assert.Equal(t, want.Cc, got.Cc)
			assert.Equal(t, want.Attachments, got.Attachments)
			assert.True(t, got.IsRead)
			assert.True(t, at.Equal(got.ReceivedAt))
			require.NotNil(t, got.Classification)
			assert.Equal(t, core.CategoryInterested, got.Classification.Category)
			assert.Equal(t, []string{"budget approved"}, got.Classification.Insights.Signals)

			_, err = s.FindByCanonicalID(ctx, "missing")
			assert.ErrorIs(t, err, core.ErrNotFound)
		})
	}
}

func TestCreateDuplicateIsRejected(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			msg := testMessage("dup@example.com", time.Now().UTC())

			require.NoError(t, s.Create(ctx, msg))
			assert.ErrorIs(t, s.Create(ctx, msg), core.ErrDuplicateMessage)

			all, err := s.Query(ctx, core.QueryOptions{})
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestConcurrentCreateStoresOnce(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				created int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := s.Create(ctx, testMessage("race@example.com", time.Now().UTC())); err == nil {
						mu.Lock()
						created++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, created)
		})
	}
}

func TestUpdateClassification(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Create(ctx, testMessage("u@example.com", time.Now().UTC())))

			cls := &core.Classification{Category: core.CategorySpam, Confidence: 0.6, Source: core.SourceModel}
			require.NoError(t, s.UpdateClassification(ctx, "u@example.com", cls))
			require.NoError(t, s.UpdateClassification(ctx, "u@example.com", cls))

			got, err := s.FindByCanonicalID(ctx, "u@example.com")
			require.NoError(t, err)
			assert.Equal(t, core.CategorySpam, got.Classification.Category)
			assert.Nil(t, got.Classification.Insights)

			assert.ErrorIs(t, s.UpdateClassification(ctx, "nope", cls), core.ErrNotFound)
		})
	}
}

func TestQueryPagingAndCleanup(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				msg := testMessage(fmt.Sprintf("m%d@example.com", i), base.Add(time.Duration(i)*time.Hour))
				if i == 4 {
					msg.AccountID = "acc-2"
				}
				require.NoError(t, s.Create(ctx, msg))
			}

			page, err := s.Query(ctx, core.QueryOptions{Limit: 2})
			require.NoError(t, err)
			require.Len(t, page, 2)
			assert.Equal(t, "m4@example.com", page[0].CanonicalID)

			page, err = s.Query(ctx, core.QueryOptions{Limit: 2, Offset: 4})
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, "m0@example.com", page[0].CanonicalID)

			byAccount, err := s.Query(ctx, core.QueryOptions{AccountID: "acc-1", Since: base.Add(2 * time.Hour)})
			require.NoError(t, err)
			assert.Len(t, byAccount, 2)

			removed, err := s.Cleanup(ctx, base.Add(2*time.Hour))
			require.NoError(t, err)
			assert.EqualValues(t, 2, removed)

			require.NoError(t, s.DeleteAll(ctx))
			all, err := s.Query(ctx, core.QueryOptions{})
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestPurgedMessageIsNotStoredAgain(t *testing.T) {
	old := time.Now().Add(-30 * 24 * time.Hour)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Create(ctx, testMessage("old@example.com", old)))

			removed, err := s.Cleanup(ctx, time.Now().Add(-7*24*time.Hour))
			require.NoError(t, err)
			assert.EqualValues(t, 1, removed)

			_, err = s.FindByCanonicalID(ctx, "old@example.com")
			assert.ErrorIs(t, err, core.ErrMessagePurged)
			assert.ErrorIs(t, err, core.ErrNotFound)
			assert.ErrorIs(t, s.Create(ctx, testMessage("old@example.com", old)), core.ErrDuplicateMessage)

			require.NoError(t, s.DeleteAll(ctx))
			assert.NoError(t, s.Create(ctx, testMessage("old@example.com", old)))
		})
	}
}

func TestRetentionLoopPurges(t *testing.T) {
	s := NewMemoryStore(zap.NewNop(), time.Hour, 10*time.Millisecond)
	defer s.Stop()

	ctx := context.Background()
	require.NoError(t, s.Create(ctx, testMessage("old@example.com", time.Now().Add(-2*time.Hour))))
	require.NoError(t, s.Create(ctx, testMessage("new@example.com", time.Now())))

	assert.Eventually(t, func() bool {
		_, err := s.FindByCanonicalID(ctx, "old@example.com")
		return errors.Is(err, core.ErrNotFound)
	}, time.Second, 10*time.Millisecond)

	_, err := s.FindByCanonicalID(ctx, "new@example.com")
	assert.NoError(t, err)
}

func TestMemoryAccounts(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryAccounts([]*core.Account{
		{ID: "b", Active: true},
		{ID: "a", Active: true},
		{ID: "c", Active: false},
	})

	active, err := r.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)

	require.NoError(t, r.RecordError(ctx, "a", "timeout"))
	require.NoError(t, r.RecordError(ctx, "a", "auth failed"))
	require.NoError(t, r.UpdateStatus(ctx, "a", core.AccountFailed, ""))
	acc, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, acc.Stats.ErrorCount)
	assert.Equal(t, "auth failed", acc.Stats.LastError)
	assert.Equal(t, core.AccountFailed, acc.Status)

	require.NoError(t, r.SetActive(ctx, "a", true))
	acc, _ = r.Get(ctx, "a")
	assert.Equal(t, core.AccountPending, acc.Status)
	assert.Zero(t, acc.Stats.ErrorCount)

	c, _ := r.Get(ctx, "c")
	assert.Equal(t, core.AccountDisabled, c.Status)

	now := time.Now()
	require.NoError(t, r.RecordSync(ctx, "b", 3, now))
	b, _ := r.Get(ctx, "b")
	assert.EqualValues(t, 3, b.Stats.SyncCount)
	assert.True(t, now.Equal(b.LastSyncAt))

	assert.ErrorIs(t, r.SetActive(ctx, "zzz", true), core.ErrNotFound)
}
