package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

type fakeChannel struct {
	name    string
	enabled bool
	err     error
	panics  bool
	block   bool
	calls   atomic.Int32
}

func (f *fakeChannel) Name() string  { return f.name }
func (f *fakeChannel) Enabled() bool { return f.enabled }

func (f *fakeChannel) Send(ctx context.Context, msg *core.Message) error {
	f.calls.Add(1)
	if f.panics {
		panic("boom")
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func message(category core.Category) *core.Message {
	return &core.Message{
		CanonicalID:    "m1@acme.io",
		Classification: &core.Classification{Category: category, Confidence: 0.9},
	}
}

func TestDispatchOnlyHighValue(t *testing.T) {
	ch := &fakeChannel{name: "webhook", enabled: true}
	d := NewDispatcher([]core.NotificationChannel{ch}, time.Second, zap.NewNop())

	for _, c := range []core.Category{core.CategorySpam, core.CategoryNotInterested, core.CategoryOutOfOffice} {
		report := d.Dispatch(context.Background(), message(c))
		assert.True(t, report.Skipped, c)
	}
	assert.Zero(t, ch.calls.Load())

	report := d.Dispatch(context.Background(), message(core.CategoryMeetingBooked))
	assert.False(t, report.Skipped)
	assert.EqualValues(t, 1, ch.calls.Load())
}

func TestDispatchIsolatesFailures(t *testing.T) {
	good := &fakeChannel{name: "good", enabled: true}
	bad := &fakeChannel{name: "bad", enabled: true, err: errors.New("refused")}
	crashing := &fakeChannel{name: "crashing", enabled: true, panics: true}
	slow := &fakeChannel{name: "slow", enabled: true, block: true}

	d := NewDispatcher([]core.NotificationChannel{good, bad, crashing, slow}, 50*time.Millisecond, zap.NewNop())
	report := d.Dispatch(context.Background(), message(core.CategoryInterested))

	require.Len(t, report.Results, 4)
	assert.Equal(t, 3, report.Failed())
	for _, res := range report.Results {
		switch res.Channel {
		case "good":
			assert.Empty(t, res.Err)
		case "crashing":
			assert.Contains(t, res.Err, "panicked")
		case "slow":
			assert.Contains(t, res.Err, "deadline")
		}
	}
	assert.EqualValues(t, 1, good.calls.Load())
}

func TestDisabledChannelsAreDropped(t *testing.T) {
	off := &fakeChannel{name: "off"}
	d := NewDispatcher([]core.NotificationChannel{off, nil}, time.Second, zap.NewNop())

	assert.Empty(t, d.Channels())
	report := d.Dispatch(context.Background(), message(core.CategoryInterested))
	assert.True(t, report.Skipped)
	assert.Zero(t, off.calls.Load())
}
