package classifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/llm-mail-pipeline/internal/config"
	"github.com/mikey/llm-mail-pipeline/internal/core"
	"github.com/mikey/llm-mail-pipeline/internal/whitelist"
)

type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	pingErr   error
	delay     time.Duration
	release   chan struct{}
	calls     atomic.Int32
	prompts   []string
}

func (f *fakeLLM) Complete(ctx context.Context, req *core.CompletionRequest) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()

	if f.release != nil {
		<-f.release
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses) == 0 {
		return "", nil
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeLLM) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeLLM) ModelName() string {
	return "fake-model"
}

func testClassifierConfig() config.ClassifierConfig {
	return config.ClassifierConfig{
		ModelEnabled:       true,
		MaxConcurrent:      3,
		Timeout:            200 * time.Millisecond,
		ProbeTimeout:       100 * time.Millisecond,
		FallbackConfidence: 0.3,
		MaxBodySize:        4096,
	}
}

func testReplyConfig() config.ReplyConfig {
	return config.ReplyConfig{
		MaxAttempts: 3,
		MinLength:   40,
		MaxLength:   1500,
		Timeout:     time.Second,
	}
}

func newTestEngine(t *testing.T, llm core.LLMClient, domains ...string) *Engine {
	t.Helper()
	e := NewEngine(llm, whitelist.NewChecker(domains, nil), nil, testClassifierConfig(), testReplyConfig(), nil)
	e.Start(context.Background())
	t.Cleanup(e.Stop)
	return e
}

func message(subject, body string) *core.Message {
	return &core.Message{
		CanonicalID: "id@test",
		From:        core.Address{Name: "Dana Reyes", Email: "dana@example.com"},
		Subject:     subject,
		TextBody:    body,
	}
}

func TestClassifyUsesModel(t *testing.T) {
	llm := &fakeLLM{responses: []string{"meeting_booked:0.88"}}
	e := newTestEngine(t, llm)

	res := e.Classify(context.Background(), message("Re: call", "Tuesday works, see you then"))

	assert.Equal(t, core.CategoryMeetingBooked, res.Category)
	assert.InDelta(t, 0.88, res.Confidence, 1e-9)
	assert.Equal(t, core.SourceModel, res.Source)
	assert.Equal(t, "fake-model", res.Model)
	require.NotNil(t, res.Insights)
	assert.Equal(t, "meeting", res.Insights.Intent)
	assert.False(t, res.ClassifiedAt.IsZero())
}

func TestClassifyWithoutModelUsesRules(t *testing.T) {
	e := newTestEngine(t, nil)

	res := e.Classify(context.Background(), message("Re: proposal", "Budget approved, ready to purchase this week"))

	assert.Equal(t, core.CategoryInterested, res.Category)
	assert.GreaterOrEqual(t, res.Confidence, 0.7)
	assert.Equal(t, core.SourceRules, res.Source)
	assert.Equal(t, "purchase", res.Insights.Intent)
	assert.Equal(t, "high", res.Insights.Urgency)
}

func TestClassifyUnavailableModelIsNeverCalled(t *testing.T) {
	llm := &fakeLLM{pingErr: errors.New("connection refused"), responses: []string{"spam:1"}}
	e := newTestEngine(t, llm)

	assert.False(t, e.ModelAvailable())
	res := e.Classify(context.Background(), message("", "I'm out of office this week"))

	assert.Equal(t, core.CategoryOutOfOffice, res.Category)
	assert.GreaterOrEqual(t, res.Confidence, 0.9)
	assert.Zero(t, llm.calls.Load())
}

func TestClassifyTimeoutFallsBackToRules(t *testing.T) {
	llm := &fakeLLM{delay: 5 * time.Second, responses: []string{"spam:0.99"}}
	e := newTestEngine(t, llm)

	start := time.Now()
	res := e.Classify(context.Background(), message("Re: proposal", "Budget approved, ready to purchase this week"))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, core.CategoryInterested, res.Category)
	assert.Equal(t, core.SourceRules, res.Source)
}

func TestClassifySaturatedDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	llm := &fakeLLM{release: release, responses: []string{"interested:0.9"}}
	cfg := testClassifierConfig()
	cfg.MaxConcurrent = 1
	cfg.Timeout = 10 * time.Second
	e := NewEngine(llm, nil, nil, cfg, testReplyConfig(), nil)
	e.Start(context.Background())
	defer e.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Classify(context.Background(), message("", "tell me more"))
	}()
	require.Eventually(t, func() bool { return llm.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	start := time.Now()
	res := e.Classify(context.Background(), message("", "I'm out of office"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, core.SourceRules, res.Source)
	assert.Equal(t, int32(1), llm.calls.Load())

	close(release)
	<-done
}

func TestClassifyRejectsInconsistentModelLabels(t *testing.T) {
	cases := []struct {
		name     string
		response string
		body     string
		want     core.Category
	}{
		{"ooo with purchase intent", "out_of_office:0.95", "Budget approved, ready to purchase", core.CategoryInterested},
		{"spam with scheduling", "spam:0.9", "Meeting confirmed for Thursday at 3pm", core.CategoryMeetingBooked},
		{"not interested with purchase intent", "not_interested:0.8", "Please send the contract, ready to sign", core.CategoryInterested},
		{"garbage", "I think this is probably fine", "tell me more about pricing", core.CategoryInterested},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(t, &fakeLLM{responses: []string{tc.response}})
			res := e.Classify(context.Background(), message("", tc.body))
			assert.Equal(t, tc.want, res.Category)
			assert.Equal(t, core.SourceRules, res.Source)
		})
	}
}

func TestClassifyWhitelistedSenderNeverSpam(t *testing.T) {
	e := newTestEngine(t, &fakeLLM{responses: []string{"spam:0.99"}}, "example.com")

	res := e.Classify(context.Background(), message("You have won", "click here, winner! tell me more about pricing"))

	assert.NotEqual(t, core.CategorySpam, res.Category)
	assert.Equal(t, core.CategoryInterested, res.Category)
}

func TestRepeatedModelFailuresMarkUnavailable(t *testing.T) {
	llm := &fakeLLM{err: errors.New("500 internal error")}
	e := newTestEngine(t, llm)
	require.True(t, e.ModelAvailable())

	for i := 0; i < modelFailureLimit; i++ {
		e.Classify(context.Background(), message("", "hello"))
	}

	assert.False(t, e.ModelAvailable())
	e.Classify(context.Background(), message("", "hello"))
	assert.Equal(t, int32(modelFailureLimit), llm.calls.Load())
}

func TestReprobeRestoresModel(t *testing.T) {
	llm := &fakeLLM{pingErr: errors.New("down")}
	cfg := testClassifierConfig()
	cfg.ReprobeInterval = 10 * time.Millisecond
	e := NewEngine(llm, nil, nil, cfg, testReplyConfig(), nil)
	e.Start(context.Background())
	defer e.Stop()
	require.False(t, e.ModelAvailable())

	llm.mu.Lock()
	llm.pingErr = nil
	llm.mu.Unlock()

	assert.Eventually(t, e.ModelAvailable, time.Second, 5*time.Millisecond)
}
