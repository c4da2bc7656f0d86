package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

// Result is the outcome of one channel delivery
type Result struct {
	Channel  string        `json:"channel"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report summarises one dispatch
type Report struct {
	MessageID string   `json:"message_id"`
	Skipped   bool     `json:"skipped"`
	Results   []Result `json:"results,omitempty"`
}

// Failed returns the number of channels that failed
func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != "" {
			n++
		}
	}
	return n
}

// Dispatcher fans high-value messages out to notification channels
type Dispatcher struct {
	channels []core.NotificationChannel
	timeout  time.Duration
	logger   *zap.Logger
}

// NewDispatcher keeps only the enabled channels
func NewDispatcher(channels []core.NotificationChannel, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var enabled []core.NotificationChannel
	for _, ch := range channels {
		if ch == nil || !ch.Enabled() {
			continue
		}
		enabled = append(enabled, ch)
	}
	names := make([]string, 0, len(enabled))
	for _, ch := range enabled {
		names = append(names, ch.Name())
	}
	logger.Info("Notification channels configured", zap.Strings("channels", names))

	return &Dispatcher{
		channels: enabled,
		timeout:  timeout,
		logger:   logger,
	}
}

// Channels returns the names of the enabled channels
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Dispatch delivers msg to every enabled channel concurrently. Only
// interested and meeting_booked messages are sent. Failures are logged and
// reported, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *core.Message) Report {
	report := Report{MessageID: msg.CanonicalID}
	if msg.Classification == nil || !msg.Classification.Category.HighValue() || len(d.channels) == 0 {
		report.Skipped = true
		return report
	}

	var mu sync.Mutex
	var wg conc.WaitGroup
	for _, ch := range d.channels {
		ch := ch
		wg.Go(func() {
			res := d.send(ctx, ch, msg)
			mu.Lock()
			report.Results = append(report.Results, res)
			mu.Unlock()
		})
	}
	wg.Wait()

	if failed := report.Failed(); failed > 0 {
		d.logger.Warn("Notification delivery incomplete",
			zap.String("message_id", msg.CanonicalID),
			zap.Int("failed", failed),
			zap.Int("channels", len(report.Results)))
	}
	return report
}

func (d *Dispatcher) send(ctx context.Context, ch core.NotificationChannel, msg *core.Message) Result {
	start := time.Now()
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var err error
	var pc panics.Catcher
	pc.Try(func() {
		err = ch.Send(sendCtx, msg)
	})
	if r := pc.Recovered(); r != nil {
		err = fmt.Errorf("channel panicked: %v", r.Value)
	}

	res := Result{Channel: ch.Name(), Duration: time.Since(start)}
	if err != nil {
		res.Err = err.Error()
		d.logger.Warn("Failed to deliver notification",
			zap.String("channel", ch.Name()),
			zap.String("message_id", msg.CanonicalID),
			zap.Error(err))
		return res
	}

	d.logger.Debug("Notification delivered",
		zap.String("channel", ch.Name()),
		zap.String("message_id", msg.CanonicalID),
		zap.Duration("duration", res.Duration))
	return res
}
