// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package scrobble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cwadley/scrobblerelay/internal/models"
	"github.com/cwadley/scrobblerelay/internal/transform"
)

type fakeClient struct {
	mu          sync.Mutex
	history     []models.Play
	authErr     error
	submitErr   error
	submits     []models.Play
	submitTimes []time.Time
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) TestAuth(ctx context.Context) error { return f.authErr }

func (f *fakeClient) RecentHistory(ctx context.Context, limit int) ([]models.Play, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Play(nil), f.history...), nil
}

func (f *fakeClient) Submit(ctx context.Context, play models.Play) (models.Play, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return models.Play{}, f.submitErr
	}
	f.submits = append(f.submits, play)
	f.submitTimes = append(f.submitTimes, time.Now())
	return play, nil
}

func (f *fakeClient) submitted() []models.Play {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Play(nil), f.submits...)
}

func (f *fakeClient) setSubmitErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr = err
}

func testPlay(title string, at time.Time) models.Play {
	return models.Play{
		Data: models.PlayData{
			Artists:  []string{"Artist"},
			Album:    "Album",
			Track:    title,
			Duration: 3 * time.Minute,
			PlayDate: at,
		},
		Meta: models.PlayMeta{Source: "test"},
	}
}

func testOptions() Options {
	return Options{
		ScrobbleSleep:          10 * time.Millisecond,
		MaxProcessingRetries:   3,
		RetryBackoff:           10 * time.Millisecond,
		DeadLetterRetryCeiling: 2,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startProcessor(t *testing.T, p *Processor) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	return cancel, done
}

func TestProcessor_QueueOrdering(t *testing.T) {
	client := &fakeClient{}
	p := NewProcessor(client, testOptions(), transform.NewEmptyPipeline(), nil, nil)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.Enqueue("test", testPlay("Third", base.Add(10*time.Minute)))
	p.Enqueue("test", testPlay("First", base))
	p.Enqueue("test", testPlay("Second", base.Add(5*time.Minute)))

	cancel, done := startProcessor(t, p)
	defer cancel()

	waitFor(t, 2*time.Second, func() bool { return len(client.submitted()) == 3 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v, want nil on shutdown", err)
	}

	got := client.submitted()
	want := []string{"First", "Second", "Third"}
	for i, title := range want {
		if got[i].Data.Track != title {
			t.Errorf("submit %d = %q, want %q", i, got[i].Data.Track, title)
		}
	}
}

func TestProcessor_DelaySpacing(t *testing.T) {
	client := &fakeClient{}
	opts := testOptions()
	opts.ScrobbleDelay = 60 * time.Millisecond
	p := NewProcessor(client, opts, transform.NewEmptyPipeline(), nil, nil)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		p.Enqueue("test", testPlay("Track", base.Add(time.Duration(i)*time.Minute)))
	}

	cancel, _ := startProcessor(t, p)
	defer cancel()
	waitFor(t, 2*time.Second, func() bool { return len(client.submitted()) == 3 })

	client.mu.Lock()
	spread := client.submitTimes[2].Sub(client.submitTimes[0])
	client.mu.Unlock()
	if spread < 100*time.Millisecond {
		t.Errorf("three submits spread over %v, want at least ~2x the 60ms delay", spread)
	}
}

func TestProcessor_NonFatalErrorDeadLetters(t *testing.T) {
	client := &fakeClient{submitErr: &UpstreamError{Message: "rate limited"}}
	p := NewProcessor(client, testOptions(), transform.NewEmptyPipeline(), nil, nil)

	p.Enqueue("test", testPlay("Parked", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))

	cancel, _ := startProcessor(t, p)
	defer cancel()
	waitFor(t, 2*time.Second, func() bool { return len(p.DeadLetters()) == 1 })

	snap := p.Snapshot()
	if snap.QueueDepth != 0 {
		t.Errorf("QueueDepth = %d, want 0 after dead-lettering", snap.QueueDepth)
	}
	if snap.Status != StatusScrobbling {
		t.Errorf("Status = %q, want %q; non-fatal errors must not stop the loop", snap.Status, StatusScrobbling)
	}

	// Upstream recovers; the sweep delivers the parked play and clears it.
	client.setSubmitErr(nil)
	if err := p.ProcessDeadLetters(context.Background()); err != nil {
		t.Fatalf("ProcessDeadLetters: %v", err)
	}
	if n := len(p.DeadLetters()); n != 0 {
		t.Errorf("dead letters after recovery sweep = %d, want 0", n)
	}
	waitFor(t, time.Second, func() bool { return len(client.submitted()) == 1 })
}

func TestProcessor_DeadLetterBoundedRetry(t *testing.T) {
	client := &fakeClient{submitErr: &UpstreamError{Message: "still down"}}
	opts := testOptions()
	opts.DeadLetterRetryCeiling = 2
	p := NewProcessor(client, opts, transform.NewEmptyPipeline(), nil, nil)

	p.addDeadLetter(models.NewQueuedScrobble("test", testPlay("Stuck", time.Now())), errors.New("boom"))

	for i := 0; i < 4; i++ {
		if err := p.ProcessDeadLetters(context.Background()); err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
	}

	dead := p.DeadLetters()
	if len(dead) != 1 {
		t.Fatalf("dead letters = %d, want 1; entries at the ceiling must stay parked", len(dead))
	}
	if dead[0].Retries != 2 {
		t.Errorf("Retries = %d, want exactly the ceiling of 2", dead[0].Retries)
	}
	if dead[0].LastError != "still down" {
		t.Errorf("LastError = %q, want %q", dead[0].LastError, "still down")
	}
}

func TestProcessor_FatalErrorRequeuesAndStops(t *testing.T) {
	client := &fakeClient{submitErr: &ConnectivityError{Op: "submit", Cause: errors.New("refused")}}
	opts := testOptions()
	opts.MaxProcessingRetries = 2
	p := NewProcessor(client, opts, transform.NewEmptyPipeline(), nil, nil)

	p.Enqueue("test", testPlay("Kept", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))

	cancel, done := startProcessor(t, p)
	defer cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStopped) {
			t.Fatalf("Run returned %v, want ErrStopped after retry exhaustion", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after exhausting retries")
	}

	snap := p.Snapshot()
	if snap.Status != StatusErrored {
		t.Errorf("Status = %q, want %q", snap.Status, StatusErrored)
	}
	if snap.QueueDepth != 1 {
		t.Errorf("QueueDepth = %d, want 1; a fatal error must requeue the item", snap.QueueDepth)
	}
}

func TestProcessor_DuplicateInHistorySkipped(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client := &fakeClient{history: []models.Play{testPlay("Seen", at)}}
	opts := testOptions()
	opts.CheckExistingScrobbles = true
	p := NewProcessor(client, opts, transform.NewEmptyPipeline(), nil, nil)

	p.Enqueue("test", testPlay("Seen", at.Add(2*time.Second)))

	cancel, _ := startProcessor(t, p)
	defer cancel()
	waitFor(t, 2*time.Second, func() bool { return p.Snapshot().QueueDepth == 0 })
	time.Sleep(50 * time.Millisecond)

	if n := len(client.submitted()); n != 0 {
		t.Errorf("submits = %d, want 0 for a play already in client history", n)
	}
}

func TestProcessor_TimeFrameSkip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client := &fakeClient{history: []models.Play{testPlay("Newest", at)}}
	opts := testOptions()
	opts.CheckExistingScrobbles = true
	p := NewProcessor(client, opts, transform.NewEmptyPipeline(), nil, nil)

	p.Enqueue("test", testPlay("Ancient", at.Add(-48*time.Hour)))

	cancel, _ := startProcessor(t, p)
	defer cancel()
	waitFor(t, 2*time.Second, func() bool { return p.Snapshot().QueueDepth == 0 })
	time.Sleep(50 * time.Millisecond)

	if n := len(client.submitted()); n != 0 {
		t.Errorf("submits = %d, want 0 for a play older than the history window", n)
	}
	if n := len(p.DeadLetters()); n != 0 {
		t.Errorf("dead letters = %d, want 0; a time-frame skip is not an error", n)
	}
}

func TestProcessor_StopHandshake(t *testing.T) {
	client := &fakeClient{}
	p := NewProcessor(client, testOptions(), transform.NewEmptyPipeline(), nil, nil)

	cancel, done := startProcessor(t, p)
	defer cancel()
	waitFor(t, time.Second, func() bool { return p.Snapshot().Status == StatusScrobbling })

	if err := p.RequestStop(context.Background()); err != nil {
		t.Fatalf("RequestStop: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, ErrStopRequested) {
			t.Errorf("Run returned %v, want ErrStopRequested", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after acknowledged stop")
	}
	if got := p.Snapshot().Status; got != StatusIdle {
		t.Errorf("Status = %q, want %q after stop", got, StatusIdle)
	}
}
