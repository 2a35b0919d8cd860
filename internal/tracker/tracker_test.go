package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"

	"fluxstudio/internal/domain"
	"fluxstudio/internal/i18n"
)

const testInterval = 3 * time.Second

type pollStep struct {
	body string
	err  error
}

// scriptedBackend replays a fixed submit answer and poll sequence and records
// the order of calls. Polls beyond the script answer "Pending".
type scriptedBackend struct {
	mu         sync.Mutex
	submitBody string
	submitErr  error
	steps      []pollStep
	calls      []string
	polls      int
	onPoll     func(n int)
	onSubmit   func()
}

func (b *scriptedBackend) Submit(ctx context.Context, req domain.GenerationRequest) ([]byte, error) {
	b.mu.Lock()
	b.calls = append(b.calls, "submit")
	hook := b.onSubmit
	b.mu.Unlock()
	if hook != nil {
		hook()
	}
	if b.submitErr != nil {
		return nil, b.submitErr
	}
	return []byte(b.submitBody), nil
}

func (b *scriptedBackend) Poll(ctx context.Context, h domain.JobHandle) ([]byte, error) {
	b.mu.Lock()
	b.calls = append(b.calls, "poll")
	b.polls++
	n := b.polls
	hook := b.onPoll
	var step pollStep
	if n <= len(b.steps) {
		step = b.steps[n-1]
	} else {
		step = pollStep{body: `{"status":"Pending"}`}
	}
	b.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	if step.err != nil {
		return nil, step.err
	}
	return []byte(step.body), nil
}

// fakeClock fires immediately and records every requested delay.
type fakeClock struct {
	mu      sync.Mutex
	waits   []time.Duration
	onAfter func(n int)
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	n := len(c.waits)
	hook := c.onAfter
	c.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	ch := make(chan time.Time, 1)
	ch <- time.Unix(0, 0).Add(time.Duration(n) * d)
	return ch
}

const jobSubmit = `{"id":"job-1","polling_url":"https://api.bfl.ai/v1/get_result?id=job-1"}`

func newTestTracker(b Backend, clock Clock, synchronous bool) *Tracker {
	return New(b, Options{Interval: testInterval, MaxAttempts: 30, Synchronous: synchronous, Clock: clock})
}

func validRequest() domain.GenerationRequest {
	req := domain.GenerationRequest{Prompt: "a lighthouse at dusk"}
	req.Normalize()
	return req
}

func TestTrackSubmitsOnceBeforePolling(t *testing.T) {
	backend := &scriptedBackend{submitBody: jobSubmit, steps: []pollStep{{body: `{"status":"Ready","result":{"sample":"https://cdn/out.jpg"}}`}}}
	tr := newTestTracker(backend, &fakeClock{}, false)

	if _, err := tr.Track(context.Background(), validRequest(), nil); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if len(backend.calls) < 2 || backend.calls[0] != "submit" {
		t.Fatalf("calls = %v, want submit first", backend.calls)
	}
	for _, call := range backend.calls[1:] {
		if call == "submit" {
			t.Fatalf("submit issued more than once: %v", backend.calls)
		}
	}
}

func TestTrackSynchronousResultSkipsPolling(t *testing.T) {
	backend := &scriptedBackend{submitBody: `{"id":"job-1","output":"https://cdn/direct.jpg"}`}
	tr := newTestTracker(backend, &fakeClock{}, true)

	res, err := tr.Track(context.Background(), validRequest(), nil)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if !res.Synchronous || res.ImageURL != "https://cdn/direct.jpg" {
		t.Fatalf("unexpected result: %#v", res)
	}
	if backend.polls != 0 {
		t.Fatalf("polls = %d, want 0", backend.polls)
	}
}

func TestTrackDirectResultWithoutSyncModeStillPollsHandle(t *testing.T) {
	backend := &scriptedBackend{
		submitBody: `{"id":"job-1","output":"https://cdn/direct.jpg"}`,
		steps:      []pollStep{{body: `{"status":"Ready","result":{"sample":"https://cdn/polled.jpg"}}`}},
	}
	tr := newTestTracker(backend, &fakeClock{}, false)

	res, err := tr.Track(context.Background(), validRequest(), nil)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if res.ImageURL != "https://cdn/polled.jpg" || backend.polls != 1 {
		t.Fatalf("result = %#v after %d polls", res, backend.polls)
	}
}

func TestTrackReadyOnThirdPoll(t *testing.T) {
	backend := &scriptedBackend{
		submitBody: jobSubmit,
		steps: []pollStep{
			{body: `{"status":"Pending"}`},
			{body: `{"status":"processing"}`},
			{body: `{"status":"Ready","result":{"sample":"https://cdn/out.jpg"}}`},
		},
	}
	clock := &fakeClock{}
	tr := newTestTracker(backend, clock, false)

	res, err := tr.Track(context.Background(), validRequest(), nil)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if res.ImageURL != "https://cdn/out.jpg" {
		t.Fatalf("ImageURL = %q", res.ImageURL)
	}
	if res.Attempts != 3 || backend.polls != 3 {
		t.Fatalf("attempts = %d, polls = %d, want 3", res.Attempts, backend.polls)
	}
	if res.Handle.PollingURL() != "https://api.bfl.ai/v1/get_result?id=job-1" {
		t.Fatalf("handle = %v, want polling url", res.Handle)
	}
	if len(clock.waits) != 2 {
		t.Fatalf("waits = %v, want 2 between 3 polls", clock.waits)
	}
	for _, d := range clock.waits {
		if d < testInterval {
			t.Fatalf("wait %v shorter than interval %v", d, testInterval)
		}
	}
}

func TestTrackTimesOutAfterMaxAttempts(t *testing.T) {
	backend := &scriptedBackend{submitBody: jobSubmit}
	clock := &fakeClock{}
	tr := newTestTracker(backend, clock, false)

	res, err := tr.Track(context.Background(), validRequest(), nil)
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if backend.polls != 30 {
		t.Fatalf("polls = %d, want exactly 30", backend.polls)
	}
	if res.Attempts != 30 {
		t.Fatalf("attempts = %d, want 30", res.Attempts)
	}
	if len(clock.waits) != 29 {
		t.Fatalf("waits = %d, want 29", len(clock.waits))
	}
}

func TestTrackRemoteFailureStopsImmediately(t *testing.T) {
	backend := &scriptedBackend{
		submitBody: jobSubmit,
		steps:      []pollStep{{body: `{"status":"failed","error":"nsfw"}`}},
	}
	tr := newTestTracker(backend, &fakeClock{}, false)

	_, err := tr.Track(context.Background(), validRequest(), nil)
	if !errors.Is(err, domain.ErrRemote) {
		t.Fatalf("err = %v, want ErrRemote", err)
	}
	var trackErr *domain.TrackingError
	if !errors.As(err, &trackErr) || trackErr.Reason != "nsfw" {
		t.Fatalf("reason = %#v, want nsfw", trackErr)
	}
	if backend.polls != 1 {
		t.Fatalf("polls = %d, want 1", backend.polls)
	}
}

func TestTrackTransportFailureIsRetried(t *testing.T) {
	steps := make([]pollStep, 6)
	for i := range steps {
		steps[i] = pollStep{body: `{"status":"Pending"}`}
	}
	steps[4] = pollStep{err: &domain.TransportError{Op: "poll", Err: errors.New("connection reset")}}
	steps[5] = pollStep{body: `{"status":"Ready","result":{"sample":"https://cdn/out.jpg"}}`}
	backend := &scriptedBackend{submitBody: jobSubmit, steps: steps}
	clock := &fakeClock{}
	tr := newTestTracker(backend, clock, false)

	res, err := tr.Track(context.Background(), validRequest(), nil)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if backend.polls != 6 || res.Attempts != 6 {
		t.Fatalf("polls = %d attempts = %d, want 6", backend.polls, res.Attempts)
	}
	if len(clock.waits) != 5 {
		t.Fatalf("waits = %v, want one before each of attempts 2..6", clock.waits)
	}
	if clock.waits[4] < testInterval {
		t.Fatalf("wait after the failed attempt = %v, want at least %v", clock.waits[4], testInterval)
	}
	if res.JobID != "job-1" {
		t.Fatalf("JobID = %q, want job-1", res.JobID)
	}
}

func TestTrackHTTPErrorOnPollIsRetried(t *testing.T) {
	backend := &scriptedBackend{
		submitBody: jobSubmit,
		steps: []pollStep{
			{err: &domain.HTTPError{Status: 404, Message: "Task not found"}},
			{body: `{"status":"Ready","result":{"sample":"https://cdn/out.jpg"}}`},
		},
	}
	book := domain.NewLogbook(nil)
	tr := newTestTracker(backend, &fakeClock{}, false)

	if _, err := tr.Track(context.Background(), validRequest(), book); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if !logContains(book, i18n.MsgPollNotFound) {
		t.Fatalf("expected not-found hint in log: %v", book.Entries())
	}
}

func TestTrackCancelBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	backend := &scriptedBackend{submitBody: jobSubmit}
	clock := &fakeClock{onAfter: func(n int) {
		if n == 4 {
			cancel()
		}
	}}
	book := domain.NewLogbook(nil)
	tr := newTestTracker(backend, clock, false)

	_, err := tr.Track(ctx, validRequest(), book)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if backend.polls != 4 {
		t.Fatalf("polls = %d, want 4 (no attempt after cancel)", backend.polls)
	}
}

func TestTrackDiscardsResultObservedAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	backend := &scriptedBackend{
		submitBody: jobSubmit,
		steps:      []pollStep{{body: `{"status":"Ready","result":{"sample":"https://cdn/out.jpg"}}`}},
		onPoll:     func(int) { cancel() },
	}
	book := domain.NewLogbook(nil)
	tr := newTestTracker(backend, &fakeClock{}, false)

	res, err := tr.Track(ctx, validRequest(), book)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.ImageURL != "" {
		t.Fatalf("result should be discarded, got %q", res.ImageURL)
	}
	if logContains(book, i18n.MsgDone) {
		t.Fatalf("no entries expected after cancellation: %v", book.Entries())
	}
}

func TestTrackSubmitFailureIsTerminal(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		transport  bool
	}{
		{name: "http error", err: &domain.HTTPError{Status: 422, Message: "invalid prompt"}, wantStatus: 422},
		{name: "transport", err: &domain.TransportError{Op: "submit", Err: errors.New("no route to host")}, transport: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend := &scriptedBackend{submitErr: tc.err}
			tr := newTestTracker(backend, &fakeClock{}, false)

			_, err := tr.Track(context.Background(), validRequest(), nil)
			if !errors.Is(err, domain.ErrSubmit) {
				t.Fatalf("err = %v, want ErrSubmit", err)
			}
			if got := errors.Is(err, domain.ErrTransport); got != tc.transport {
				t.Fatalf("ErrTransport match = %v, want %v", got, tc.transport)
			}
			var trackErr *domain.TrackingError
			if errors.As(err, &trackErr) && trackErr.Status != tc.wantStatus {
				t.Fatalf("status = %d, want %d", trackErr.Status, tc.wantStatus)
			}
			if backend.polls != 0 {
				t.Fatalf("polls = %d, want 0", backend.polls)
			}
		})
	}
}

func TestTrackMalformedResponses(t *testing.T) {
	t.Run("submit without reference", func(t *testing.T) {
		backend := &scriptedBackend{submitBody: `{"ok":true}`}
		_, err := newTestTracker(backend, &fakeClock{}, false).Track(context.Background(), validRequest(), nil)
		if !errors.Is(err, domain.ErrMalformedResponse) {
			t.Fatalf("err = %v, want ErrMalformedResponse", err)
		}
	})
	t.Run("poll body not json", func(t *testing.T) {
		backend := &scriptedBackend{submitBody: jobSubmit, steps: []pollStep{{body: "<html>oops</html>"}}}
		_, err := newTestTracker(backend, &fakeClock{}, false).Track(context.Background(), validRequest(), nil)
		if !errors.Is(err, domain.ErrMalformedResponse) {
			t.Fatalf("err = %v, want ErrMalformedResponse", err)
		}
		if backend.polls != 1 {
			t.Fatalf("polls = %d, want 1", backend.polls)
		}
	})
}

func TestTrackUnknownStatusKeepsPolling(t *testing.T) {
	backend := &scriptedBackend{
		submitBody: jobSubmit,
		steps: []pollStep{
			{body: `{"status":"Warming Up"}`},
			{body: `{"id":"job-1"}`},
			{body: `{"status":"Ready","result":{"sample":"https://cdn/out.jpg"}}`},
		},
	}
	res, err := newTestTracker(backend, &fakeClock{}, false).Track(context.Background(), validRequest(), nil)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if res.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", res.Attempts)
	}
}

func TestTrackRejectsConcurrentJobs(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	backend := &scriptedBackend{
		submitBody: `{"output":"https://cdn/direct.jpg"}`,
		onSubmit: func() {
			close(entered)
			<-release
		},
	}
	tr := newTestTracker(backend, &fakeClock{}, true)

	done := make(chan error, 1)
	go func() {
		_, err := tr.Track(context.Background(), validRequest(), nil)
		done <- err
	}()
	<-entered
	if _, err := tr.Track(context.Background(), validRequest(), nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Track = %v, want ErrBusy", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Track: %v", err)
	}
}

func TestTrackLogsInChronologicalOrderAndLocale(t *testing.T) {
	backend := &scriptedBackend{
		submitBody: jobSubmit,
		steps: []pollStep{
			{body: `{"status":"Pending"}`},
			{body: `{"status":"Ready","result":{"sample":"https://cdn/out.jpg"}}`},
		},
	}
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	book := domain.NewLogbook(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	})
	tr := New(backend, Options{Interval: testInterval, Clock: &fakeClock{}, Printer: i18n.Printer(language.BrazilianPortuguese)})

	if _, err := tr.Track(context.Background(), validRequest(), book); err != nil {
		t.Fatalf("Track: %v", err)
	}
	entries := book.Entries()
	for i := 1; i < len(entries); i++ {
		if entries[i].Time.Before(entries[i-1].Time) {
			t.Fatalf("entries out of order at %d", i)
		}
	}
	want := []string{
		"Iniciando requisição para a API FLUX",
		fmt.Sprintf("Tentativa de polling %d/%d", 1, DefaultMaxAttempts),
		"Processamento concluído com sucesso!",
	}
	for _, msg := range want {
		if !logContains(book, msg) {
			t.Fatalf("missing log entry %q in %v", msg, entries)
		}
	}
}

func logContains(book *domain.Logbook, needle string) bool {
	for _, e := range book.Entries() {
		if strings.Contains(e.Message, needle) {
			return true
		}
	}
	return false
}

func TestAbbreviateKeepsValidUTF8(t *testing.T) {
	// 299 ASCII bytes put the 300-byte limit inside the two-byte "é".
	raw := []byte(strings.Repeat("a", 299) + "é" + strings.Repeat("b", 10))
	got := abbreviate(raw)
	if !utf8.ValidString(got) {
		t.Fatalf("abbreviate produced invalid UTF-8: %q", got[len(got)-8:])
	}
	if got != strings.Repeat("a", 299)+"..." {
		t.Fatalf("abbreviate = %q", got[len(got)-8:])
	}
	if short := abbreviate([]byte("ação")); short != "ação" {
		t.Fatalf("short body changed: %q", short)
	}
}
