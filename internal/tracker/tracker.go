// Package tracker follows a single FLUX generation job from submission to a
// terminal status.
//
// The loop is a small state machine: submit, then alternate between polling
// and waiting on the Clock until the job is ready, fails, runs out of
// attempts or the context is cancelled.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"fluxstudio/internal/domain"
	"fluxstudio/internal/i18n"
	"fluxstudio/internal/infra"
	"fluxstudio/internal/metrics"
)

const (
	DefaultInterval    = 3 * time.Second
	DefaultMaxAttempts = 30
)

// ErrBusy is returned when Track is called while another job is in flight on
// the same Tracker.
var ErrBusy = errors.New("tracker: a job is already being tracked")

// Backend reaches the submit and poll endpoints. Implementations return the
// response body and a *domain.HTTPError or *domain.TransportError on failure.
type Backend interface {
	Submit(ctx context.Context, req domain.GenerationRequest) ([]byte, error)
	Poll(ctx context.Context, h domain.JobHandle) ([]byte, error)
}

// Options tune a Tracker. Zero values select the defaults.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	// Synchronous accepts a result embedded in the submit response instead
	// of polling for it.
	Synchronous bool
	Clock       Clock
	Printer     *message.Printer
	Logger      *infra.Logger
}

// Result describes a successfully tracked job.
type Result struct {
	ImageURL    string
	// JobID is the upstream job id from the submit response, when one was
	// returned, even if polling used the polling URL.
	JobID       string
	Handle      domain.JobHandle
	Attempts    int
	Synchronous bool
}

// Tracker runs at most one job at a time.
type Tracker struct {
	backend     Backend
	interval    time.Duration
	maxAttempts int
	synchronous bool
	clock       Clock
	printer     *message.Printer
	logger      *infra.Logger
	busy        atomic.Bool
}

// New builds a Tracker on top of backend.
func New(backend Backend, opts Options) *Tracker {
	t := &Tracker{
		backend:     backend,
		interval:    opts.Interval,
		maxAttempts: opts.MaxAttempts,
		synchronous: opts.Synchronous,
		clock:       opts.Clock,
		printer:     opts.Printer,
		logger:      opts.Logger,
	}
	if t.interval <= 0 {
		t.interval = DefaultInterval
	}
	if t.maxAttempts <= 0 {
		t.maxAttempts = DefaultMaxAttempts
	}
	if t.clock == nil {
		t.clock = SystemClock{}
	}
	if t.printer == nil {
		t.printer = i18n.Printer(language.English)
	}
	if t.logger == nil {
		t.logger = infra.NopLogger()
	}
	return t
}

// Track submits req and polls until a terminal status. Progress is appended
// to book, which may be nil. Terminal failures are *domain.TrackingError;
// cancellation returns an error matching the context's error.
func (t *Tracker) Track(ctx context.Context, req domain.GenerationRequest, book *domain.Logbook) (Result, error) {
	if !t.busy.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer t.busy.Store(false)
	metrics.TrackerActive.Inc()
	defer metrics.TrackerActive.Dec()

	if book == nil {
		book = domain.NewLogbook(nil)
	}
	r := &run{t: t, req: req, book: book}
	for state := r.submit; state != nil; {
		state = state(ctx)
	}
	t.record(r)
	return r.result, r.err
}

// stateFn is one step of the loop; it returns the next step or nil when the
// run is finished.
type stateFn func(ctx context.Context) stateFn

type run struct {
	t        *Tracker
	req      domain.GenerationRequest
	book     *domain.Logbook
	handle   domain.JobHandle
	jobID    string
	attempts int
	result   Result
	err      error
	outcome  string
}

func (r *run) submit(ctx context.Context) stateFn {
	r.logf(i18n.MsgStart)
	r.logf(i18n.MsgPrompt, r.req.Prompt)
	r.logf(i18n.MsgPayload, r.req.Summary())
	r.logf(i18n.MsgSubmitting)

	raw, err := r.t.backend.Submit(ctx, r.req)
	if ctx.Err() != nil {
		return r.cancelled(ctx)
	}
	if err != nil {
		reason := err.Error()
		var httpErr *domain.HTTPError
		if errors.As(err, &httpErr) && httpErr.Message != "" {
			reason = httpErr.Message
		}
		r.logf(i18n.MsgSubmitFailed, err)
		return r.fail("submit_error", &domain.TrackingError{Kind: domain.ErrSubmit, Status: domain.StatusOf(err), Reason: reason, Err: err})
	}

	sub, err := domain.ParseSubmission(raw)
	if err != nil {
		r.logf(i18n.MsgMalformed, err)
		return r.fail("malformed", &domain.TrackingError{Kind: domain.ErrMalformedResponse, Reason: "submit response", Err: err})
	}
	r.jobID = sub.ID
	r.logf(i18n.MsgSubmitted, abbreviate(raw))

	if r.t.synchronous && sub.DirectResult != "" {
		r.logf(i18n.MsgSyncResult)
		r.result = Result{ImageURL: sub.DirectResult, JobID: r.jobID, Synchronous: true}
		r.outcome = "done"
		return nil
	}
	r.handle = sub.Handle()
	if r.handle.IsZero() {
		err := fmt.Errorf("%w: direct result received but synchronous mode is disabled", domain.ErrMalformedResponse)
		r.logf(i18n.MsgMalformed, err)
		return r.fail("malformed", &domain.TrackingError{Kind: domain.ErrMalformedResponse, Reason: "submit response", Err: err})
	}
	r.logf(i18n.MsgPollingStart, r.handle, r.t.interval, r.t.maxAttempts)
	return r.poll
}

func (r *run) poll(ctx context.Context) stateFn {
	if ctx.Err() != nil {
		return r.cancelled(ctx)
	}
	r.attempts++
	r.logf(i18n.MsgPollAttempt, r.attempts, r.t.maxAttempts)

	raw, err := r.t.backend.Poll(ctx, r.handle)
	if ctx.Err() != nil {
		return r.cancelled(ctx)
	}
	if err != nil {
		r.logf(i18n.MsgPollError, err)
		if domain.StatusOf(err) == http.StatusNotFound {
			r.logf(i18n.MsgPollNotFound)
		}
		return r.wait
	}
	r.logf(i18n.MsgPollResponse, abbreviate(raw))

	status, err := domain.ParseStatus(raw)
	if err != nil {
		r.logf(i18n.MsgMalformed, err)
		return r.fail("malformed", &domain.TrackingError{Kind: domain.ErrMalformedResponse, Reason: "poll response", Err: err})
	}
	switch status.Kind {
	case domain.StatusReady:
		r.logf(i18n.MsgDone)
		r.result = Result{ImageURL: status.ResultURL, JobID: r.jobID, Handle: r.handle, Attempts: r.attempts}
		r.outcome = "done"
		return nil
	case domain.StatusFailed:
		reason := status.Reason
		if reason == "" {
			reason = r.t.printer.Sprintf(i18n.MsgUnknownFailure)
		}
		r.logf(i18n.MsgRemoteFailed, reason)
		return r.fail("remote_error", &domain.TrackingError{Kind: domain.ErrRemote, Reason: reason})
	case domain.StatusPending, domain.StatusProcessing:
		r.logf(i18n.MsgStatus, status.Raw, r.t.interval)
	default:
		r.logf(i18n.MsgUnexpected, status.Raw, r.t.interval)
	}
	return r.wait
}

func (r *run) wait(ctx context.Context) stateFn {
	if r.attempts >= r.t.maxAttempts {
		r.logf(i18n.MsgTimeout)
		return r.fail("timeout", &domain.TrackingError{
			Kind:   domain.ErrTimeout,
			Reason: fmt.Sprintf("no terminal status after %d attempts", r.attempts),
		})
	}
	select {
	case <-ctx.Done():
		return r.cancelled(ctx)
	case <-r.t.clock.After(r.t.interval):
		return r.poll
	}
}

func (r *run) fail(outcome string, err *domain.TrackingError) stateFn {
	r.outcome = outcome
	r.err = err
	r.result = Result{JobID: r.jobID, Handle: r.handle, Attempts: r.attempts}
	return nil
}

// cancelled ends the run without touching the logbook.
func (r *run) cancelled(ctx context.Context) stateFn {
	r.outcome = "canceled"
	r.err = fmt.Errorf("tracker: stopped after %d attempts: %w", r.attempts, ctx.Err())
	r.result = Result{JobID: r.jobID, Handle: r.handle, Attempts: r.attempts}
	return nil
}

func (r *run) logf(key string, args ...any) {
	msg := r.t.printer.Sprintf(key, args...)
	r.book.Append(msg)
	r.t.logger.Debug().Str("handle", r.handle.String()).Msg(msg)
}

func (t *Tracker) record(r *run) {
	metrics.TrackerOutcomesTotal.WithLabelValues(r.outcome).Inc()
	if r.attempts > 0 {
		metrics.TrackerPollAttempts.Observe(float64(r.attempts))
	}
	event := t.logger.Info()
	if r.err != nil && r.outcome != "canceled" {
		event = t.logger.Warn().Err(r.err)
	}
	event.
		Str("outcome", r.outcome).
		Str("handle", r.handle.String()).
		Int("attempts", r.attempts).
		Str("image_url", r.result.ImageURL).
		Msg("tracker: job finished")
}

// abbreviate shortens a response body for the logbook without splitting a
// UTF-8 sequence.
func abbreviate(raw []byte) string {
	const limit = 300
	if len(raw) <= limit {
		return string(raw)
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(raw[cut]) {
		cut--
	}
	return string(raw[:cut]) + "..."
}
