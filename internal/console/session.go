// Package console keeps the single in-memory generation slot behind the
// browser form. Starting a run or resetting cancels whatever ran before.
package console

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"fluxstudio/internal/domain"
	"fluxstudio/internal/i18n"
	"fluxstudio/internal/infra"
	"fluxstudio/internal/tracker"
)

// State is the lifecycle of the current slot.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDone     State = "done"
	StateFailed   State = "failed"
	StateCanceled State = "canceled"
)

// Snapshot is a point-in-time copy of the slot, safe to render or encode.
type Snapshot struct {
	RunID       string            `json:"run_id,omitempty"`
	State       State             `json:"state"`
	Prompt      string            `json:"prompt,omitempty"`
	ImageURL    string            `json:"image_url,omitempty"`
	Error       string            `json:"error,omitempty"`
	Attempts    int               `json:"attempts"`
	Synchronous bool              `json:"synchronous"`
	StartedAt   time.Time         `json:"started_at,omitzero"`
	FinishedAt  time.Time         `json:"finished_at,omitzero"`
	Logs        []domain.LogEntry `json:"logs"`
}

// Running reports whether the snapshot was taken while a job was in flight.
func (s Snapshot) Running() bool { return s.State == StateRunning }

// StartOptions are the per-run switches chosen on the form.
type StartOptions struct {
	Locale      language.Tag
	Synchronous bool
}

// Session owns at most one tracker run at a time.
type Session struct {
	backend tracker.Backend
	opts    tracker.Options
	logger  *infra.Logger
	now     func() time.Time

	mu      sync.Mutex
	current *run
}

type run struct {
	id       string
	cancel   context.CancelFunc
	done     chan struct{}
	book     *domain.Logbook
	prompt   string
	sync     bool
	started  time.Time
	finished time.Time
	state    State
	imageURL string
	errMsg   string
	attempts int
}

// NewSession prepares an idle slot. opts is the template for every run; its
// Printer and Synchronous fields are replaced per run.
func NewSession(backend tracker.Backend, opts tracker.Options, logger *infra.Logger) *Session {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Session{backend: backend, opts: opts, logger: logger, now: time.Now}
}

// Start validates req, cancels any previous run and tracks req in the
// background. It returns the new run id.
func (s *Session) Start(req domain.GenerationRequest, opts StartOptions) (string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return "", err
	}

	trackerOpts := s.opts
	trackerOpts.Synchronous = opts.Synchronous
	trackerOpts.Printer = i18n.Printer(opts.Locale)
	if trackerOpts.Logger == nil {
		trackerOpts.Logger = s.logger
	}
	t := tracker.New(s.backend, trackerOpts)

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:      uuid.NewString(),
		cancel:  cancel,
		done:    make(chan struct{}),
		book:    domain.NewLogbook(s.now),
		prompt:  req.Prompt,
		sync:    opts.Synchronous,
		started: s.now(),
		state:   StateRunning,
	}

	s.mu.Lock()
	previous := s.current
	s.current = r
	s.mu.Unlock()
	if previous != nil {
		previous.cancel()
	}

	s.logger.Info().Str("run_id", r.id).Bool("sync", opts.Synchronous).Msg("console: run started")
	go s.track(ctx, t, r, req)
	return r.id, nil
}

func (s *Session) track(ctx context.Context, t *tracker.Tracker, r *run, req domain.GenerationRequest) {
	defer close(r.done)
	defer r.cancel()
	res, err := t.Track(ctx, req, r.book)

	s.mu.Lock()
	defer s.mu.Unlock()
	r.finished = s.now()
	r.attempts = res.Attempts
	switch {
	case err == nil:
		r.state = StateDone
		r.imageURL = res.ImageURL
	case errors.Is(err, context.Canceled):
		r.state = StateCanceled
	default:
		r.state = StateFailed
		r.errMsg = failureMessage(err)
	}
}

// Reset cancels the current run, if any, and returns the slot to idle.
func (s *Session) Reset() {
	s.mu.Lock()
	previous := s.current
	s.current = nil
	s.mu.Unlock()
	if previous != nil {
		previous.cancel()
		s.logger.Info().Str("run_id", previous.id).Msg("console: run reset")
	}
}

// Snapshot copies the current slot.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.current
	if r == nil {
		return Snapshot{State: StateIdle, Logs: []domain.LogEntry{}}
	}
	return Snapshot{
		RunID:       r.id,
		State:       r.state,
		Prompt:      r.prompt,
		ImageURL:    r.imageURL,
		Error:       r.errMsg,
		Attempts:    r.attempts,
		Synchronous: r.sync,
		StartedAt:   r.started,
		FinishedAt:  r.finished,
		Logs:        r.book.Entries(),
	}
}

// Wait blocks until the current run finishes or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the current run and waits for it to stop.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	r.cancel()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func failureMessage(err error) string {
	var trackErr *domain.TrackingError
	if errors.As(err, &trackErr) && trackErr.Reason != "" {
		return trackErr.Reason
	}
	return err.Error()
}
