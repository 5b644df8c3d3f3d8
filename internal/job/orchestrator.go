// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Upload is a PDF submitted with a request.
type Upload struct {
	Filename string `validate:"required,pdfname"`
	Content  []byte `validate:"required"`
}

// Request is a research submission.
type Request struct {
	Question string   `validate:"required"`
	Files    []Upload `validate:"dive"`
}

// Reporter is how a Runner records progress.
type Reporter interface {
	// Stage moves the job to stage. It fails once the job is terminal,
	// for example after cancellation.
	Stage(stage Stage) error

	// Log publishes an informational message.
	Log(msg string)
}

// Output is what a successful run produces.
type Output struct {
	Result Result

	// Artifacts maps artifact names to keys in the ArtifactStore.
	Artifacts map[string]string
}

// Runner executes the pipeline for one job.
type Runner interface {
	Run(ctx context.Context, j Job, files []Upload, rep Reporter) (Output, error)
}

// ArtifactStore reads and removes stored artifacts.
type ArtifactStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Options tunes an Orchestrator.
type Options struct {
	MaxConcurrent int
	Logger        *slog.Logger

	// PollInterval is used to stream jobs run by another process.
	PollInterval time.Duration
}

// failAttempts bounds how often fail tries to record a failure, with
// attempts spaced by a growing multiple of failRetryDelay.
const (
	failAttempts   = 3
	failRetryDelay = 100 * time.Millisecond
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("pdfname", func(fl validator.FieldLevel) bool {
		return strings.HasSuffix(strings.ToLower(fl.Field().String()), ".pdf")
	})
	return v
}

// Orchestrator accepts jobs, runs them in the background, and serves their
// state to pollers and stream subscribers.
type Orchestrator struct {
	store     Store
	broker    *Broker
	runner    Runner
	artifacts ArtifactStore
	sem       *semaphore.Weighted
	logger    *slog.Logger
	poll      time.Duration
	now       func() time.Time

	baseCtx  context.Context
	stopAll  context.CancelFunc
	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	inflight sync.WaitGroup
}

// NewOrchestrator returns an Orchestrator. Close stops running jobs.
func NewOrchestrator(store Store, runner Runner, artifacts ArtifactStore, opts Options) *Orchestrator {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:     store,
		broker:    NewBroker(),
		runner:    runner,
		artifacts: artifacts,
		sem:       semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		logger:    opts.Logger,
		poll:      opts.PollInterval,
		now:       func() time.Time { return time.Now().UTC() },
		baseCtx:   ctx,
		stopAll:   cancel,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Submit validates req, records a queued job, and starts it in the
// background. It returns without waiting for the pipeline.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (Job, error) {
	req.Question = strings.TrimSpace(req.Question)
	if err := validate.Struct(req); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for _, f := range req.Files {
		if !bytes.HasPrefix(f.Content, []byte("%PDF")) {
			return Job{}, fmt.Errorf("%w: %s is not a PDF", ErrInvalid, f.Filename)
		}
	}

	now := o.now()
	j := Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Stage:     StageQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Question:  req.Question,
		Artifacts: map[string]string{},
	}
	for _, f := range req.Files {
		j.Files = append(j.Files, f.Filename)
	}
	if err := o.store.Create(ctx, j); err != nil {
		return Job{}, fmt.Errorf("creating job: %w", err)
	}
	o.broker.Open(j.ID)

	runCtx, cancel := context.WithCancel(o.baseCtx)
	o.mu.Lock()
	o.cancels[j.ID] = cancel
	o.mu.Unlock()

	o.inflight.Add(1)
	go o.execute(runCtx, j.ID, req.Files)

	o.logger.Info("job submitted", "job", j.ID, "files", len(req.Files))
	return j, nil
}

func (o *Orchestrator) execute(ctx context.Context, id string, files []Upload) {
	defer o.inflight.Done()
	defer func() {
		o.mu.Lock()
		if cancel, ok := o.cancels[id]; ok {
			cancel()
			delete(o.cancels, id)
		}
		o.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("job panicked", "job", id, "panic", r)
			o.fail(id, KindInternal, "internal error")
		}
	}()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.fail(id, KindCancelled, "job cancelled")
		return
	}
	defer o.sem.Release(1)

	j, err := o.store.Update(context.WithoutCancel(ctx), id, func(j *Job) error { return j.start(o.now()) })
	if err != nil {
		return
	}
	log := o.logger.With("job", id)
	log.Info("job started")

	rep := &reporter{o: o, id: id, stage: j.Stage}
	out, err := o.runner.Run(ctx, j, files, rep)
	var stageErr *StageError
	switch {
	case err != nil && (ctx.Err() != nil || errors.Is(err, ErrTerminal)):
		o.fail(id, KindCancelled, "job cancelled")
	case errors.As(err, &stageErr):
		log.Warn("job failed", "error", err)
		o.fail(id, KindStage, stageErr.Msg)
	case err != nil:
		log.Error("job failed", "stage", rep.stage, "error", err)
		o.fail(id, KindInternal, failureMessage(rep.stage))
	default:
		o.succeed(id, out)
		log.Info("job succeeded", "artifacts", len(out.Artifacts))
	}
}

func (o *Orchestrator) succeed(id string, out Output) {
	j, err := o.store.Update(context.Background(), id, func(j *Job) error {
		return j.succeed(out.Result, out.Artifacts, o.now())
	})
	if err != nil {
		if !errors.Is(err, ErrTerminal) {
			o.logger.Error("recording job result", "job", id, "error", err)
			o.fail(id, KindInternal, "Research failed while saving the results.")
		}
		return
	}
	res := out.Result
	o.broker.Publish(id, Event{Type: EventResult, Result: &res, Artifacts: j.ArtifactNames()})
}

// fail moves a job to failed, retrying store errors a few times. Terminal
// jobs are left unchanged.
func (o *Orchestrator) fail(id string, kind ErrorKind, msg string) bool {
	var (
		j   Job
		err error
	)
	for attempt := range failAttempts {
		if attempt > 0 {
			time.Sleep(failRetryDelay * time.Duration(attempt))
		}
		j, err = o.store.Update(context.Background(), id, func(j *Job) error {
			j.fail(kind, msg, o.now())
			return nil
		})
		if err == nil || errors.Is(err, ErrTerminal) || errors.Is(err, ErrNotFound) {
			break
		}
		o.logger.Error("recording job failure", "job", id, "attempt", attempt+1, "error", err)
	}
	if err != nil {
		if !errors.Is(err, ErrTerminal) && !errors.Is(err, ErrNotFound) {
			// Streamers still get a terminal event even though the store
			// could not record it.
			o.broker.Publish(id, Event{Type: EventError, Detail: msg})
		}
		return false
	}
	o.broker.Publish(id, Event{Type: EventError, Detail: j.Error})
	return true
}

type reporter struct {
	o     *Orchestrator
	id    string
	stage Stage
}

func (r *reporter) Stage(stage Stage) error {
	_, err := r.o.store.Update(context.Background(), r.id, func(j *Job) error { return j.advance(stage, r.o.now()) })
	if err != nil {
		return fmt.Errorf("moving job to %s: %w", stage, err)
	}
	r.stage = stage
	r.o.broker.Publish(r.id, Event{Type: EventStep, Step: stage})
	return nil
}

func (r *reporter) Log(msg string) {
	r.o.broker.Publish(r.id, Event{Type: EventLog, Message: msg})
}

// Get returns a snapshot of the job.
func (o *Orchestrator) Get(ctx context.Context, id string) (Job, error) {
	return o.store.Get(ctx, id)
}

// List returns every job, oldest first.
func (o *Orchestrator) List(ctx context.Context) ([]Job, error) {
	return o.store.List(ctx)
}

// Stream returns the job's events: everything already published, then
// live events, ending after the terminal event. Jobs this process did not
// run are followed by polling the store.
func (o *Orchestrator) Stream(ctx context.Context, id string) (<-chan Event, error) {
	j, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ch, ok := o.broker.Subscribe(ctx, id); ok {
		return ch, nil
	}
	out := make(chan Event)
	go o.pollStream(ctx, j, out)
	return out, nil
}

// pollStream emits a step event for each observed stage change and the
// terminal event derived from the stored job.
func (o *Orchestrator) pollStream(ctx context.Context, j Job, out chan<- Event) {
	defer close(out)
	send := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var last Stage
	ticker := time.NewTicker(o.poll)
	defer ticker.Stop()
	for {
		if j.Stage != last && j.Stage != StageQueued && j.Stage != StageDone && j.Stage != StageFailed {
			if !send(Event{Type: EventStep, Step: j.Stage}) {
				return
			}
			last = j.Stage
		}
		if j.Terminal() {
			send(terminalEvent(j))
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
		next, err := o.store.Get(ctx, j.ID)
		if err != nil {
			send(Event{Type: EventError, Detail: "job no longer available"})
			return
		}
		j = next
	}
}

func terminalEvent(j Job) Event {
	if j.Status == StatusSucceeded && j.Result != nil {
		res := *j.Result
		return Event{Type: EventResult, Result: &res, Artifacts: j.ArtifactNames()}
	}
	return Event{Type: EventError, Detail: j.Error}
}

// Cancel fails a queued or running job with KindCancelled and stops its
// pipeline. Results produced after cancellation are discarded.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (Job, error) {
	j, err := o.store.Update(ctx, id, func(j *Job) error {
		j.fail(KindCancelled, "job cancelled", o.now())
		return nil
	})
	if err != nil {
		return j, err
	}
	o.broker.Publish(id, Event{Type: EventError, Detail: j.Error})

	o.mu.Lock()
	if cancel, ok := o.cancels[id]; ok {
		cancel()
	}
	o.mu.Unlock()
	o.logger.Info("job cancelled", "job", id)
	return j, nil
}

// Delete cancels the job if needed and removes it with its artifacts.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	j, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !j.Terminal() {
		if _, err := o.Cancel(ctx, id); err != nil && !errors.Is(err, ErrTerminal) {
			return err
		}
	}
	if o.artifacts != nil {
		for name, key := range j.Artifacts {
			if err := o.artifacts.Delete(ctx, key); err != nil {
				o.logger.Warn("deleting artifact failed", "job", id, "artifact", name, "error", err)
			}
		}
	}
	o.broker.Remove(id)
	return o.store.Delete(ctx, id)
}

// Artifact opens a declared artifact of a succeeded job.
func (o *Orchestrator) Artifact(ctx context.Context, id, name string) (io.ReadCloser, error) {
	j, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	key, ok := j.Artifacts[name]
	if j.Status != StatusSucceeded || !ok || o.artifacts == nil {
		return nil, ErrArtifactNotFound
	}
	rc, err := o.artifacts.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactNotFound, err)
	}
	return rc, nil
}

// Recover fails jobs left queued or running by a previous process. It is
// meant to be called once at startup with a persistent store.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	jobs, err := o.store.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, j := range jobs {
		if j.Terminal() {
			continue
		}
		if o.fail(j.ID, KindInternal, "interrupted by server restart") {
			n++
		}
	}
	return n, nil
}

// Wait blocks until every started job has finished.
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

// Close cancels running jobs and waits for them to stop.
func (o *Orchestrator) Close() {
	o.stopAll()
	o.inflight.Wait()
}
