// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package job drives research requests through the pipeline stages,
// records their status in a Store, and publishes every transition to
// stream subscribers.
package job

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/veritas/pkg/types"
)

var (
	// ErrNotFound is returned for unknown job IDs.
	ErrNotFound = errors.New("job not found")

	// ErrTerminal is returned when mutating a succeeded or failed job.
	ErrTerminal = errors.New("job is already finished")

	// ErrArtifactNotFound is returned when a job has not succeeded or did
	// not declare the requested artifact.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrInvalid wraps request validation failures.
	ErrInvalid = errors.New("invalid job request")
)

// StageError is a runner failure whose message is meant for users. Any
// other runner error is logged and replaced by a generic message.
type StageError struct {
	Msg string
}

func (e *StageError) Error() string { return e.Msg }

// NewStageError returns a StageError with msg.
func NewStageError(msg string) error {
	return &StageError{Msg: msg}
}

// failureMessage is the user-facing text for an unexpected error during stage.
func failureMessage(stage Stage) string {
	switch stage {
	case StageRetrievingSources:
		return "Research failed while retrieving sources."
	case StageExtractingQuotes:
		return "Research failed while extracting quotes."
	case StageSynthesizing:
		return "Research failed while generating the review."
	default:
		return "Research failed."
	}
}

// Status is the coarse job state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Stage is the pipeline step a job is in.
type Stage string

const (
	StageQueued            Stage = "queued"
	StageRetrievingSources Stage = "retrieving-sources"
	StageExtractingQuotes  Stage = "extracting-quotes"
	StageSynthesizing      Stage = "synthesizing"
	StageDone              Stage = "done"
	StageFailed            Stage = "failed"
)

// stageOrder gives each stage its position and progress percentage.
var stageOrder = map[Stage]struct {
	pos      int
	progress int
}{
	StageQueued:            {0, 0},
	StageRetrievingSources: {1, 10},
	StageExtractingQuotes:  {2, 40},
	StageSynthesizing:      {3, 70},
	StageDone:              {4, 100},
}

// ErrorKind classifies a failed job.
type ErrorKind string

const (
	KindStage     ErrorKind = "stage"
	KindCancelled ErrorKind = "cancelled"
	KindInternal  ErrorKind = "internal"
)

// Result is the payload of a succeeded job.
type Result struct {
	Sources          []types.Source       `json:"sources" yaml:"sources"`
	Summary          string               `json:"summary" yaml:"summary"`
	LiteratureReview string               `json:"literature_review" yaml:"literature_review"`
	ReviewMetadata   types.ReviewMetadata `json:"review_metadata" yaml:"review_metadata"`
	SourceFiles      []string             `json:"source_files" yaml:"source_files"`

	// PaperFiles are the retained copies of SourceFiles served by the
	// paper download endpoint, prefixed with the job ID.
	PaperFiles []string `json:"paper_files,omitempty" yaml:"paper_files,omitempty"`

	Citations        []types.Citation     `json:"citations,omitempty" yaml:"citations,omitempty"`
}

// Job is one research request.
type Job struct {
	ID        string    `json:"id" yaml:"id"`
	Status    Status    `json:"status" yaml:"status"`
	Stage     Stage     `json:"stage" yaml:"stage"`
	Progress  int       `json:"progress" yaml:"progress"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`

	Question string `json:"question" yaml:"question"`

	// Files lists the uploaded PDF names, empty when sources are retrieved.
	Files []string `json:"files,omitempty" yaml:"files,omitempty"`

	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`

	// Artifacts maps artifact names to storage keys.
	Artifacts map[string]string `json:"artifacts" yaml:"artifacts"`

	Result *Result `json:"result,omitempty" yaml:"result,omitempty"`
}

// Terminal reports whether the job has succeeded or failed.
func (j Job) Terminal() bool {
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}

// ArtifactNames returns the declared artifact names in sorted order.
func (j Job) ArtifactNames() []string {
	return slices.Sorted(maps.Keys(j.Artifacts))
}

func (j Job) clone() Job {
	j.Files = slices.Clone(j.Files)
	j.Artifacts = maps.Clone(j.Artifacts)
	return j
}

func (j *Job) start(now time.Time) error {
	if j.Status != StatusQueued {
		return fmt.Errorf("starting job in status %s", j.Status)
	}
	j.Status = StatusRunning
	j.UpdatedAt = now
	return nil
}

// advance moves a running job to a later stage. Progress never decreases.
func (j *Job) advance(stage Stage, now time.Time) error {
	if j.Status != StatusRunning {
		return fmt.Errorf("advancing job in status %s", j.Status)
	}
	next, ok := stageOrder[stage]
	if !ok || stage == StageDone || stage == StageQueued {
		return fmt.Errorf("invalid stage %q", stage)
	}
	if next.pos <= stageOrder[j.Stage].pos {
		return fmt.Errorf("stage %s does not follow %s", stage, j.Stage)
	}
	j.Stage = stage
	j.Progress = max(j.Progress, next.progress)
	j.UpdatedAt = now
	return nil
}

func (j *Job) succeed(res Result, artifacts map[string]string, now time.Time) error {
	if j.Status != StatusRunning {
		return fmt.Errorf("completing job in status %s", j.Status)
	}
	j.Status = StatusSucceeded
	j.Stage = StageDone
	j.Progress = 100
	j.Result = &res
	j.Artifacts = maps.Clone(artifacts)
	if j.Artifacts == nil {
		j.Artifacts = map[string]string{}
	}
	j.UpdatedAt = now
	return nil
}

func (j *Job) fail(kind ErrorKind, msg string, now time.Time) {
	if msg == "" {
		msg = "research failed"
	}
	j.Status = StatusFailed
	j.Stage = StageFailed
	j.Error = msg
	j.ErrorKind = kind
	j.UpdatedAt = now
}

// WriteYAML writes a job snapshot as YAML.
func WriteYAML(w io.Writer, j Job) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(j); err != nil {
		return fmt.Errorf("encoding job %s: %w", j.ID, err)
	}
	return enc.Close()
}
