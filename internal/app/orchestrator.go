package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raysh454/stagecheck/internal/checker"
	"github.com/raysh454/stagecheck/internal/logging"
	"github.com/raysh454/stagecheck/internal/rowio"
	"github.com/raysh454/stagecheck/internal/scheduler"
	"github.com/raysh454/stagecheck/internal/sitemap"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrJobNotFinished = errors.New("job has no output yet")
	ErrClosed         = errors.New("orchestrator is closed")
)

type JobEventType string

const (
	JobEventStatus   JobEventType = "status"
	JobEventProgress JobEventType = "progress"
	JobEventResult   JobEventType = "result"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	// For status changes
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	// For progress
	Processed int `json:"processed,omitempty"`
	Total     int `json:"total,omitempty"`

	Summary *checker.Summary `json:"summary,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

func (s JobStatus) finished() bool {
	return s == JobDone || s == JobFailed || s == JobCanceled
}

type JobType string

const (
	JobCheck    JobType = "check"
	JobGenerate JobType = "generate"
)

type Job struct {
	ID        string    `json:"id"`
	Type      JobType   `json:"type"`
	Input     string    `json:"input"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	Processed int `json:"processed"`
	Total     int `json:"total"`

	Summary    *checker.Summary `json:"summary,omitempty"`
	OutputName string           `json:"output_name,omitempty"`
	RunID      string           `json:"run_id,omitempty"`

	Events chan JobEvent `json:"-"`

	output []byte
}

// jobResult is what a job body hands back to the lifecycle.
type jobResult struct {
	summary *checker.Summary
	output  []byte
	runID   string
}

type jobFunc func(ctx context.Context, progress func(done, total int)) (jobResult, error)

// Orchestrator runs check and generate jobs in the background. Output is kept
// in memory and only exposed once a job is done.
type Orchestrator struct {
	cfg    *Config
	comps  *Components
	logger logging.Logger

	jobsMu     sync.Mutex
	jobs       map[string]*Job
	jobCancels map[string]context.CancelFunc
	closed     bool

	stopJanitor chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

// NewOrchestrator ties together config, components and logger. With a positive
// JobRetention, finished jobs are dropped once they are older than it.
func NewOrchestrator(cfg *Config, comps *Components, logger logging.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	o := &Orchestrator{
		cfg:         cfg,
		comps:       comps,
		logger:      logger.With(logging.Field{Key: "component", Value: "orchestrator"}),
		jobs:        make(map[string]*Job),
		jobCancels:  make(map[string]context.CancelFunc),
		stopJanitor: make(chan struct{}),
	}
	if cfg.JobRetention > 0 {
		go o.janitor(cfg.JobRetention)
	}
	return o
}

func (o *Orchestrator) janitor(retention time.Duration) {
	interval := min(retention, time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stopJanitor:
			return
		case now := <-ticker.C:
			o.pruneJobs(now, retention)
		}
	}
}

// pruneJobs drops finished jobs that ended before now-retention.
func (o *Orchestrator) pruneJobs(now time.Time, retention time.Duration) int {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	n := 0
	for id, j := range o.jobs {
		if j.Status.finished() && !j.EndedAt.IsZero() && now.Sub(j.EndedAt) > retention {
			delete(o.jobs, id)
			n++
		}
	}
	if n > 0 {
		o.logger.Debug("pruned finished jobs", logging.Field{Key: "count", Value: n})
	}
	return n
}

func (o *Orchestrator) emitJobEvent(jobID string, ev JobEvent) {
	o.jobsMu.Lock()
	job, ok := o.jobs[jobID]
	o.jobsMu.Unlock()
	if !ok || job == nil || job.Events == nil {
		return
	}

	// Non-blocking send; drop if buffer is full.
	select {
	case job.Events <- ev:
	default:
	}
}

func (o *Orchestrator) setJob(job *Job) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	o.jobs[job.ID] = job
}

func (o *Orchestrator) updateJob(jobID string, fn func(j *Job)) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if j, ok := o.jobs[jobID]; ok {
		fn(j)
	}
}

func (o *Orchestrator) setCancel(jobID string, cancel context.CancelFunc) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	o.jobCancels[jobID] = cancel
}

func (o *Orchestrator) deleteCancel(jobID string) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	delete(o.jobCancels, jobID)
}

func (o *Orchestrator) getCancel(jobID string) context.CancelFunc {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	return o.jobCancels[jobID]
}

// StartCheckJob parses an uploaded sheet and classifies it in the background.
// Unsupported formats and missing columns are reported before the job starts.
func (o *Orchestrator) StartCheckJob(ctx context.Context, filename string, data []byte) (*Job, error) {
	if o.comps == nil || o.comps.Checker == nil {
		return nil, errors.New("orchestrator: no checker configured")
	}
	format, err := rowio.FormatFor(filename)
	if err != nil {
		return nil, err
	}
	table, err := rowio.Read(bytes.NewReader(data), format)
	if err != nil {
		return nil, err
	}
	if err := table.Require(o.comps.Checker.Config().Required()...); err != nil {
		return nil, err
	}

	startedAt := time.Now().UTC()
	outputName := filepath.Base(rowio.DefaultOutputPath(filepath.Base(filename), startedAt))

	return o.startJob(ctx, JobCheck, filename, outputName, func(ctx context.Context, progress func(done, total int)) (jobResult, error) {
		res, err := o.comps.Checker.Check(ctx, table, func(p scheduler.Progress) {
			progress(p.Completed, p.Total)
		})
		if err != nil {
			return jobResult{}, err
		}
		if ctx.Err() != nil {
			return jobResult{}, ctx.Err()
		}

		var buf bytes.Buffer
		if err := rowio.Write(&buf, table, format); err != nil {
			return jobResult{}, fmt.Errorf("encode output: %w", err)
		}

		runID, err := o.comps.RecordCheck(ctx, RunInfo{
			Mode: string(JobCheck), Input: filename, Output: outputName, StartedAt: startedAt,
		}, table, res)
		if err != nil {
			o.logger.Warn("failed to record run", logging.Field{Key: "error", Value: err})
		}

		summary := res.Summary
		return jobResult{summary: &summary, output: buf.Bytes(), runID: runID}, nil
	})
}

// StartGenerateJob builds a check sheet from site's sitemap in the background.
func (o *Orchestrator) StartGenerateJob(ctx context.Context, site, stagingHost string) (*Job, error) {
	if o.comps == nil || o.comps.Generator == nil {
		return nil, errors.New("orchestrator: no generator configured")
	}
	if strings.TrimSpace(site) == "" {
		return nil, errors.New("site is required")
	}
	host, err := sitemap.NormalizeHost(stagingHost)
	if err != nil {
		return nil, err
	}

	startedAt := time.Now().UTC()
	outputName := generatedName(site)

	return o.startJob(ctx, JobGenerate, site, outputName, func(ctx context.Context, progress func(done, total int)) (jobResult, error) {
		table, err := o.comps.Generator.Generate(ctx, site, host, sitemap.ProgressFunc(progress))
		if err != nil {
			return jobResult{}, err
		}
		if ctx.Err() != nil {
			return jobResult{}, ctx.Err()
		}

		var buf bytes.Buffer
		if err := rowio.WriteCSV(&buf, table); err != nil {
			return jobResult{}, fmt.Errorf("encode output: %w", err)
		}

		runID, err := o.comps.RecordGenerate(ctx, RunInfo{
			Mode: string(JobGenerate), Input: site, Output: outputName, StartedAt: startedAt,
		}, table)
		if err != nil {
			o.logger.Warn("failed to record run", logging.Field{Key: "error", Value: err})
		}
		return jobResult{output: buf.Bytes(), runID: runID}, nil
	})
}

// generatedName names a generated sheet after the site host.
func generatedName(site string) string {
	s := strings.TrimSpace(site)
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	host := "site"
	if u, err := url.Parse(s); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return host + "-staging-check.csv"
}

func (o *Orchestrator) startJob(ctx context.Context, typ JobType, input, outputName string, run jobFunc) (*Job, error) {
	o.jobsMu.Lock()
	if o.closed {
		o.jobsMu.Unlock()
		return nil, ErrClosed
	}
	o.wg.Add(1)
	o.jobsMu.Unlock()

	jobID := uuid.New().String()
	job := &Job{
		ID:         jobID,
		Type:       typ,
		Input:      input,
		Status:     JobPending,
		StartedAt:  time.Now().UTC(),
		OutputName: outputName,
		Events:     make(chan JobEvent, 16),
	}
	o.setJob(job)

	// Jobs outlive the request that started them.
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.setCancel(jobID, cancel)

	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: JobPending})
	o.logger.Info("job started",
		logging.Field{Key: "job_id", Value: jobID},
		logging.Field{Key: "type", Value: string(typ)},
		logging.Field{Key: "input", Value: input})

	go func() {
		defer o.wg.Done()
		defer func() {
			cancel()
			o.deleteCancel(jobID)

			// Close events channel so websocket loop can terminate cleanly
			o.jobsMu.Lock()
			j := o.jobs[jobID]
			if j != nil {
				j.EndedAt = time.Now().UTC()
			}
			o.jobsMu.Unlock()
			if j != nil && j.Events != nil {
				close(j.Events)
			}
		}()

		o.updateJob(jobID, func(j *Job) { j.Status = JobRunning })
		o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: JobRunning})

		progress := func(done, total int) {
			o.updateJob(jobID, func(j *Job) {
				j.Processed = done
				j.Total = total
			})
			o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventProgress, Processed: done, Total: total})
		}

		res, err := o.runSafely(jobCtx, run, progress)
		o.finishJob(jobCtx, jobID, res, err)
	}()

	return o.GetJob(jobID)
}

func (o *Orchestrator) runSafely(ctx context.Context, run jobFunc, progress func(done, total int)) (res jobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return run(ctx, progress)
}

func (o *Orchestrator) finishJob(jobCtx context.Context, jobID string, res jobResult, err error) {
	select {
	case <-jobCtx.Done():
		o.updateJob(jobID, func(j *Job) {
			j.Status = JobCanceled
			j.Error = jobCtx.Err().Error()
		})
		o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: JobCanceled, Error: jobCtx.Err().Error()})
		o.logger.Info("job canceled", logging.Field{Key: "job_id", Value: jobID})
		return
	default:
	}

	if err != nil {
		o.updateJob(jobID, func(j *Job) {
			j.Status = JobFailed
			j.Error = err.Error()
		})
		o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: JobFailed, Error: err.Error()})
		o.logger.Warn("job failed",
			logging.Field{Key: "job_id", Value: jobID},
			logging.Field{Key: "error", Value: err})
		return
	}

	o.updateJob(jobID, func(j *Job) {
		j.Status = JobDone
		j.Summary = res.summary
		j.RunID = res.runID
		j.output = res.output
	})
	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventResult, Status: JobDone, Summary: res.summary})
	o.logger.Info("job done", logging.Field{Key: "job_id", Value: jobID})
}

// GetJob returns a snapshot of the job.
func (o *Orchestrator) GetJob(jobID string) (*Job, error) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return snapshot(j), nil
}

func snapshot(j *Job) *Job {
	cp := *j
	cp.output = nil
	if j.Summary != nil {
		s := *j.Summary
		cp.Summary = &s
	}
	return &cp
}

// ListJobs returns snapshots of all retained jobs, oldest first.
func (o *Orchestrator) ListJobs() []*Job {
	o.jobsMu.Lock()
	out := make([]*Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		out = append(out, snapshot(j))
	}
	o.jobsMu.Unlock()

	slices.SortFunc(out, func(a, b *Job) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// CancelJob stops a running job. Canceling a finished job is a no-op.
func (o *Orchestrator) CancelJob(jobID string) error {
	o.jobsMu.Lock()
	_, ok := o.jobs[jobID]
	o.jobsMu.Unlock()
	if !ok {
		return ErrJobNotFound
	}
	if cancel := o.getCancel(jobID); cancel != nil {
		cancel()
	}
	return nil
}

// JobOutput returns the finished job's output file name and bytes.
func (o *Orchestrator) JobOutput(jobID string) (string, []byte, error) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return "", nil, ErrJobNotFound
	}
	if j.Status != JobDone {
		return "", nil, fmt.Errorf("%w: status %s", ErrJobNotFinished, j.Status)
	}
	return j.OutputName, j.output, nil
}

// Close cancels running jobs and waits for them to wind down.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.stopJanitor)
		o.jobsMu.Lock()
		o.closed = true
		for _, cancel := range o.jobCancels {
			cancel()
		}
		o.jobsMu.Unlock()
		o.wg.Wait()
	})
}
