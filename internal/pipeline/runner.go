package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/nutrichat/nutrichat/internal/labs"
)

// DefaultWorkers is the worker count when the config does not set one.
const DefaultWorkers = 2

const queueCapacity = 64

const summarizePromptFormat = `Analyze this medical test result and provide a brief clinical summary:
Test: %s
Value: %s
Date: %s

Provide:
1. A one-sentence summary
2. Key biomarkers mentioned
3. Any health concerns or notable findings

Format as JSON: { "summary": "...", "biomarkers": [...], "concerns": [...] }`

// Indexer is the vector index the embed step writes to.
type Indexer interface {
	Upsert(ctx context.Context, id string, profileID uuid.UUID, embedding []float32, metadata map[string]string) error
}

// ResultWriter persists the final test result row.
type ResultWriter interface {
	Insert(ctx context.Context, r *labs.TestResult) (int64, error)
}

// RetryConfig bounds per-step retries.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns the retry policy used in production.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Runner executes pipeline runs on a pool of background workers. Submission
// is fire-and-forget: callers get a run id immediately and the steps execute
// out-of-band under the runner's retry policy.
type Runner struct {
	g        *genkit.Genkit
	model    ai.Model
	embedder ai.Embedder
	store    *RunStore
	index    Indexer
	results  ResultWriter
	logger   *slog.Logger
	retry    RetryConfig

	queue chan uuid.UUID
	wg    sync.WaitGroup
}

// NewRunner creates a runner. Call Start to launch its workers.
func NewRunner(g *genkit.Genkit, model ai.Model, embedder ai.Embedder, store *RunStore, idx Indexer, results ResultWriter, logger *slog.Logger) *Runner {
	return &Runner{
		g:        g,
		model:    model,
		embedder: embedder,
		store:    store,
		index:    idx,
		results:  results,
		logger:   logger,
		retry:    DefaultRetryConfig(),
		queue:    make(chan uuid.UUID, queueCapacity),
	}
}

// Start resumes interrupted runs and launches workers that process the queue
// until ctx is canceled. Use Wait to block until workers drain after cancel.
func (r *Runner) Start(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	ids, err := r.store.ListIncomplete(ctx)
	if err != nil {
		return fmt.Errorf("resume runs: %w", err)
	}
	for _, id := range ids {
		r.enqueue(ctx, id)
	}
	if len(ids) > 0 {
		r.logger.Info("resuming interrupted pipeline runs", "count", len(ids))
	}

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
	return nil
}

// Wait blocks until all workers have exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Submit records a new pending run and queues it for processing. The run id
// is returned immediately; processing happens on the worker pool.
func (r *Runner) Submit(ctx context.Context, in Input) (uuid.UUID, error) {
	id, err := r.store.Create(ctx, in)
	if err != nil {
		return uuid.Nil, err
	}
	r.enqueue(ctx, id)
	r.logger.Info("pipeline run submitted",
		"run_id", id, "profile_id", in.ProfileID, "test_name", in.TestName)
	return id, nil
}

// enqueue never blocks: a run that does not fit in the queue stays pending in
// storage and is picked up by the next resume sweep.
func (r *Runner) enqueue(ctx context.Context, id uuid.UUID) {
	select {
	case r.queue <- id:
	case <-ctx.Done():
	default:
		r.logger.Warn("pipeline queue full, run deferred to resume sweep", "run_id", id)
	}
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.queue:
			if err := r.Process(ctx, id); err != nil {
				r.logger.Error("pipeline run failed", "run_id", id, "error", err)
			}
		}
	}
}

// Process drives one run from its current checkpoint to completion. Safe to
// call on an already-completed run (no-op) and after a crash (resumes from
// the last committed state).
func (r *Runner) Process(ctx context.Context, id uuid.UUID) error {
	for {
		run, err := r.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if run.State.Terminal() {
			return nil
		}

		var step func(context.Context, *Run) error
		var name string
		switch run.State {
		case StatePending:
			step, name = r.summarize, "summarize"
		case StateSummarized:
			step, name = r.embedAndIndex, "embed and index"
		case StateIndexed:
			step, name = r.persist, "persist"
		default:
			return fmt.Errorf("run %s in unexpected state %q", id, run.State)
		}

		if err := r.runStep(ctx, run, name, step); err != nil {
			if markErr := r.store.MarkFailed(ctx, id, err.Error()); markErr != nil {
				r.logger.Error("marking run failed", "run_id", id, "error", markErr)
			}
			return fmt.Errorf("step %q: %w", name, err)
		}
	}
}

// runStep executes one step with exponential backoff on transient errors.
func (r *Runner) runStep(ctx context.Context, run *Run, name string, step func(context.Context, *Run) error) error {
	var lastErr error
	delay := r.retry.InitialInterval

	for attempt := 0; attempt <= r.retry.MaxRetries; attempt++ {
		err := step(ctx, run)
		if err == nil {
			return nil
		}
		lastErr = err

		if recErr := r.store.RecordAttempt(ctx, run.ID, err.Error()); recErr != nil {
			r.logger.Warn("recording attempt", "run_id", run.ID, "error", recErr)
		}
		if !retryableError(err) {
			return err
		}
		if attempt == r.retry.MaxRetries {
			break
		}

		r.logger.Debug("retrying pipeline step",
			"run_id", run.ID, "step", name, "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay = min(delay*2, r.retry.MaxInterval)
		}
	}
	return fmt.Errorf("after %d retries: %w", r.retry.MaxRetries, lastErr)
}

// summarize asks the model for a structured summary of the submission and
// commits it. Unparseable model output degrades to a templated summary
// instead of failing the run.
func (r *Runner) summarize(ctx context.Context, run *Run) error {
	in := run.Input()
	resp, err := genkit.Generate(ctx, r.g,
		ai.WithModel(r.model),
		ai.WithPrompt(summarizePromptFormat, in.TestName, in.TestValue, in.TestDate),
	)
	if err != nil {
		return fmt.Errorf("summarize generate: %w", err)
	}

	sum, ok := parseSummary(resp.Text())
	if !ok {
		r.logger.Warn("summary output unparseable, using template", "run_id", run.ID)
		sum = FallbackSummary(in)
	}
	return r.store.CheckpointSummary(ctx, run.ID, sum)
}

// embedAndIndex builds the embedding blob, upserts the vector and commits
// the vector id. The id is stable across attempts, so a replayed step
// overwrites its own vector instead of adding a second one.
func (r *Runner) embedAndIndex(ctx context.Context, run *Run) error {
	if run.Summary == nil {
		return fmt.Errorf("run %s has no committed summary", run.ID)
	}
	in := run.Input()

	blob := fmt.Sprintf("Test: %s\nValue: %s\nDate: %s\nSummary: %s\nBiomarkers: %s\nConcerns: %s",
		in.TestName, in.TestValue, in.TestDate,
		run.Summary.Summary,
		strings.Join(run.Summary.Biomarkers, ", "),
		strings.Join(run.Summary.Concerns, ", "))

	resp, err := r.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(blob, nil)},
	})
	if err != nil {
		return fmt.Errorf("embed summary: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return fmt.Errorf("embedder returned no vector")
	}

	run.VectorID = vectorIDFor(run)
	metadata := map[string]string{
		"profileId": in.ProfileID.String(),
		"testName":  in.TestName,
		"testDate":  in.TestDate,
		"summary":   run.Summary.Summary,
	}
	if err := r.index.Upsert(ctx, run.VectorID, in.ProfileID, resp.Embeddings[0].Embedding, metadata); err != nil {
		return fmt.Errorf("index vector: %w", err)
	}
	return r.store.CheckpointVector(ctx, run.ID, run.VectorID)
}

// vectorIDFor derives the run's vector id. It is a pure function of the run
// row, so an attempt replayed after a failed checkpoint upserts the same
// vector instead of orphaning a new one.
func vectorIDFor(run *Run) string {
	if run.VectorID != "" {
		return run.VectorID
	}
	return fmt.Sprintf("%s-%d", run.ProfileID, run.CreatedAt.UnixMilli())
}

// persist writes the immutable result row. Runs only after the vector commit,
// so a stored row always has its embedding.
func (r *Runner) persist(ctx context.Context, run *Run) error {
	if run.Summary == nil || run.VectorID == "" {
		return fmt.Errorf("run %s missing summary or vector checkpoint", run.ID)
	}
	_, err := r.results.Insert(ctx, &labs.TestResult{
		ProfileID: run.ProfileID,
		TestName:  run.TestName,
		TestValue: run.TestValue,
		TestDate:  run.TestDate,
		Summary:   run.Summary.Summary,
		VectorID:  run.VectorID,
	})
	if err != nil {
		return fmt.Errorf("persist result: %w", err)
	}
	return r.store.MarkPersisted(ctx, run.ID)
}

// parseSummary extracts the structured summary from model output, tolerating
// markdown fences around the JSON.
func parseSummary(text string) (Summary, bool) {
	text = strings.TrimSpace(text)
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}

	var sum Summary
	if err := json.Unmarshal([]byte(text), &sum); err != nil || sum.Summary == "" {
		return Summary{}, false
	}
	if sum.Biomarkers == nil {
		sum.Biomarkers = []string{}
	}
	if sum.Concerns == nil {
		sum.Concerns = []string{}
	}
	return sum, true
}
