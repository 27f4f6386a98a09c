// Package scheduler implements the single-worker generation queue (spec
// §4.I). It is grounded on original_source/llama-agent/src/queue.rs for the
// single-worker FIFO/bounded-channel/fail-fast-backpressure shape, and on
// the teacher's mutex-guarded-exclusive-resource idiom for how the model
// handle is owned for the whole duration of one request.
package scheduler

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/localagent/runtime/internal/domain/entity"
	"github.com/localagent/runtime/internal/domain/stopper"
	"github.com/localagent/runtime/internal/infrastructure/modelhandle"
	pkgerrors "github.com/localagent/runtime/pkg/errors"
	"github.com/localagent/runtime/pkg/safego"
)

// Config bounds the scheduler's queue (spec §6).
type Config struct {
	MaxQueueSize   int
	RequestTimeout time.Duration
	WorkerThreads  int // always serialized through the model mutex; see spec §5
}

// DefaultConfig matches the teacher-adjacent conservative defaults used
// elsewhere in this runtime's config surface.
func DefaultConfig() Config {
	return Config{MaxQueueSize: 64, RequestTimeout: 2 * time.Minute, WorkerThreads: 1}
}

// Job is one generation request plus its already-rendered prompt (the
// orchestrator renders the prompt via the chat template engine before
// submitting) and the hooks the worker needs to detect a mid-generation
// tool call.
type Job struct {
	Request        entity.GenerationRequest
	Prompt         string
	DetectToolCall func(accumulated string) bool
}

type job struct {
	Job
	enqueuedAt time.Time
	batch      chan<- batchResult // nil for streaming jobs
	stream     chan<- entity.StreamChunk
	ctx        context.Context
}

type batchResult struct {
	resp entity.GenerationResponse
	err  error
}

// Scheduler owns the model handle exclusively via a single worker
// goroutine consuming from a bounded channel.
type Scheduler struct {
	cfg    Config
	handle *modelhandle.Handle
	queue  chan job
	logger *zap.Logger
	done   chan struct{}
}

// New starts the worker goroutine and returns the scheduler. Stop shuts it
// down.
func New(cfg Config, handle *modelhandle.Handle, logger *zap.Logger) *Scheduler {
	if cfg.MaxQueueSize <= 0 {
		cfg = DefaultConfig()
	}
	s := &Scheduler{
		cfg:    cfg,
		handle: handle,
		queue:  make(chan job, cfg.MaxQueueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	safego.Go(logger, "scheduler-worker", s.workerLoop)
	return s
}

// Stop signals the worker to exit once it finishes any in-flight request
// and drains no further jobs.
func (s *Scheduler) Stop() {
	close(s.done)
}

// QueueSize reports the number of requests currently waiting behind the
// in-flight one, for health reporting (spec §4.J "health").
func (s *Scheduler) QueueSize() int {
	return len(s.queue)
}

// Submit enqueues a batch request. It never blocks: the queue is full is
// reported immediately as Queue::Full. The request's total wall time,
// counting queue wait, is bounded by RequestTimeout.
func (s *Scheduler) Submit(ctx context.Context, j Job) (entity.GenerationResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	result := make(chan batchResult, 1)
	item := job{Job: j, enqueuedAt: time.Now(), batch: result, ctx: ctx}

	select {
	case s.queue <- item:
	default:
		return entity.GenerationResponse{}, pkgerrors.NewQueueFullError("generation queue is at capacity")
	}

	select {
	case r := <-result:
		return r.resp, r.err
	case <-ctx.Done():
		return entity.GenerationResponse{}, pkgerrors.NewQueueTimeoutError("request timed out waiting for generation")
	}
}

// SubmitStreaming enqueues a streaming request. The returned channel is
// closed after the final chunk (IsComplete=true) or an error chunk.
// Cancelling ctx is observed by the worker at the next token boundary and
// cancels the in-progress generation; a consumer that stops reading without
// cancelling ctx blocks the worker once the channel's buffer is full.
func (s *Scheduler) SubmitStreaming(ctx context.Context, j Job) (<-chan entity.StreamChunk, error) {
	out := make(chan entity.StreamChunk, 100)
	item := job{Job: j, enqueuedAt: time.Now(), stream: out, ctx: ctx}

	select {
	case s.queue <- item:
	default:
		close(out)
		return nil, pkgerrors.NewQueueFullError("generation queue is at capacity")
	}
	return out, nil
}

func (s *Scheduler) workerLoop() {
	for {
		select {
		case <-s.done:
			return
		case item := <-s.queue:
			s.runJob(item)
		}
	}
}

func (s *Scheduler) runJob(item job) {
	if time.Since(item.enqueuedAt) > s.cfg.RequestTimeout {
		s.fail(item, pkgerrors.NewQueueTimeoutError("request timed out before generation started"))
		return
	}
	if item.ctx.Err() != nil {
		s.fail(item, pkgerrors.NewQueueTimeoutError("request was cancelled before generation started"))
		return
	}

	start := time.Now()
	var resp entity.GenerationResponse
	err := s.handle.WithModel(func(engine modelhandle.InferenceEngine) error {
		var runErr error
		resp, runErr = s.generate(item, engine, start)
		return runErr
	})
	if err != nil {
		s.fail(item, err)
		return
	}
	s.succeed(item, resp)
}

// generate runs the full worker algorithm from spec §4.I step by step,
// holding the model exclusively for its whole duration.
func (s *Scheduler) generate(item job, engine modelhandle.InferenceEngine, start time.Time) (entity.GenerationResponse, error) {
	conditions := s.buildStopConditions(item.Request, engine.IsEndOfGeneration, item.DetectToolCall)

	promptTokens, err := engine.Tokenize(item.Prompt, true)
	if err != nil {
		return entity.GenerationResponse{}, pkgerrors.NewModelInferenceError("failed to tokenize prompt", err)
	}
	if err := engine.Decode(item.ctx, promptTokens); err != nil {
		return entity.GenerationResponse{}, pkgerrors.NewModelInferenceError("failed to decode prompt", err)
	}

	temperature, topP := 0.8, 0.95
	if item.Request.Temperature != nil {
		temperature = *item.Request.Temperature
	}
	if item.Request.TopP != nil {
		topP = *item.Request.TopP
	}

	var generated string
	var tokensGenerated int
	var finish entity.FinishReason

	for {
		if item.ctx.Err() != nil {
			finish = entity.FinishReason{Kind: entity.FinishError, Reason: "request cancelled"}
			break
		}

		token, err := engine.Sample(temperature, topP)
		if err != nil {
			return entity.GenerationResponse{}, pkgerrors.NewModelInferenceError("failed to sample token", err)
		}
		piece, err := engine.Detokenize(token)
		if err != nil {
			return entity.GenerationResponse{}, pkgerrors.NewModelInferenceError("failed to detokenize token", err)
		}
		tokensGenerated++
		generated += piece

		if item.stream != nil {
			if !s.sendChunk(item, entity.StreamChunk{Text: piece, IsComplete: false, TokenCount: tokensGenerated}) {
				finish = entity.FinishReason{Kind: entity.FinishError, Reason: "stream consumer disconnected"}
				break
			}
		}

		if stopped, reason := conditions.Poll(stopper.State{TokensGenerated: tokensGenerated, Token: token, Piece: piece}); stopped {
			finish = finishReasonFor(reason)
			break
		}

		if err := engine.Decode(item.ctx, []int32{token}); err != nil {
			return entity.GenerationResponse{}, pkgerrors.NewModelInferenceError("failed to decode sampled token", err)
		}
	}

	if item.stream != nil {
		s.sendChunk(item, entity.StreamChunk{IsComplete: true, TokenCount: tokensGenerated})
		close(item.stream)
	}

	return entity.GenerationResponse{
		GeneratedText:   generated,
		TokensGenerated: tokensGenerated,
		GenerationTime:  time.Since(start),
		FinishReason:    finish,
	}, nil
}

// sendChunk delivers a chunk, returning false if the request's context is
// done before the chunk is accepted (signalling the worker to abort this
// request).
func (s *Scheduler) sendChunk(item job, chunk entity.StreamChunk) bool {
	select {
	case item.stream <- chunk:
		return true
	case <-item.ctx.Done():
		return false
	}
}

func (s *Scheduler) succeed(item job, resp entity.GenerationResponse) {
	if item.batch != nil {
		item.batch <- batchResult{resp: resp}
	}
}

func (s *Scheduler) fail(item job, err error) {
	if item.batch != nil {
		item.batch <- batchResult{err: err}
		return
	}
	if item.stream != nil {
		item.stream <- entity.StreamChunk{IsComplete: true, Err: err}
		close(item.stream)
	}
}

func (s *Scheduler) buildStopConditions(req entity.GenerationRequest, isEOS func(int32) bool, detect func(string) bool) stopper.Set {
	cfg := req.Stopping
	if req.MaxTokens != nil && cfg.MaxTokens == 0 {
		cfg.MaxTokens = *req.MaxTokens
	}
	return stopper.Build(cfg, req.StopTokens, isEOS, detect, s.logger)
}

func finishReasonFor(reason string) entity.FinishReason {
	switch {
	case reason == "Tool call detected":
		return entity.FinishReason{Kind: entity.FinishToolCall, Reason: reason}
	case reason == "end of sequence token":
		return entity.FinishReason{Kind: entity.FinishEndOfSequence, Reason: reason}
	case strings.HasPrefix(reason, "max tokens"):
		return entity.FinishReason{Kind: entity.FinishMaxTokens, Reason: reason}
	case strings.HasPrefix(reason, "stop token"):
		return entity.FinishReason{Kind: entity.FinishStopToken, Reason: reason}
	default:
		return entity.FinishReason{Kind: entity.FinishStopped, Reason: reason}
	}
}
