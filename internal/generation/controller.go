// Package generation drives a video generation task from submission to a
// terminal outcome and keeps the caller's memory history in step with it.
//
// A task moves Created -> Polling -> Success | Failed | TimedOut. The memory
// entry is written as pending as soon as the render service hands back a
// task id, so a task that outlives the poll budget can be resumed later by
// its per-user memory id.
package generation

import (
	"context"
	"discord-video-bot/internal/database"
	"discord-video-bot/internal/metrics"
	"discord-video-bot/internal/models"
	"discord-video-bot/internal/render"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"
)

// Renderer is the remote side of a task.
type Renderer interface {
	Submit(ctx context.Context, req render.SubmitRequest) (*render.SubmitResponse, error)
	Status(ctx context.Context, taskID string) (*render.TaskStatus, error)
}

// Store is the persistence the controller needs.
type Store interface {
	GetReference(ctx context.Context, groupID int64) (string, error)
	AddMemory(ctx context.Context, m *models.Memory) (int, error)
	UpdateMemory(ctx context.Context, userID, groupID int64, taskID, videoURL string, status models.MemoryStatus) error
	RecordSuccess(ctx context.Context, userID, groupID int64, taskID, videoURL string) error
	GetMemoryByID(ctx context.Context, userID, groupID int64, userVideoID int) (*models.Memory, error)
}

// PromptRefiner rewrites a user prompt before submission.
type PromptRefiner interface {
	RefinePrompt(ctx context.Context, prompt string) (string, error)
}

// Embedder turns a prompt into a vector stored with the memory entry.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config holds the render parameters applied to every task.
type Config struct {
	Model             string
	AspectRatio       string
	Resolution        string
	Duration          int
	MovementAmplitude string
	EndingPrompt      string
	Poll              PollPolicy
}

// Request starts one generation.
type Request struct {
	UserID  int64
	GroupID int64
	Prompt  string

	// OnSubmitted, if set, is called once the pending memory entry exists
	// and before polling starts.
	OnSubmitted func(memoryID int)
}

// Result describes a memory entry after a generation or lookup.
type Result struct {
	MemoryID int
	TaskID   string
	VideoURL string
	Status   models.MemoryStatus
	Entry    *models.Memory // set by Resume
}

type Controller struct {
	cfg      Config
	renderer Renderer
	store    Store
	refiner  PromptRefiner
	embedder Embedder
}

// Option customizes the controller.
type Option func(*Controller)

// WithPromptRefiner rewrites prompts through r. Refinement errors fall back
// to the user's prompt.
func WithPromptRefiner(r PromptRefiner) Option {
	return func(c *Controller) { c.refiner = r }
}

// WithEmbedder stores a prompt embedding with each memory entry.
func WithEmbedder(e Embedder) Option {
	return func(c *Controller) { c.embedder = e }
}

func NewController(cfg Config, renderer Renderer, store Store, opts ...Option) *Controller {
	if cfg.Poll.Interval == 0 && cfg.Poll.Budget == 0 {
		sleep := cfg.Poll.Sleep
		cfg.Poll = DefaultPollPolicy()
		cfg.Poll.Sleep = sleep
	}
	c := &Controller{cfg: cfg, renderer: renderer, store: store}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate submits a task for the group's reference images and polls it to
// completion. Usage is counted only when a video url is recorded.
func (c *Controller) Generate(ctx context.Context, req Request) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	refs, err := c.store.GetReference(ctx, req.GroupID)
	if err != nil {
		return nil, fmt.Errorf("load reference: %w", err)
	}
	images := SplitReferences(refs)
	if len(images) == 0 {
		return nil, ErrNoReference
	}

	resp, err := c.renderer.Submit(ctx, render.SubmitRequest{
		Model:             c.cfg.Model,
		Images:            images,
		Prompt:            c.buildPrompt(ctx, req.Prompt),
		Duration:          c.cfg.Duration,
		AspectRatio:       c.cfg.AspectRatio,
		Resolution:        c.cfg.Resolution,
		MovementAmplitude: c.cfg.MovementAmplitude,
	})
	if err != nil {
		metrics.Generations.WithLabelValues("submit_error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrTaskCreationFailed, err)
	}
	if resp.TaskID == "" {
		metrics.Generations.WithLabelValues("submit_error").Inc()
		return nil, ErrTaskCreationFailed
	}

	entry := &models.Memory{
		UserID:          req.UserID,
		GroupID:         req.GroupID,
		TaskID:          resp.TaskID,
		Status:          models.StatusPending,
		Prompt:          req.Prompt,
		PromptEmbedding: c.embed(ctx, req.Prompt),
	}
	memoryID, err := c.store.AddMemory(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("record pending task %s: %w", resp.TaskID, err)
	}
	logger.Info().
		Str("task_id", resp.TaskID).
		Int("memory_id", memoryID).
		Str("state", string(resp.State)).
		Msg("generation task created")

	if req.OnSubmitted != nil {
		req.OnSubmitted(memoryID)
	}

	return c.poll(ctx, req.UserID, req.GroupID, resp.TaskID, memoryID)
}

// Lookup returns the memory entry with the given per-user id.
func (c *Controller) Lookup(ctx context.Context, userID, groupID int64, memoryID int) (*models.Memory, error) {
	m, err := c.store.GetMemoryByID(ctx, userID, groupID, memoryID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrMemoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load memory %d: %w", memoryID, err)
	}
	return m, nil
}

// Resume reports a stored entry. A successful entry is returned without
// contacting the render service, a pending one is polled again with the
// full budget, and any other entry is returned as stored.
func (c *Controller) Resume(ctx context.Context, userID, groupID int64, memoryID int) (*Result, error) {
	m, err := c.Lookup(ctx, userID, groupID, memoryID)
	if err != nil {
		return nil, err
	}

	if m.Status == models.StatusPending {
		res, err := c.poll(ctx, userID, groupID, m.TaskID, memoryID)
		if res != nil {
			res.Entry = m
		}
		return res, err
	}

	return &Result{
		MemoryID: memoryID,
		TaskID:   m.TaskID,
		VideoURL: m.VideoURL,
		Status:   m.Status,
		Entry:    m,
	}, nil
}

func (c *Controller) poll(ctx context.Context, userID, groupID int64, taskID string, memoryID int) (*Result, error) {
	logger := zerolog.Ctx(ctx).With().Str("task_id", taskID).Int("memory_id", memoryID).Logger()
	attempts := c.cfg.Poll.Attempts()

	for i := 1; i <= attempts; i++ {
		status, err := c.renderer.Status(ctx, taskID)
		if err != nil {
			metrics.PollAttempts.Observe(float64(i))
			return nil, &PollError{MemoryID: memoryID, TaskID: taskID, Err: err}
		}
		logger.Debug().Int("attempt", i).Str("state", string(status.State)).Msg("polled task")

		switch status.State {
		case render.StateSuccess:
			metrics.PollAttempts.Observe(float64(i))
			url := status.FirstURL()
			if url == "" {
				metrics.Generations.WithLabelValues("empty").Inc()
				logger.Warn().Msg("task succeeded without creations")
				return nil, ErrEmptyResult
			}
			if err := c.store.RecordSuccess(ctx, userID, groupID, taskID, url); err != nil {
				return nil, fmt.Errorf("record success for task %s: %w", taskID, err)
			}
			metrics.Generations.WithLabelValues("success").Inc()
			logger.Info().Msg("generation succeeded")
			return &Result{MemoryID: memoryID, TaskID: taskID, VideoURL: url, Status: models.StatusSuccess}, nil

		case render.StateFailed:
			metrics.PollAttempts.Observe(float64(i))
			metrics.Generations.WithLabelValues("failed").Inc()
			logger.Warn().Str("err_code", status.ErrCode).Msg("generation failed")
			failed := ErrGenerationFailed
			if status.ErrCode != "" {
				failed = fmt.Errorf("%w: %s", ErrGenerationFailed, status.ErrCode)
			}
			if err := c.store.UpdateMemory(ctx, userID, groupID, taskID, "", models.StatusFailed); err != nil {
				logger.Error().Err(err).Msg("mark memory failed")
				return nil, errors.Join(failed, fmt.Errorf("mark memory %d failed: %w", memoryID, err))
			}
			return nil, failed
		}

		if i < attempts {
			if err := c.cfg.Poll.sleep(ctx); err != nil {
				metrics.PollAttempts.Observe(float64(i))
				return nil, err
			}
		}
	}

	metrics.PollAttempts.Observe(float64(attempts))
	metrics.Generations.WithLabelValues("timeout").Inc()
	logger.Info().Msg("poll budget exhausted; task left pending")
	return nil, &TimeoutError{MemoryID: memoryID, TaskID: taskID}
}

func (c *Controller) buildPrompt(ctx context.Context, prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if c.refiner != nil {
		refined, err := c.refiner.RefinePrompt(ctx, prompt)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("prompt refinement failed; using original prompt")
		} else if refined = strings.TrimSpace(refined); refined != "" {
			prompt = refined
		}
	}
	if c.cfg.EndingPrompt == "" {
		return prompt
	}
	return prompt + ", " + c.cfg.EndingPrompt
}

func (c *Controller) embed(ctx context.Context, prompt string) *pgvector.Vector {
	if c.embedder == nil {
		return nil
	}
	vec, err := c.embedder.Embed(ctx, prompt)
	if err != nil || len(vec) == 0 {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("prompt embedding skipped")
		return nil
	}
	v := pgvector.NewVector(vec)
	return &v
}

// SplitReferences splits a stored reference into image urls. Urls may be
// separated by commas or whitespace.
func SplitReferences(refs string) []string {
	return strings.FieldsFunc(refs, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}
