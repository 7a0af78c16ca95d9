// Package engine orchestrates the execution pipeline: route a request to a
// model, normalize and validate the model's output, retry and fall back
// across the configured chain, run the matching skill, and finalize a
// receipt. Every path through the executor ends in exactly one receipt;
// callers never see an error where an audit record should be.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/atlas/events"
	"github.com/c360studio/atlas/intent"
	"github.com/c360studio/atlas/llm"
	"github.com/c360studio/atlas/metrics"
	"github.com/c360studio/atlas/receipt"
	"github.com/c360studio/atlas/routing"
	"github.com/c360studio/atlas/skills"
	"github.com/c360studio/atlas/storage"
	"github.com/c360studio/atlas/tools"
)

// classificationTemperature keeps intent classification near-deterministic.
const classificationTemperature = 0.3

// Executor runs user requests through the reliability pipeline.
type Executor struct {
	providers *llm.Registry
	fallback  *routing.Manager
	skills    *skills.Registry
	tools     *tools.Registry
	store     *storage.ReceiptStore
	metrics   *metrics.Metrics
	events    events.Publisher
	logger    *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithSkills attaches the skill registry. Without one, execution stops
// after classification.
func WithSkills(r *skills.Registry) Option {
	return func(e *Executor) { e.skills = r }
}

// WithTools attaches the tool registry used by skills, undo, and resume.
func WithTools(r *tools.Registry) Option {
	return func(e *Executor) { e.tools = r }
}

// WithStore attaches the receipt store. Without one, receipts are returned
// but not persisted.
func WithStore(s *storage.ReceiptStore) Option {
	return func(e *Executor) { e.store = s }
}

// WithMetrics attaches the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithEvents attaches the event publisher for persisted receipts.
func WithEvents(p events.Publisher) Option {
	return func(e *Executor) {
		if p != nil {
			e.events = p
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an executor over the given provider registry and fallback
// manager. A nil fallback manager gets the default chain table.
func New(providers *llm.Registry, fallback *routing.Manager, opts ...Option) *Executor {
	if providers == nil {
		providers = llm.NewRegistry()
	}
	if fallback == nil {
		fallback = routing.NewManager()
	}

	e := &Executor{
		providers: providers,
		fallback:  fallback,
		events:    events.Noop{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one user request end to end and returns its receipt. The
// receipt is always non-nil and, when a store is attached, always
// persisted: on success, on failure, on cancellation, and on panic.
func (e *Executor) Execute(ctx context.Context, userInput string, profile intent.RoutingProfile, profileID string) *receipt.Receipt {
	rec := receipt.New(userInput, profileID)

	e.logger.Info("execute request",
		"receipt_id", rec.ReceiptID,
		"routing_profile", string(profile))

	func() {
		defer func() {
			if r := recover(); r != nil {
				rec.Status = receipt.StatusFailed
				rec.Errors = append(rec.Errors, fmt.Sprintf("Unexpected error: %v", r))
				e.logger.Error("execution panic recovered",
					"receipt_id", rec.ReceiptID,
					"panic", fmt.Sprint(r))
			}
		}()
		e.run(ctx, rec, profile)
	}()

	e.finalize(ctx, rec)
	return rec
}

// run executes the pipeline body: classification, then skill dispatch.
func (e *Executor) run(ctx context.Context, rec *receipt.Receipt, profile intent.RoutingProfile) {
	in, err := e.classifyIntent(ctx, rec, profile)
	if err != nil {
		// Cancellation is the only error classifyIntent surfaces. The
		// receipt still finalizes; no retry budget was spent on it.
		rec.Status = receipt.StatusFailed
		rec.Errors = append(rec.Errors, "cancelled")
		return
	}
	if in == nil {
		rec.Status = receipt.StatusFailed
		rec.Errors = append(rec.Errors, "Failed to classify intent after all attempts")
		return
	}

	rec.IntentFinal = in

	if e.skills == nil || e.tools == nil {
		rec.Status = receipt.StatusSuccess
		rec.Warnings = append(rec.Warnings, "Skill execution not available")
		return
	}

	skill, ok := e.skills.ForIntent(in.Type)
	if !ok {
		rec.Status = receipt.StatusSuccess
		rec.Warnings = append(rec.Warnings, fmt.Sprintf("No skill registered for intent: %s", in.Type))
		return
	}

	result, err := skill.Execute(ctx, &skills.Context{
		Intent:    in,
		Receipt:   rec,
		Providers: e.providers,
		Tools:     e.tools,
		UserID:    rec.ProfileID,
	})
	if err != nil {
		rec.Status = receipt.StatusFailed
		rec.Errors = append(rec.Errors, fmt.Sprintf("Unexpected error: %v", err))
		return
	}

	e.mergeSkillResult(rec, result)
}

// classifyIntent runs the attempt loop for intent classification. It
// returns nil when the fallback manager gives up, and an error only when
// the request context was cancelled.
func (e *Executor) classifyIntent(ctx context.Context, rec *receipt.Receipt, profile intent.RoutingProfile) (*intent.Intent, error) {
	const job = routing.JobIntentRouting

	ref := e.fallback.FirstModel(profile, job)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		adapter, ok := e.providers.Get(ref.Provider)
		if !ok {
			e.recordAttempt(rec, ref, false, receipt.TriggerProviderDown, 0)
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("Provider '%s' not available", ref.Provider))

			next, cont := e.applyDecision(receipt.TriggerProviderDown, rec, profile, job, ref)
			if !cont {
				return nil, nil
			}
			ref = next
			continue
		}

		repair := rec.AttemptsFor(ref.Provider, ref.Model) > 0
		prompt := buildIntentPrompt(rec.UserInput, repair)

		start := time.Now()
		resp, err := adapter.Complete(ctx, llm.CompletionRequest{
			Messages:    []llm.Message{{Role: "user", Content: prompt}},
			Model:       ref.Model,
			Temperature: classificationTemperature,
			JSONMode:    true,
		})
		latencyMS := time.Since(start).Milliseconds()

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			trigger := classifyTrigger(err)
			e.recordAttempt(rec, ref, false, trigger, latencyMS)
			if llm.IsRateLimit(err) || llm.IsProviderDown(err) {
				rec.Warnings = append(rec.Warnings, fmt.Sprintf("Provider error: %v", err))
			} else {
				rec.Errors = append(rec.Errors, fmt.Sprintf("Unexpected error during classification: %v", err))
			}

			next, cont := e.applyDecision(trigger, rec, profile, job, ref)
			if !cont {
				return nil, nil
			}
			ref = next
			continue
		}

		norm := llm.Normalize(resp.Content)
		if !norm.Success {
			e.recordAttempt(rec, ref, false, receipt.TriggerInvalidJSON, latencyMS)
			if len(norm.RepairsApplied) > 0 {
				rec.Warnings = append(rec.Warnings, fmt.Sprintf("JSON repairs attempted: %v", norm.RepairsApplied))
			}

			next, cont := e.applyDecision(receipt.TriggerInvalidJSON, rec, profile, job, ref)
			if !cont {
				return nil, nil
			}
			ref = next
			continue
		}

		val := intent.ValidateIntent(norm.Data)
		if !val.Valid {
			e.recordAttempt(rec, ref, false, receipt.TriggerValidationError, latencyMS)
			msgs := make([]string, 0, len(val.Errors))
			for _, ve := range val.Errors {
				msgs = append(msgs, fmt.Sprintf("%s: %s", ve.Field, ve.Message))
			}
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("Validation errors: %v", msgs))

			next, cont := e.applyDecision(receipt.TriggerValidationError, rec, profile, job, ref)
			if !cont {
				return nil, nil
			}
			ref = next
			continue
		}

		e.recordAttempt(rec, ref, true, "", latencyMS)
		return val.Intent, nil
	}
}

// recordAttempt appends one model attempt to the receipt and observes it.
func (e *Executor) recordAttempt(rec *receipt.Receipt, ref routing.ModelRef, success bool, trigger receipt.FallbackTrigger, latencyMS int64) {
	attempt := receipt.ModelAttempt{
		Provider:        ref.Provider,
		Model:           ref.Model,
		AttemptNumber:   rec.AttemptsFor(ref.Provider, ref.Model) + 1,
		Success:         success,
		FallbackTrigger: trigger,
		LatencyMS:       latencyMS,
		TimestampUTC:    time.Now().UTC(),
	}
	rec.ModelsAttempted = append(rec.ModelsAttempted, attempt)

	outcome := "success"
	if !success {
		outcome = string(trigger)
	}
	e.metrics.ObserveAttempt(ref.Provider, outcome, float64(latencyMS)/1000)

	e.logger.Debug("model attempt",
		"receipt_id", rec.ReceiptID,
		"provider", ref.Provider,
		"model", ref.Model,
		"attempt", attempt.AttemptNumber,
		"success", success,
		"trigger", string(trigger),
		"latency_ms", latencyMS)
}

// applyDecision asks the fallback manager what to do next. The second
// return is false when the manager says to give up.
func (e *Executor) applyDecision(trigger receipt.FallbackTrigger, rec *receipt.Receipt, profile intent.RoutingProfile, job routing.JobClass, current routing.ModelRef) (routing.ModelRef, bool) {
	decision := e.fallback.Decide(trigger, rec.ModelsAttempted, profile, job)
	e.metrics.ObserveFallbackDecision(string(decision.Action))

	if decision.Action == routing.ActionFail {
		e.logger.Info("classification abandoned",
			"receipt_id", rec.ReceiptID,
			"reason", decision.Reason,
			"attempts", len(rec.ModelsAttempted))
		return routing.ModelRef{}, false
	}

	e.logger.Debug("fallback decision",
		"receipt_id", rec.ReceiptID,
		"action", string(decision.Action),
		"reason", decision.Reason)

	next := current
	if decision.NextProvider != "" {
		next.Provider = decision.NextProvider
	}
	if decision.NextModel != "" {
		next.Model = decision.NextModel
	}
	return next, true
}

// classifyTrigger maps a provider error to its fallback trigger.
func classifyTrigger(err error) receipt.FallbackTrigger {
	switch {
	case llm.IsRateLimit(err):
		return receipt.TriggerRateLimit
	case errors.Is(err, context.DeadlineExceeded):
		return receipt.TriggerTimeout
	default:
		return receipt.TriggerProviderDown
	}
}

// mergeSkillResult folds a skill's outcome into the receipt and derives
// the overall status. A successful skill whose only mutations are held
// for confirmation yields PENDING_CONFIRM; a failed skill yields PARTIAL
// when at least one tool call executed, FAILED otherwise.
func (e *Executor) mergeSkillResult(rec *receipt.Receipt, result *skills.Result) {
	rec.ToolCalls = append(rec.ToolCalls, result.ToolCalls...)
	rec.Changes = append(rec.Changes, result.Changes...)
	rec.Undo = append(rec.Undo, result.UndoSteps...)
	rec.Warnings = append(rec.Warnings, result.Warnings...)
	rec.Errors = append(rec.Errors, result.Errors...)

	for _, call := range result.ToolCalls {
		e.metrics.ObserveToolCall(call.ToolName, call.Status.String())
	}

	switch {
	case result.Success && rec.HasPendingConfirmations() && len(rec.Changes) == 0:
		rec.Status = receipt.StatusPendingConfirm
	case result.Success:
		rec.Status = receipt.StatusSuccess
	case anyCallOK(rec.ToolCalls):
		rec.Status = receipt.StatusPartial
	default:
		rec.Status = receipt.StatusFailed
	}
}

func anyCallOK(calls []receipt.ToolCall) bool {
	for _, c := range calls {
		if c.Status == receipt.CallOK {
			return true
		}
	}
	return false
}

// finalize observes, persists, and announces a finished receipt. The store
// write survives request cancellation: a cancelled request must still
// leave its audit record behind.
func (e *Executor) finalize(ctx context.Context, rec *receipt.Receipt) {
	e.metrics.ObserveReceipt(string(rec.Status))

	if e.store != nil {
		if err := e.store.Create(context.WithoutCancel(ctx), rec); err != nil {
			e.logger.Error("persist receipt",
				"receipt_id", rec.ReceiptID,
				"error", err)
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("Receipt not persisted: %v", err))
		} else {
			e.events.ReceiptCompleted(rec)
		}
	}

	e.logger.Info("receipt finalized",
		"receipt_id", rec.ReceiptID,
		"status", string(rec.Status),
		"attempts", len(rec.ModelsAttempted),
		"tool_calls", len(rec.ToolCalls),
		"changes", len(rec.Changes))
}
