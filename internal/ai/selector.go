package ai

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"campuswatch/internal/constants"
	apperrors "campuswatch/internal/errors"
	"campuswatch/internal/metrics"
	"campuswatch/internal/models"
	"campuswatch/internal/ratelimit"
	"campuswatch/pkg/circuitbreaker"
)

// providerEntry couples one provider with its own admission controls and
// running statistics. Each vendor gets an independent circuit breaker and
// rate limiter so one vendor's outage or budget exhaustion never blocks the
// others.
type providerEntry struct {
	provider    Provider
	breaker     *circuitbreaker.CircuitBreaker
	limiter     Limiter
	inputPer1K  float64
	outputPer1K float64

	mu               sync.Mutex
	totalRequests    uint64
	totalFailures    uint64
	consecutiveFails uint64
	lastSuccess      time.Time
	lastFailure      time.Time
	totalCostUSD     float64
}

// Limiter is the admission gate consulted before each vendor call.
// *ratelimit.Limiter satisfies it; tests substitute stub gates.
type Limiter interface {
	CanProceed(estimatedTokens int, estimatedCost float64) ratelimit.Decision
	Record(actualTokens int, actualCost float64)
}

// Selector walks a priority-ordered provider chain, failing over on any
// per-provider error. It satisfies Provider itself, so callers see a single
// logical provider that is as reliable as the weakest guarantee in the chain
// (the mock provider, which cannot fail).
type Selector struct {
	entries []*providerEntry
	logger  *logrus.Logger
}

// SelectorOption configures provider construction.
type SelectorOption struct {
	Provider Provider
	Config   models.ProviderConfig
	Limiter  Limiter
}

// NewSelector builds the failover chain in the given order.
func NewSelector(logger *logrus.Logger, opts []SelectorOption) *Selector {
	entries := make([]*providerEntry, 0, len(opts))
	for _, opt := range opts {
		entries = append(entries, &providerEntry{
			provider:    opt.Provider,
			breaker:     circuitbreaker.NewWithLogger(opt.Provider.Name(), constants.DefaultBreakerMaxFailures, time.Duration(constants.DefaultBreakerTimeoutSec)*time.Second, logger),
			limiter:     opt.Limiter,
			inputPer1K:  opt.Config.InputCostPer1K,
			outputPer1K: opt.Config.OutputCostPer1K,
		})
	}
	return &Selector{entries: entries, logger: logger}
}

func (s *Selector) Name() string { return "selector" }

func (e *providerEntry) estimate(prompt string, opts Options) (int, float64) {
	promptTokens := estimateTokens(prompt + opts.SystemInstruction)
	completionTokens := opts.MaxTokens
	if completionTokens <= 0 {
		completionTokens = constants.DefaultEstimatedCompletionTokens
	}
	cost := costFor(promptTokens, completionTokens, e.inputPer1K, e.outputPer1K)
	return promptTokens + completionTokens, cost
}

// admit runs the rate-limit gate. A nil limiter (the mock provider) always
// admits.
func (e *providerEntry) admit(tokens int, cost float64) ratelimit.Decision {
	if e.limiter == nil {
		return ratelimit.Decision{Allowed: true}
	}
	return e.limiter.CanProceed(tokens, cost)
}

func (e *providerEntry) recordSuccess(usage Usage) {
	if e.limiter != nil {
		e.limiter.Record(usage.TotalTokens, usage.CostUSD)
	}
	e.mu.Lock()
	e.totalRequests++
	e.consecutiveFails = 0
	e.lastSuccess = time.Now()
	e.totalCostUSD += usage.CostUSD
	e.mu.Unlock()
}

func (e *providerEntry) recordFailure() {
	e.mu.Lock()
	e.totalRequests++
	e.totalFailures++
	e.consecutiveFails++
	e.lastFailure = time.Now()
	e.mu.Unlock()
}

// GenerateContent tries each provider in priority order until one succeeds.
func (s *Selector) GenerateContent(ctx context.Context, prompt string, opts Options) (*Result, error) {
	var result *Result
	err := s.execute(ctx, prompt, opts, func(ctx context.Context, p Provider) (Usage, error) {
		r, err := p.GenerateContent(ctx, prompt, opts)
		if err != nil {
			return Usage{}, err
		}
		result = r
		return r.Usage, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GenerateStructuredContent tries each provider in priority order. The result
// names the provider that served it.
func (s *Selector) GenerateStructuredContent(ctx context.Context, prompt string, schema json.RawMessage, opts Options) (*StructuredResult, error) {
	var result *StructuredResult
	err := s.execute(ctx, prompt, opts, func(ctx context.Context, p Provider) (Usage, error) {
		r, err := p.GenerateStructuredContent(ctx, prompt, schema, opts)
		if err != nil {
			return Usage{}, err
		}
		result = r
		// Structured calls do not surface vendor usage; charge the
		// pre-flight estimate so budgets still move.
		return Usage{TotalTokens: estimateTokens(prompt) + estimateTokens(string(r.Data))}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GenerateContentStream picks the first admissible provider and streams from
// it. Streaming does not fail over mid-stream; a provider that errors before
// the first chunk is skipped.
func (s *Selector) GenerateContentStream(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, <-chan error) {
	var prompt string
	if len(messages) > 0 {
		prompt = messages[len(messages)-1].Content
	}

	for _, entry := range s.entries {
		tokens, cost := entry.estimate(prompt, opts)
		if decision := entry.admit(tokens, cost); !decision.Allowed {
			s.logger.WithFields(logrus.Fields{
				"provider": entry.provider.Name(),
				"reason":   decision.Reason,
			}).Debug("Skipping provider for stream, rate limited")
			continue
		}
		if entry.breaker.GetState() == circuitbreaker.StateOpen {
			continue
		}
		return s.wrapStream(ctx, entry, messages, opts)
	}

	chunks := make(chan StreamChunk)
	errs := make(chan error, 1)
	close(chunks)
	errs <- apperrors.New(apperrors.ErrCodeProviderExhausted, "no provider available for streaming")
	close(errs)
	return chunks, errs
}

// wrapStream relays the provider's stream while folding outcomes back into
// the breaker and usage accounting.
func (s *Selector) wrapStream(ctx context.Context, entry *providerEntry, messages []Message, opts Options) (<-chan StreamChunk, <-chan error) {
	outChunks := make(chan StreamChunk, constants.StreamChunkBufferSize)
	outErrs := make(chan error, 1)

	inChunks, inErrs := entry.provider.GenerateContentStream(ctx, messages, opts)

	go func() {
		defer close(outChunks)
		defer close(outErrs)

		var usage Usage
		failed := false
		for chunk := range inChunks {
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
			select {
			case outChunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err, ok := <-inErrs; ok && err != nil {
			failed = true
			entry.recordFailure()
			outErrs <- err
		}
		if !failed {
			entry.recordSuccess(usage)
		}
	}()

	return outChunks, outErrs
}

type attempt func(ctx context.Context, p Provider) (Usage, error)

// execute is the core failover loop: admission gate, circuit breaker, and
// statistics around each attempt, moving to the next provider on any error.
func (s *Selector) execute(ctx context.Context, prompt string, opts Options, fn attempt) error {
	var lastErr error

	for _, entry := range s.entries {
		name := entry.provider.Name()

		tokens, cost := entry.estimate(prompt, opts)
		if decision := entry.admit(tokens, cost); !decision.Allowed {
			s.logger.WithFields(logrus.Fields{
				"provider":    name,
				"reason":      decision.Reason,
				"retry_after": decision.RetryAfter.String(),
			}).Info("Provider rate limited, trying next")
			metrics.IncrementCounter("ai_provider_rate_limited", map[string]string{"provider": name}, "Provider calls skipped by rate limiting")
			lastErr = apperrors.New(apperrors.ErrCodeRateLimit, decision.Reason).WithRetryAfter(decision.RetryAfter)
			continue
		}

		var usage Usage
		start := time.Now()
		err := entry.breaker.Execute(ctx, func(ctx context.Context) error {
			u, err := fn(ctx, entry.provider)
			if err != nil {
				return err
			}
			usage = u
			return nil
		})
		metrics.RecordTimer("ai_provider_call", time.Since(start), map[string]string{"provider": name}, "AI provider call duration")

		if err == nil {
			entry.recordSuccess(usage)
			metrics.IncrementCounter("ai_provider_success", map[string]string{"provider": name}, "Successful AI provider calls")
			return nil
		}

		if !circuitbreaker.IsCircuitBreakerError(err) {
			entry.recordFailure()
		}
		metrics.IncrementCounter("ai_provider_failure", map[string]string{
			"provider": name,
			"code":     string(apperrors.GetCode(err)),
		}, "Failed AI provider calls")
		s.logger.WithFields(logrus.Fields{
			"provider": name,
			"error":    err.Error(),
		}).Warn("Provider call failed, trying next")
		lastErr = err
	}

	if lastErr == nil {
		lastErr = apperrors.New(apperrors.ErrCodeProviderExhausted, "no providers configured")
	}
	return apperrors.Wrap(lastErr, apperrors.ErrCodeProviderExhausted, "all providers failed")
}

// Health reports a snapshot of every provider in the chain.
func (s *Selector) Health() []ProviderHealth {
	out := make([]ProviderHealth, 0, len(s.entries))
	for _, entry := range s.entries {
		entry.mu.Lock()
		state := entry.breaker.GetState()
		out = append(out, ProviderHealth{
			Name:             entry.provider.Name(),
			Available:        state != circuitbreaker.StateOpen,
			CircuitState:     state.String(),
			TotalRequests:    entry.totalRequests,
			TotalFailures:    entry.totalFailures,
			ConsecutiveFails: entry.consecutiveFails,
			LastSuccess:      entry.lastSuccess,
			LastFailure:      entry.lastFailure,
			TotalCostUSD:     entry.totalCostUSD,
		})
		entry.mu.Unlock()
	}
	return out
}
