package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "campuswatch/internal/errors"
	"campuswatch/internal/models"
	"campuswatch/internal/ratelimit"
)

// stubProvider is an instrumented provider for failover-order tests.
type stubProvider struct {
	name    string
	calls   int
	failErr error
	text    string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) GenerateContent(ctx context.Context, prompt string, opts Options) (*Result, error) {
	s.calls++
	if s.failErr != nil {
		return nil, s.failErr
	}
	return &Result{Text: s.text, Provider: s.name, Usage: Usage{TotalTokens: 10, CostUSD: 0.001}}, nil
}

func (s *stubProvider) GenerateStructuredContent(ctx context.Context, prompt string, schema json.RawMessage, opts Options) (*StructuredResult, error) {
	s.calls++
	if s.failErr != nil {
		return nil, s.failErr
	}
	return &StructuredResult{
		Data:     json.RawMessage(`{"from":"` + s.name + `"}`),
		Provider: s.name,
	}, nil
}

func (s *stubProvider) GenerateContentStream(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, <-chan error) {
	chunks := make(chan StreamChunk, 1)
	errs := make(chan error, 1)
	s.calls++
	go func() {
		defer close(chunks)
		defer close(errs)
		if s.failErr != nil {
			errs <- s.failErr
			return
		}
		chunks <- StreamChunk{Delta: s.text, FinishReason: "stop"}
	}()
	return chunks, errs
}

// stubGate is a Limiter with a fixed verdict.
type stubGate struct {
	allowed  bool
	reason   string
	recorded int
}

func (g *stubGate) CanProceed(estimatedTokens int, estimatedCost float64) ratelimit.Decision {
	return ratelimit.Decision{Allowed: g.allowed, Reason: g.reason}
}

func (g *stubGate) Record(actualTokens int, actualCost float64) { g.recorded++ }

func newTestSelector(opts ...SelectorOption) *Selector {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewSelector(logger, opts)
}

func TestSelectorFirstProviderWins(t *testing.T) {
	first := &stubProvider{name: "openai", text: "from-first"}
	second := &stubProvider{name: "anthropic", text: "from-second"}

	s := newTestSelector(
		SelectorOption{Provider: first},
		SelectorOption{Provider: second},
	)

	result, err := s.GenerateContent(context.Background(), "hi", Options{})
	require.NoError(t, err)
	assert.Equal(t, "from-first", result.Text)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls)
}

func TestSelectorFailsOverInPriorityOrder(t *testing.T) {
	first := &stubProvider{name: "openai", failErr: apperrors.New(apperrors.ErrCodeProviderAuth, "bad key")}
	second := &stubProvider{name: "anthropic", failErr: apperrors.New(apperrors.ErrCodeProviderServer, "down")}
	third := &stubProvider{name: "google", text: "from-third"}

	s := newTestSelector(
		SelectorOption{Provider: first},
		SelectorOption{Provider: second},
		SelectorOption{Provider: third},
	)

	result, err := s.GenerateContent(context.Background(), "hi", Options{})
	require.NoError(t, err)
	assert.Equal(t, "from-third", result.Text)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 1, third.calls)
}

func TestSelectorSkipsRateLimitedProvider(t *testing.T) {
	first := &stubProvider{name: "openai", text: "never"}
	second := &stubProvider{name: "anthropic", text: "from-second"}

	s := newTestSelector(
		SelectorOption{Provider: first, Limiter: &stubGate{allowed: false, reason: "cost per hour limit would be exceeded"}},
		SelectorOption{Provider: second, Limiter: &stubGate{allowed: true}},
	)

	result, err := s.GenerateContent(context.Background(), "hi", Options{})
	require.NoError(t, err)
	assert.Equal(t, "from-second", result.Text)
	assert.Equal(t, 0, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestSelectorRecordsUsageOnSuccess(t *testing.T) {
	gate := &stubGate{allowed: true}
	p := &stubProvider{name: "openai", text: "ok"}

	s := newTestSelector(SelectorOption{Provider: p, Limiter: gate})

	_, err := s.GenerateContent(context.Background(), "hi", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, gate.recorded)
}

func TestSelectorExhaustion(t *testing.T) {
	first := &stubProvider{name: "openai", failErr: errors.New("boom")}
	second := &stubProvider{name: "anthropic", failErr: errors.New("also boom")}

	s := newTestSelector(
		SelectorOption{Provider: first},
		SelectorOption{Provider: second},
	)

	_, err := s.GenerateContent(context.Background(), "hi", Options{})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeProviderExhausted, apperrors.GetCode(err))
}

func TestSelectorMockNeverFails(t *testing.T) {
	failing := &stubProvider{name: "openai", failErr: errors.New("down")}

	s := newTestSelector(
		SelectorOption{Provider: failing},
		SelectorOption{Provider: NewMockProvider()},
	)

	res, err := s.GenerateStructuredContent(context.Background(), "the tap is broken in classroom 4B", nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, MockProviderName, res.Provider)

	var parsed map[string]string
	require.NoError(t, json.Unmarshal(res.Data, &parsed))
	assert.Equal(t, "maintenance", parsed["category_id"])
	assert.Contains(t, parsed["location"], "classroom")
}

func TestSelectorHealthSnapshot(t *testing.T) {
	good := &stubProvider{name: "openai", text: "ok"}
	bad := &stubProvider{name: "anthropic", failErr: errors.New("down")}

	s := newTestSelector(
		SelectorOption{Provider: bad},
		SelectorOption{Provider: good},
	)

	_, err := s.GenerateContent(context.Background(), "hi", Options{})
	require.NoError(t, err)

	health := s.Health()
	require.Len(t, health, 2)
	assert.Equal(t, "anthropic", health[0].Name)
	assert.Equal(t, uint64(1), health[0].TotalFailures)
	assert.Equal(t, "openai", health[1].Name)
	assert.Equal(t, uint64(1), health[1].TotalRequests)
	assert.Equal(t, uint64(0), health[1].TotalFailures)
}

func TestSelectorStreamFallsThroughRateLimit(t *testing.T) {
	first := &stubProvider{name: "openai", text: "never"}
	second := &stubProvider{name: "anthropic", text: "streamed"}

	s := newTestSelector(
		SelectorOption{Provider: first, Limiter: &stubGate{allowed: false, reason: "tokens per minute limit would be exceeded"}},
		SelectorOption{Provider: second, Limiter: &stubGate{allowed: true}},
	)

	chunks, errs := s.GenerateContentStream(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{})

	var text string
	for chunk := range chunks {
		text += chunk.Delta
	}
	assert.NoError(t, <-errs)
	assert.Equal(t, "streamed", text)
	assert.Equal(t, 0, first.calls)
}

func TestMockProviderDeterministic(t *testing.T) {
	p := NewMockProvider()

	a, err := p.GenerateStructuredContent(context.Background(), "fight broke out on the playground", nil, Options{})
	require.NoError(t, err)
	b, err := p.GenerateStructuredContent(context.Background(), "fight broke out on the playground", nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, string(a.Data), string(b.Data))
	assert.Equal(t, MockProviderName, a.Provider)

	var parsed map[string]string
	require.NoError(t, json.Unmarshal(a.Data, &parsed))
	assert.Equal(t, "discipline", parsed["category_id"])
}

func TestMockClassifyTruncatesOnRuneBoundary(t *testing.T) {
	text := strings.Repeat("é", 40)
	parsed := mockClassify(text)
	assert.True(t, utf8.ValidString(parsed["subcategory"]))
	assert.Equal(t, strings.Repeat("é", 35), parsed["subcategory"])
}

var _ Provider = (*Selector)(nil)
var _ Provider = (*MockProvider)(nil)
var _ Provider = (*OpenAIProvider)(nil)
var _ Provider = (*AnthropicProvider)(nil)
var _ Provider = (*GoogleProvider)(nil)
var _ Limiter = (*stubGate)(nil)
var _ Limiter = (*ratelimit.Limiter)(nil)

func TestProviderConstructorsApplyDefaults(t *testing.T) {
	p := NewOpenAIProvider(models.ProviderConfig{APIKey: "k", Model: "m"})
	assert.Equal(t, defaultOpenAIBaseURL, p.baseURL)

	a := NewAnthropicProvider(models.ProviderConfig{APIKey: "k", Model: "m"})
	assert.Equal(t, defaultAnthropicBaseURL, a.baseURL)

	g := NewGoogleProvider(models.ProviderConfig{APIKey: "k", Model: "m"})
	assert.Equal(t, defaultGoogleBaseURL, g.baseURL)
}
