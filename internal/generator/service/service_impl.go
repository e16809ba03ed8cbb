package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zarver/zarver/internal/config"
	"github.com/zarver/zarver/internal/generator/domain"
	"github.com/zarver/zarver/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	targetAlternatives  = 4
	maxCompletionTokens = 256

	// Cleaned lines at or below this rune count are treated as numbering
	// leftovers, not alternatives.
	minAlternativeRunes = 4
)

// padAlternatives tops up thin provider replies so the stored list always
// reaches the target count.
var padAlternatives = []string{
	"Biraz daha düşün",
	"Arkadaşlarına danış",
	"Başka seçenekleri araştır",
	"Kalbin ne diyor dinle",
}

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Policy  *config.DecisionPolicyHolder
	Metrics *metrics.Metrics `optional:"true"`
	Client  ChatClient       `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	policy  *config.DecisionPolicyHolder
	metrics *metrics.Metrics
	client  ChatClient
	model   string
}

func New(p Params) domain.Service {
	s := &Service{
		log:     p.Log.Named("generator.service"),
		policy:  p.Policy,
		metrics: p.Metrics,
		client:  p.Client,
		model:   p.Cfg.Generator.Model,
	}
	if s.client == nil && p.Cfg.Generator.APIKey != "" {
		s.client = &OpenAIClient{
			APIKey:      p.Cfg.Generator.APIKey,
			BaseURL:     p.Cfg.Generator.BaseURL,
			Timeout:     p.Cfg.Generator.Timeout,
			Temperature: p.Cfg.Generator.Temperature,
		}
	}
	return s
}

func (s *Service) Generate(ctx context.Context, text string) ([]string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, domain.ErrInvalidText
	}

	policy := s.policy.Get()
	if s.client == nil {
		s.degrade(ctx, "provider_disabled", nil)
		return fallbackAlternatives(policy), nil
	}

	start := time.Now()
	raw, err := s.client.ChatCompletion(ctx, s.model, policy.GenerationPrompt, "Bu kararsızlık durumu için 4 farklı alternatif üret: "+trimmed, maxCompletionTokens)
	if err != nil {
		metrics.Decision().ObserveGeneratorDuration(metrics.GeneratorOutcomeFallback, time.Since(start))
		s.degrade(ctx, "provider_error", err)
		return fallbackAlternatives(policy), nil
	}

	alternatives := parseAlternatives(raw)
	if len(alternatives) == 0 {
		metrics.Decision().ObserveGeneratorDuration(metrics.GeneratorOutcomeFallback, time.Since(start))
		s.degrade(ctx, "unparseable_response", nil)
		return fallbackAlternatives(policy), nil
	}

	metrics.Decision().IncGeneratorRequest(metrics.GeneratorOutcomeOK)
	metrics.Decision().ObserveGeneratorDuration(metrics.GeneratorOutcomeOK, time.Since(start))
	return padToTarget(alternatives), nil
}

func (s *Service) degrade(ctx context.Context, reason string, err error) {
	metrics.Decision().IncGeneratorRequest(metrics.GeneratorOutcomeFallback)
	s.metrics.RecordGeneratorFallback(ctx, reason)

	fields := []zap.Field{zap.String("reason", reason)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	s.log.Warn("generator degraded to fallback", fields...)
}

// parseAlternatives splits the provider reply into lines, strips list
// numbering and keeps lines long enough to be real suggestions.
func parseAlternatives(raw string) []string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, targetAlternatives)
	for _, line := range lines {
		cleaned := strings.TrimSpace(line)
		cleaned = strings.TrimLeft(cleaned, "0123456789.-*) ")
		cleaned = strings.TrimSpace(cleaned)
		if utf8.RuneCountInString(cleaned) >= minAlternativeRunes {
			out = append(out, cleaned)
		}
	}
	return out
}

func padToTarget(alternatives []string) []string {
	for _, pad := range padAlternatives {
		if len(alternatives) >= targetAlternatives {
			break
		}
		alternatives = append(alternatives, pad)
	}
	if len(alternatives) > targetAlternatives {
		alternatives = alternatives[:targetAlternatives]
	}
	return alternatives
}

func fallbackAlternatives(policy config.DecisionPolicy) []string {
	out := make([]string, len(policy.FallbackAlternatives))
	copy(out, policy.FallbackAlternatives)
	return out
}
