package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DecisionPolicy carries the product knobs for the decision lifecycle. It is
// loaded from decision_policy.yml and hot-reloaded on change.
type DecisionPolicy struct {
	DailyFreeLimit       int      `mapstructure:"dailyFreeLimit"`
	MaxTextLength        int      `mapstructure:"maxTextLength"`
	FallbackAlternatives []string `mapstructure:"fallbackAlternatives"`
	GenerationPrompt     string   `mapstructure:"generationPrompt"`
	FeedPageSize         int      `mapstructure:"feedPageSize"`
}

func DefaultDecisionPolicy() DecisionPolicy {
	return DecisionPolicy{
		DailyFreeLimit: 3,
		MaxTextLength:  500,
		FallbackAlternatives: []string{
			"İlk seçeneğini dene",
			"Alternatif bir yol bul",
			"Biraz bekle ve düşün",
			"Cesaretini topla ve karar ver",
		},
		GenerationPrompt: "Sen bir karar danışmanısın. Kullanıcının kararsızlık yaşadığı durumlar için " +
			"4 adet pratik, akılcı ve farklı alternatif üretmelisin.\n\n" +
			"KURALLARIN:\n" +
			"1. Tam olarak 4 alternatif üret\n" +
			"2. Her alternatif kısa ve net olsun (max 15 kelime)\n" +
			"3. Alternatifler birbirinden farklı yaklaşımlar olsun\n" +
			"4. Türkçe dilinde yanıtla\n" +
			"5. Sadece alternatifleri listele, başka açıklama yapma\n" +
			"6. Her alternatifi yeni satırda yaz\n" +
			"7. Numaralandırma yapma, sadece alternatifleri yaz",
		FeedPageSize: 20,
	}
}

type DecisionPolicyHolder struct {
	current atomic.Value // holds DecisionPolicy
}

// NewDecisionPolicyHolderFrom wraps a fixed policy, used by tests.
func NewDecisionPolicyHolderFrom(policy DecisionPolicy) *DecisionPolicyHolder {
	holder := &DecisionPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewDecisionPolicyHolder() (*DecisionPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("decision_policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/zarver/config") // Volume-mounted config
	v.AddConfigPath("/etc/zarver")            // System config
	v.AddConfigPath(".")                      // Current directory (dev mode)

	// env hanya untuk path override (optional)
	v.SetEnvPrefix("ZARVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// if config file not found, use defaults
		defaults := DefaultDecisionPolicy()
		v.SetDefault("decision.dailyFreeLimit", defaults.DailyFreeLimit)
		v.SetDefault("decision.maxTextLength", defaults.MaxTextLength)
		v.SetDefault("decision.fallbackAlternatives", defaults.FallbackAlternatives)
		v.SetDefault("decision.generationPrompt", defaults.GenerationPrompt)
		v.SetDefault("decision.feedPageSize", defaults.FeedPageSize)
	}

	var policy DecisionPolicy
	if err := v.UnmarshalKey("decision", &policy); err != nil {
		return nil, err
	}
	if err := validateDecisionPolicy(policy); err != nil {
		return nil, err
	}

	holder := &DecisionPolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated DecisionPolicy
		if err := v.UnmarshalKey("decision", &updated); err != nil {
			log.Printf("[decision-policy] reload failed: %v", err)
			return
		}
		if err := validateDecisionPolicy(updated); err != nil {
			log.Printf("[decision-policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[decision-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *DecisionPolicyHolder) Get() DecisionPolicy {
	return h.current.Load().(DecisionPolicy)
}

func validateDecisionPolicy(policy DecisionPolicy) error {
	if policy.DailyFreeLimit < 1 {
		return errors.New("decision.dailyFreeLimit must be at least 1")
	}
	if policy.MaxTextLength < 1 {
		return errors.New("decision.maxTextLength must be at least 1")
	}
	if len(policy.FallbackAlternatives) < 2 || len(policy.FallbackAlternatives) > 6 {
		return fmt.Errorf("decision.fallbackAlternatives must hold 2 to 6 entries, got %d", len(policy.FallbackAlternatives))
	}
	for i, alt := range policy.FallbackAlternatives {
		if strings.TrimSpace(alt) == "" {
			return fmt.Errorf("decision.fallbackAlternatives[%d] is blank", i)
		}
	}
	if policy.FeedPageSize < 1 {
		return errors.New("decision.feedPageSize must be at least 1")
	}
	return nil
}
