package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// QuotaPolicy is the charge policy consumed by the quota ledger: daily
// limit, per-category cost table, cooldown window and OCC retry bound.
type QuotaPolicy struct {
	DailyLimit    int            `mapstructure:"dailyLimit"`
	Cooldown      time.Duration  `mapstructure:"cooldown"`
	RetryAttempts int            `mapstructure:"retryAttempts"`
	Costs         map[string]int `mapstructure:"costs"`
}

// ErrUnknownCategory reports a category missing from the cost table. This is
// a configuration error, not a runtime condition the ledger recovers from.
var ErrUnknownCategory = errors.New("unknown request category")

// CostOf returns the integer cost for a request category.
func (p QuotaPolicy) CostOf(category string) (int, error) {
	cost, ok := p.Costs[strings.TrimSpace(category)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return cost, nil
}

func DefaultQuotaPolicy() QuotaPolicy {
	return QuotaPolicy{
		DailyLimit:    5,
		Cooldown:      30 * time.Second,
		RetryAttempts: 2,
		Costs: map[string]int{
			"normal":   1,
			"research": 2,
			"onchain":  3,
		},
	}
}

// QuotaPolicyHolder serves the current policy to concurrent readers and
// swaps it atomically on config file reloads.
type QuotaPolicyHolder struct {
	current atomic.Value // holds QuotaPolicy
}

func NewQuotaPolicyHolder() (*QuotaPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("quota")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/vylin/config")
	v.AddConfigPath("/etc/vylin")
	v.AddConfigPath(".")

	v.SetEnvPrefix("VYLIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultQuotaPolicy()
		v.SetDefault("quota.dailyLimit", defaults.DailyLimit)
		v.SetDefault("quota.cooldown", defaults.Cooldown)
		v.SetDefault("quota.retryAttempts", defaults.RetryAttempts)
		v.SetDefault("quota.costs", defaults.Costs)
	}

	var policy QuotaPolicy
	if err := v.UnmarshalKey("quota", &policy); err != nil {
		return nil, err
	}
	if err := validateQuotaPolicy(policy); err != nil {
		return nil, err
	}

	holder := &QuotaPolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated QuotaPolicy
		if err := v.UnmarshalKey("quota", &updated); err != nil {
			log.Printf("[quota-config] reload failed: %v", err)
			return
		}
		if err := validateQuotaPolicy(updated); err != nil {
			log.Printf("[quota-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[quota-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *QuotaPolicyHolder) Get() QuotaPolicy {
	return h.current.Load().(QuotaPolicy)
}

// Set replaces the active policy. Intended for tests.
func (h *QuotaPolicyHolder) Set(policy QuotaPolicy) {
	h.current.Store(policy)
}

func validateQuotaPolicy(policy QuotaPolicy) error {
	if policy.DailyLimit <= 0 {
		return errors.New("quota.dailyLimit must be positive")
	}
	if policy.Cooldown < 0 {
		return errors.New("quota.cooldown cannot be negative")
	}
	if policy.RetryAttempts < 1 {
		return errors.New("quota.retryAttempts must be at least 1")
	}
	if len(policy.Costs) == 0 {
		return errors.New("quota.costs cannot be empty")
	}
	for category, cost := range policy.Costs {
		if cost <= 0 {
			return fmt.Errorf("quota.costs[%s] must be positive", category)
		}
	}
	return nil
}
