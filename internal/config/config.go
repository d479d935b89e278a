// Package config loads barterd's configuration from the environment
// (spec.md §6.3). Every recognized key, its default, and its validation
// rule lives here — no operator-facing parameter should be hardcoded
// elsewhere.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything needed to wire a Coordinator, its L1/L2/oracle/
// resolver clients, and the settlement worker.
type Config struct {
	OperatorPrivateKey string

	L1GraphQLEndpoint string
	L1PoolAddress     string

	L2DaemonBaseURL string
	L2BasePort      int
	L2PortRange     int
	L2OperatorToken string

	ResolverURL string
	ResolverKey string

	OracleURL        string
	OracleKey        string
	OracleSlippageBp int
	OracleTTL        time.Duration

	PollInterval        time.Duration
	SettlementInterval  time.Duration
	SettlementMinAction int

	LogLevel string
}

// LoadFromEnv reads Config from the process environment, applying the
// defaults spec.md §6.3 names, then validates the result.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		L2DaemonBaseURL:     "http://127.0.0.1",
		L2BasePort:          40000,
		L2PortRange:         1000,
		PollInterval:        15 * time.Second,
		SettlementInterval:  60 * time.Second,
		SettlementMinAction: 1,
		LogLevel:            "info",
	}

	cfg.OperatorPrivateKey = os.Getenv("OPERATOR_PRIVATE_KEY")
	cfg.L1GraphQLEndpoint = os.Getenv("L1_GRAPHQL_ENDPOINT")
	cfg.L1PoolAddress = os.Getenv("L1_POOL_ADDRESS")
	cfg.L2OperatorToken = os.Getenv("L2_OPERATOR_TOKEN")
	cfg.ResolverURL = os.Getenv("RESOLVER_URL")
	cfg.ResolverKey = os.Getenv("RESOLVER_KEY")
	cfg.OracleURL = os.Getenv("ORACLE_URL")
	cfg.OracleKey = os.Getenv("ORACLE_KEY")

	if v := os.Getenv("L2_DAEMON_BASE_URL"); v != "" {
		cfg.L2DaemonBaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if err := setIntFromEnv("L2_BASE_PORT", &cfg.L2BasePort); err != nil {
		return nil, err
	}
	if err := setIntFromEnv("L2_PORT_RANGE", &cfg.L2PortRange); err != nil {
		return nil, err
	}
	if err := setIntFromEnv("ORACLE_SLIPPAGE_BPS", &cfg.OracleSlippageBp); err != nil {
		return nil, err
	}
	if err := setIntFromEnv("SETTLEMENT_MIN_ACTIONS", &cfg.SettlementMinAction); err != nil {
		return nil, err
	}

	if err := setMillisFromEnv("ORACLE_TTL_MS", &cfg.OracleTTL); err != nil {
		return nil, err
	}
	if err := setMillisFromEnv("POLL_INTERVAL_MS", &cfg.PollInterval); err != nil {
		return nil, err
	}
	if err := setMillisFromEnv("SETTLEMENT_INTERVAL_MS", &cfg.SettlementInterval); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setIntFromEnv(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setMillisFromEnv(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = time.Duration(n) * time.Millisecond
	return nil
}

// Validate enforces spec.md §6.3's required keys.
func (c *Config) Validate() error {
	required := map[string]string{
		"OPERATOR_PRIVATE_KEY": c.OperatorPrivateKey,
		"L1_GRAPHQL_ENDPOINT":  c.L1GraphQLEndpoint,
		"L1_POOL_ADDRESS":      c.L1PoolAddress,
		"L2_OPERATOR_TOKEN":    c.L2OperatorToken,
		"RESOLVER_URL":         c.ResolverURL,
		"RESOLVER_KEY":         c.ResolverKey,
	}
	for key, v := range required {
		if v == "" {
			return fmt.Errorf("config: %s is required", key)
		}
	}
	if c.L2PortRange <= 0 {
		return fmt.Errorf("config: L2_PORT_RANGE must be positive")
	}
	if c.SettlementMinAction <= 0 {
		return fmt.Errorf("config: SETTLEMENT_MIN_ACTIONS must be positive")
	}
	return nil
}

// String renders a log-safe summary, omitting secrets.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{L1:%s Pool:%s L2Base:%s PortRange:[%d,%d) Resolver:%s Oracle:%s Poll:%s Settlement:%s/%d LogLevel:%s}",
		c.L1GraphQLEndpoint, c.L1PoolAddress, c.L2DaemonBaseURL, c.L2BasePort, c.L2BasePort+c.L2PortRange,
		c.ResolverURL, c.OracleURL, c.PollInterval, c.SettlementInterval, c.SettlementMinAction, c.LogLevel,
	)
}
