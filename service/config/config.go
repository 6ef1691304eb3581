package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// Network names accepted in SOLANA_NETWORK.
const (
	NetworkDevnet   = "devnet"
	NetworkTestnet  = "testnet"
	NetworkMainnet  = "mainnet"
	NetworkLocalnet = "localnet"
)

// DefaultTokenListURL is the community token list the catalog downloads.
const DefaultTokenListURL = "https://cdn.jsdelivr.net/gh/solana-labs/token-list@main/src/tokens/solana.tokenlist.json"

// DefaultTokenListQuery extracts catalog entries from a token-list document.
const DefaultTokenListQuery = ".tokens[] | {address, name, symbol, logoURI, decimals}"

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// NATS configuration. Empty disables event publishing.
	NATSURL string

	// Solana configuration
	SolanaNetwork string
	SolanaRPCURL  string

	// Wallet configuration. At most one of these is used at startup;
	// the keypair wins when both are set.
	WalletKeypairPath string
	WalletAddress     string

	// Token catalog configuration
	TokenListURL   string
	TokenListQuery string

	// Activity feed configuration
	FeedPageSize      int
	DetailConcurrency int

	// Funds configuration
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
	NoticeDuration      time.Duration
	MaxAirdropSOL       decimal.Decimal
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.NATSURL = os.Getenv("NATS_URL")

	// Solana configuration
	cfg.SolanaNetwork = strings.ToLower(getEnvOrDefault("SOLANA_NETWORK", NetworkDevnet))
	defaultRPC, err := DefaultRPCURL(cfg.SolanaNetwork)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.SolanaRPCURL = getEnvOrDefault("SOLANA_RPC_URL", defaultRPC)

	cfg.WalletKeypairPath = os.Getenv("WALLET_KEYPAIR_PATH")
	cfg.WalletAddress = os.Getenv("WALLET_ADDRESS")

	cfg.TokenListURL = getEnvOrDefault("TOKEN_LIST_URL", DefaultTokenListURL)
	cfg.TokenListQuery = getEnvOrDefault("TOKEN_LIST_QUERY", DefaultTokenListQuery)

	// Activity feed configuration
	if cfg.FeedPageSize, err = parseInt("FEED_PAGE_SIZE", 5); err != nil {
		errs = append(errs, err)
	}
	if cfg.DetailConcurrency, err = parseInt("DETAIL_CONCURRENCY", 5); err != nil {
		errs = append(errs, err)
	}

	// Funds configuration
	if cfg.ConfirmTimeout, err = parseDuration("CONFIRM_TIMEOUT", "60s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.ConfirmPollInterval, err = parseDuration("CONFIRM_POLL_INTERVAL", "500ms"); err != nil {
		errs = append(errs, err)
	}
	if cfg.NoticeDuration, err = parseDuration("NOTICE_DURATION", "10s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.MaxAirdropSOL, err = parseDecimal("MAX_AIRDROP_SOL", "2"); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if _, err := DefaultRPCURL(c.SolanaNetwork); err != nil {
		errs = append(errs, err)
	}

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.TokenListURL == "" {
		errs = append(errs, fmt.Errorf("TokenListURL is required"))
	}

	if c.TokenListQuery == "" {
		errs = append(errs, fmt.Errorf("TokenListQuery is required"))
	}

	if c.FeedPageSize < 1 {
		errs = append(errs, fmt.Errorf("FeedPageSize must be at least 1"))
	}

	if c.DetailConcurrency < 1 {
		errs = append(errs, fmt.Errorf("DetailConcurrency must be at least 1"))
	}

	if c.ConfirmPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("ConfirmPollInterval must be positive"))
	}

	if c.ConfirmTimeout < c.ConfirmPollInterval {
		errs = append(errs, fmt.Errorf("ConfirmTimeout cannot be less than ConfirmPollInterval"))
	}

	if c.NoticeDuration <= 0 {
		errs = append(errs, fmt.Errorf("NoticeDuration must be positive"))
	}

	if !c.MaxAirdropSOL.IsPositive() {
		errs = append(errs, fmt.Errorf("MaxAirdropSOL must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// AirdropEnabled reports whether the configured network serves airdrops.
func (c *Config) AirdropEnabled() bool {
	return c.SolanaNetwork != NetworkMainnet
}

// RPCHost returns the host of SolanaRPCURL without path, query or
// credentials, for logging. Premium endpoints carry API keys in the URL.
func (c *Config) RPCHost() string {
	u, err := url.Parse(c.SolanaRPCURL)
	if err != nil || u.Host == "" {
		return "invalid"
	}
	return u.Host
}

// DefaultRPCURL returns the public RPC endpoint for a network name.
func DefaultRPCURL(network string) (string, error) {
	switch network {
	case NetworkDevnet:
		return rpc.DevNet_RPC, nil
	case NetworkTestnet:
		return rpc.TestNet_RPC, nil
	case NetworkMainnet:
		return rpc.MainNetBeta_RPC, nil
	case NetworkLocalnet:
		return rpc.LocalNet_RPC, nil
	default:
		return "", fmt.Errorf("SOLANA_NETWORK: unknown network %q", network)
	}
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseDecimal parses a decimal from an environment variable or uses a default.
func parseDecimal(key, defaultValue string) (decimal.Decimal, error) {
	value := getEnvOrDefault(key, defaultValue)
	result, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q: %w", key, value, err)
	}
	return result, nil
}
