// Package config loads operator/provider service configuration from
// environment variables, mirroring the teacher facilitator service's
// config package: an optional .env file followed by typed env lookups with
// defaults.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds configuration shared by cmd/operator and cmd/provider. Not
// every field is read by every binary.
type Config struct {
	// Server
	Port        int
	Environment string

	// Chain
	BaseRPC          string
	BaseRPCWebsocket string
	ChainID          int64

	// Registry contract
	RegistryAddress string
	RootNode        string // "grid-beta.hypr"
	RootLabel       string

	// USDC / payment
	USDCAddress       string
	PaymasterAddress  string
	BundlerURL        string
	GaslessEnabled    bool
	VerificationGas   uint64
	PostOpGas         uint64

	// Storage
	PostgresURL string
	KVPath      string

	// Provider-side
	ProviderSettlementAddress string
	SourceNodeID              string
	ProviderConfigPath        string

	// Operator HTTP surface
	OwnerToken string

	// Timeouts (§5)
	HealthPingTimeout    time.Duration
	AuthRPCTimeout       time.Duration
	ProviderCallTimeout  time.Duration
	RPCReadTimeout       time.Duration
	PaymentSubmitTimeout time.Duration
}

// Load reads configuration from the environment, loading a .env file first
// if one is present (ignored if absent).
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnvInt("PORT", 8080),
		Environment: getEnv("ENVIRONMENT", "development"),

		BaseRPC:          getEnv("BASE_RPC", "https://mainnet.base.org"),
		BaseRPCWebsocket: getEnv("BASE_RPC_WS", "wss://mainnet.base.org"),
		ChainID:          int64(getEnvInt("CHAIN_ID", 8453)),

		RegistryAddress: getEnv("REGISTRY_ADDRESS", ""),
		RootNode:        getEnv("ROOT_NODE", "grid-beta.hypr"),
		RootLabel:       getEnv("ROOT_LABEL", "grid-beta"),

		USDCAddress:      getEnv("USDC_ADDRESS", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		PaymasterAddress: getEnv("PAYMASTER_ADDRESS", "0x0578cFB241215b77442a541325d6A4E6dFE700Ec"),
		BundlerURL:       getEnv("BUNDLER_URL", ""),
		GaslessEnabled:   getEnvBool("GASLESS_ENABLED", false),
		VerificationGas:  uint64(getEnvInt("ERC4337_VERIFICATION_GAS", 500000)),
		PostOpGas:        uint64(getEnvInt("ERC4337_POSTOP_GAS", 300000)),

		PostgresURL: getEnv("DATABASE_URL", "postgres://localhost/hypergrid?sslmode=disable"),
		KVPath:      getEnv("KV_PATH", "./data/kv"),

		ProviderSettlementAddress: getEnv("PROVIDER_SETTLEMENT_ADDRESS", ""),
		SourceNodeID:              getEnv("SOURCE_NODE_ID", ""),
		ProviderConfigPath:        getEnv("PROVIDER_CONFIG_PATH", "./providers.json"),

		OwnerToken: getEnv("OWNER_TOKEN", ""),

		HealthPingTimeout:    getEnvDuration("HEALTH_PING_TIMEOUT", 7*time.Second),
		AuthRPCTimeout:       getEnvDuration("AUTH_RPC_TIMEOUT", 10*time.Second),
		ProviderCallTimeout:  getEnvDuration("PROVIDER_CALL_TIMEOUT", 60*time.Second),
		RPCReadTimeout:       getEnvDuration("RPC_READ_TIMEOUT", 30*time.Second),
		PaymentSubmitTimeout: getEnvDuration("PAYMENT_SUBMIT_TIMEOUT", 180*time.Second),
	}
}

func (c *Config) IsDevelopment() bool { return c.Environment == "development" }
func (c *Config) IsProduction() bool  { return c.Environment == "production" }

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
