package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Domain parameters feed the EIP-712 domain separator. Changing any of
// them invalidates every outstanding signed order.
type Domain struct {
	Name              string
	Version           string
	ChainID           uint64
	VerifyingContract string // 0x-hex address, zero for off-chain deployments
}

type Engine struct {
	// MaxOrdersPerBundle caps each decode loop. A mis-declared section
	// length otherwise makes the loop run until the buffer is exhausted,
	// which is an availability risk on large payloads.
	//
	// Recommended values:
	//   - Devnet:     256
	//   - Production: 1024 (a settlement round rarely carries more)
	MaxOrdersPerBundle int
}

type Node struct {
	DataDir string // pebble stores live under here
	APIAddr string // REST + websocket listen address
	LogFile string // "" disables the file sink
}

type Config struct {
	Domain Domain
	Engine Engine
	Node   Node
}

func Default() Config {
	return Config{
		Domain: Domain{
			Name:    "Slipstream",
			Version: "1",
			ChainID: 1337, // local dev chain
		},
		Engine: Engine{
			MaxOrdersPerBundle: 1024,
		},
		Node: Node{
			DataDir: "data",
			APIAddr: ":8080",
			LogFile: "data/node.log",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Optional .env file
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Domain.Name = getEnv("DOMAIN_NAME", cfg.Domain.Name)
	cfg.Domain.Version = getEnv("DOMAIN_VERSION", cfg.Domain.Version)
	if chain := os.Getenv("CHAIN_ID"); chain != "" {
		if id, err := strconv.ParseUint(chain, 10, 64); err == nil {
			cfg.Domain.ChainID = id
		}
	}
	cfg.Domain.VerifyingContract = getEnv("VERIFYING_CONTRACT", cfg.Domain.VerifyingContract)

	if max := os.Getenv("MAX_ORDERS_PER_BUNDLE"); max != "" {
		if n, err := strconv.Atoi(max); err == nil && n > 0 {
			cfg.Engine.MaxOrdersPerBundle = n
		}
	}

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
