package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type Mode string

const (
	ModeServer Mode = "server"
	ModeNode   Mode = "node"
)

const (
	DefaultChunkSizeBytes    = 1024 * 1024 // 1MiB chunks
	DefaultReplicationFactor = 3
	DefaultTokenTTLMinutes   = 30
)

type Config struct {
	Mode   Mode         `json:"mode"`
	Server ServerConfig `json:"server,omitempty"`
	Node   NodeConfig   `json:"node,omitempty"`
}

// ServerConfig configures the control-plane server.
type ServerConfig struct {
	Address           string `json:"address"`
	DatabaseURL       string `json:"database_url"`
	SecretKey         string `json:"secret_key"`
	TokenTTLMinutes   int    `json:"token_ttl_minutes"`
	ChunkSizeBytes    int    `json:"chunk_size_bytes"`
	ReplicationFactor int    `json:"replication_factor"`
}

// NodeConfig configures a storage daemon.
type NodeConfig struct {
	Address string `json:"address"`
	DataDir string `json:"data_dir"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func LoadFromEnv() *Config {
	cfg := &Config{
		Mode: Mode(getEnv("CLOUDRIVE_MODE", "server")),
	}

	if cfg.Mode == ModeServer {
		cfg.Server = ServerConfig{
			Address:           getEnv("CLOUDRIVE_ADDRESS", ":8000"),
			DatabaseURL:       getEnv("CLOUDRIVE_DATABASE_URL", ""),
			SecretKey:         getEnv("CLOUDRIVE_SECRET_KEY", ""),
			TokenTTLMinutes:   getEnvInt("CLOUDRIVE_TOKEN_TTL_MINUTES", DefaultTokenTTLMinutes),
			ChunkSizeBytes:    getEnvInt("CLOUDRIVE_CHUNK_SIZE_BYTES", DefaultChunkSizeBytes),
			ReplicationFactor: getEnvInt("CLOUDRIVE_REPLICATION_FACTOR", DefaultReplicationFactor),
		}
	} else {
		cfg.Node = NodeConfig{
			Address: getEnv("CLOUDRIVE_NODE_ADDRESS", ":9000"),
			DataDir: getEnv("CLOUDRIVE_DATA_DIR", "./data/chunks"),
		}
	}

	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.ChunkSizeBytes <= 0 {
		c.Server.ChunkSizeBytes = DefaultChunkSizeBytes
	}
	if c.Server.ReplicationFactor <= 0 {
		c.Server.ReplicationFactor = DefaultReplicationFactor
	}
	if c.Server.TokenTTLMinutes <= 0 {
		c.Server.TokenTTLMinutes = DefaultTokenTTLMinutes
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
