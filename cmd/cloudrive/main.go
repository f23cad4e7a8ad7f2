package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloudrive/pkg/api"
	"cloudrive/pkg/auth"
	"cloudrive/pkg/client"
	"cloudrive/pkg/config"
	"cloudrive/pkg/coordinator"
	"cloudrive/pkg/metadata"
	"cloudrive/pkg/node"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cloudrive",
		Short: "Chunked, replicated file storage",
		Long: `A distributed file store: the server splits uploads into fixed-size
chunks and replicates each chunk across storage daemons on a hash ring.`,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(
		serverCmd(),
		nodeCmd(),
		nodesCmd(),
		statusCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadConfig(configFile)
	}
	return config.LoadFromEnv(), nil
}

func serverCmd() *cobra.Command {
	var (
		address     string
		databaseURL string
		secretKey   string
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the control-plane server",
		Long:  `Start the API server that owns metadata, authentication and chunk placement.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if address != "" {
				cfg.Server.Address = address
			}
			if databaseURL != "" {
				cfg.Server.DatabaseURL = databaseURL
			}
			if secretKey != "" {
				cfg.Server.SecretKey = secretKey
			}

			if cfg.Server.DatabaseURL == "" {
				return fmt.Errorf("database URL is required")
			}
			if cfg.Server.SecretKey == "" {
				return fmt.Errorf("secret key is required")
			}

			store, err := metadata.Open(cfg.Server.DatabaseURL, logger)
			if err != nil {
				return fmt.Errorf("failed to open metadata store: %w", err)
			}

			tokens := auth.NewTokenIssuer(cfg.Server.SecretKey, time.Duration(cfg.Server.TokenTTLMinutes)*time.Minute)
			coord := coordinator.New(&cfg.Server, store, store, client.New(), logger)
			server := api.New(&cfg.Server, store, coord, tokens, logger)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			go func() {
				<-sigChan
				logger.Info("Shutting down server")
				server.Stop()
			}()

			logger.Info("Starting server",
				zap.String("address", cfg.Server.Address),
				zap.Int("chunk_size_bytes", cfg.Server.ChunkSizeBytes),
				zap.Int("replication_factor", cfg.Server.ReplicationFactor))

			return server.Start()
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "listening address (default :8000)")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "postgres connection string")
	cmd.Flags().StringVar(&secretKey, "secret-key", "", "token signing secret")

	return cmd
}

func nodeCmd() *cobra.Command {
	var (
		address string
		dataDir string
	)

	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run a storage daemon",
		Long:  `Start a storage daemon that holds chunk replicas for the server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if address != "" {
				cfg.Node.Address = address
			}
			if dataDir != "" {
				cfg.Node.DataDir = dataDir
			}

			daemon := node.New(&cfg.Node, logger)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			go func() {
				<-sigChan
				logger.Info("Shutting down storage daemon")
				daemon.Stop()
			}()

			return daemon.Start()
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "listening address (default :9000)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory for chunk blobs (default ./data/chunks)")

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("CloudRive v0.1.0")
		},
	}
}

func setupLogger(verbose bool) *zap.Logger {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, _ := config.Build()
	return logger
}
