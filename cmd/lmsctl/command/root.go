package command

// root.go defines the root command for lmsctl and the shared store wiring.

import (
	"fmt"
	"os"

	"coursehub/database"
	"coursehub/internal/config"
	"coursehub/internal/logger"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	databaseURL    string // global flag for the database connection string
	databaseDriver string // postgres | sqlite
	logLevel       string
)

var rootCmd = &cobra.Command{
	Use:   "lmsctl",
	Short: "lmsctl - coursehub back-office tool",
	Long: `lmsctl talks to the coursehub database directly. Operators can use it to:
- Apply or roll back schema migrations
- Import course structures from YAML files
- Inspect and reset learner progress

Connection settings default to DATABASE_URL and DATABASE_DRIVER from the environment (.env is honoured).`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("✗ %v", err)
		os.Exit(1)
	}
}

func init() {
	// .env is optional
	_ = godotenv.Load(".env")

	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", envOr("DATABASE_URL", ""), "database connection string")
	rootCmd.PersistentFlags().StringVar(&databaseDriver, "driver", envOr("DATABASE_DRIVER", database.DriverPostgres), "database driver (postgres|sqlite)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "log level")

	rootCmd.AddCommand(migrateCmd, catalogCmd, progressCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// session bundles what a subcommand needs to reach the store.
type session struct {
	cfg    *config.Config
	db     *gorm.DB
	logger *zap.Logger
}

func openSession() (*session, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("--database-url (or DATABASE_URL) is required")
	}
	zlog, err := logger.New(logLevel, "text")
	if err != nil {
		return nil, err
	}
	cfg := &config.Config{
		GoEnv:          "cli",
		DatabaseURL:    databaseURL,
		DatabaseDriver: databaseDriver,
		NATSURL:        os.Getenv("NATS_URL"),
	}
	db, err := database.Open(cfg, zlog)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, db: db, logger: zlog}, nil
}

func (s *session) Close() {
	_ = database.Close(s.db)
	_ = s.logger.Sync()
}
