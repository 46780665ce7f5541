// Showrunner daemon — runs the periodic agents, the content scheduler,
// and the operator inbox bridge for a single social persona.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/showrunner-io/showrunner/pkg/config"
	"github.com/showrunner-io/showrunner/pkg/database"
	"github.com/showrunner-io/showrunner/pkg/orchestrator"
	"github.com/showrunner-io/showrunner/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("SHOWRUNNER_CONFIG", "showrunner.yaml"),
		"Path to configuration file (empty for compiled defaults)")
	envFile := flag.String("env-file", ".env", "Path to .env file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	} else {
		slog.Info("Loaded environment", "path", *envFile)
	}

	slog.Info("Starting showrunner",
		"version", version.Full(),
		"config", *configPath)

	ctx := context.Background()

	// 1. Configuration. A missing file falls back to compiled defaults so
	// a bare binary still boots against a local database.
	path := *configPath
	if _, err := os.Stat(path); os.IsNotExist(err) {
		slog.Warn("Config file not found, using compiled defaults", "path", path)
		path = ""
	}
	cfg, err := config.Initialize(ctx, path)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Database.
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Wire and run. Run blocks until SIGINT/SIGTERM and performs the
	// graceful shutdown itself.
	orch := orchestrator.New(cfg, dbClient)
	if err := orch.Run(ctx); err != nil {
		slog.Error("Daemon exited with error", "error", err)
		os.Exit(1)
	}
}
