package main

import (
	"context"
	"fmt"

	"github.com/franz/bgdb/internal/content"
	"github.com/franz/bgdb/internal/phash"
	"github.com/franz/bgdb/internal/report"
	"github.com/franz/bgdb/internal/store"
	"github.com/franz/bgdb/internal/util"
	"github.com/spf13/viper"
)

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (BGDB_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigInt retrieves an int config value with proper precedence
func GetConfigInt(key string, defaultValue int) int {
	val := viper.GetInt(key)
	if val <= 0 {
		return defaultValue
	}
	return val
}

// openStore opens the database named by the db key
func openStore() (*store.Store, error) {
	dbPath := viper.GetString("db")
	db, err := store.OpenWithOptions(dbPath, &store.OpenOptions{
		NetworkOptimized: viper.GetBool("db-network"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// contentConfig reads the content.* and s3.* keys
func contentConfig() *content.Config {
	return &content.Config{
		Backend: GetConfigString("content.backend", "fs"),
		Dir:     GetConfigString("content.dir", "images"),
		S3: content.S3Config{
			Endpoint:     viper.GetString("s3.endpoint"),
			Region:       GetConfigString("s3.region", "us-east-1"),
			Bucket:       viper.GetString("s3.bucket"),
			Prefix:       viper.GetString("s3.prefix"),
			AccessKey:    viper.GetString("s3.access-key"),
			SecretKey:    viper.GetString("s3.secret-key"),
			UsePathStyle: viper.GetBool("s3.use-path-style"),
		},
	}
}

// openContent opens the configured content store
func openContent(ctx context.Context) (content.Store, error) {
	cfg := contentConfig()
	images, err := content.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open content store: %w", err)
	}
	if cfg.Backend == "s3" {
		util.InfoLog("Content store: s3://%s/%s", cfg.S3.Bucket, cfg.S3.Prefix)
	} else {
		util.InfoLog("Content store: %s", cfg.Dir)
	}
	return images, nil
}

// hasherFromConfig builds the fingerprint configuration from hash.* keys
func hasherFromConfig() (*phash.Hasher, error) {
	return phash.New(
		GetConfigString("hash.algorithm", "gradient"),
		GetConfigInt("hash.size", 16),
	)
}

// openEventLogger creates the run's event log, falling back to a no-op logger
func openEventLogger() *report.EventLogger {
	level := report.LevelInfo
	if name := viper.GetString("event-level"); name != "" {
		level = report.ParseLevel(name)
	} else if viper.GetBool("quiet") {
		level = report.LevelWarning
	} else if viper.GetBool("verbose") {
		level = report.LevelDebug
	}

	logger, err := report.NewEventLogger(GetConfigString("artifacts", "artifacts"), level)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	if logger.Path() != "" {
		util.InfoLog("Event log: %s", logger.Path())
	}
	return logger
}
