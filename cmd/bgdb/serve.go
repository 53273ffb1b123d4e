package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/franz/bgdb/internal/search"
	"github.com/franz/bgdb/internal/server"
	"github.com/franz/bgdb/internal/util"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve similarity search over HTTP",
	Long: `Start the HTTP server.

Routes:
  GET  /health              liveness
  GET  /api/stats           mapset and fingerprint counts
  POST /api/search?k=10     query image as multipart field "image" or raw body
  GET  /img/:identity       stored background bytes

  POST /api/cache/invalidate

With --cache the fingerprint set is held in memory; call /api/cache/invalidate
after indexing new images.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().Bool("cache", false, "keep fingerprints in memory between queries")
	serveCmd.Flags().Int64("max-upload", server.DefaultMaxUpload, "largest accepted query image in bytes")
	serveCmd.Flags().Bool("release", false, "run gin in release mode (no error detail in replies)")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("search.cache", serveCmd.Flags().Lookup("cache"))
	viper.BindPFlag("server.max-upload", serveCmd.Flags().Lookup("max-upload"))
	viper.BindPFlag("server.release", serveCmd.Flags().Lookup("release"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hasher, err := hasherFromConfig()
	if err != nil {
		return err
	}

	dbPath := viper.GetString("db")
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	// refuse to start against an index built with another configuration
	if err := db.CheckHashConfig(hasher.Name()); err != nil {
		return err
	}

	images, err := openContent(ctx)
	if err != nil {
		return err
	}

	logger := openEventLogger()
	defer logger.Close()

	if viper.GetBool("server.release") {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := search.New(&search.Config{
		Store:      db,
		Hasher:     hasher,
		Cache:      viper.GetBool("search.cache"),
		PreviewURL: viper.GetString("preview-url"),
	})

	stats, err := engine.Stats()
	if err != nil {
		return err
	}
	util.InfoLog("Database: %s (%d mapsets, %d fingerprints, %s)", dbPath, stats.Mapsets, stats.Fingerprints, stats.Hash)

	router := server.NewRouter(&server.Config{
		Engine:    engine,
		Content:   images,
		Events:    logger,
		MaxUpload: viper.GetInt64("server.max-upload"),
		DefaultK:  GetConfigInt("search.k", search.DefaultK),
	})

	return server.Serve(ctx, GetConfigString("server.addr", ":8080"), router)
}
