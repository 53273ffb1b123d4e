package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/franz/bgdb/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "bgdb",
		Short: "osu! background database - extract, fingerprint and search beatmap backgrounds",
		Long: `bgdb builds a searchable database of osu! beatmap backgrounds.

It extracts the background image and metadata from every beatmap archive (.osz)
in a songs directory, fingerprints each stored background with a perceptual
hash, and answers "which beatmap is this image from?" by Hamming distance.

Every stage is resumable: processed archives and indexed images are skipped
on the next run.`,
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.SetColors(util.IsTerminal(os.Stderr.Fd()) && os.Getenv("NO_COLOR") == "")
			util.SetVerbose(viper.GetBool("verbose"))
			util.SetQuiet(viper.GetBool("quiet"))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./configs/bgdb.yaml)")
	flags.String("db", "bgdb.db", "metadata and fingerprint database file")
	flags.Bool("db-network", false, "tune the database for a network filesystem")
	flags.String("content-backend", "fs", "content store backend: fs or s3")
	flags.String("content-dir", "images", "directory of the fs content store")
	flags.IntP("concurrency", "c", runtime.NumCPU(), "number of concurrent workers")
	flags.Int("batch-size", 100, "rows per database transaction")
	flags.String("hash", "gradient", "fingerprint algorithm: gradient, mean or dct")
	flags.Int("hash-size", 16, "fingerprint grid size (power of two, 8..64)")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("db", flags.Lookup("db"))
	viper.BindPFlag("db-network", flags.Lookup("db-network"))
	viper.BindPFlag("content.backend", flags.Lookup("content-backend"))
	viper.BindPFlag("content.dir", flags.Lookup("content-dir"))
	viper.BindPFlag("concurrency", flags.Lookup("concurrency"))
	viper.BindPFlag("batch-size", flags.Lookup("batch-size"))
	viper.BindPFlag("hash.algorithm", flags.Lookup("hash"))
	viper.BindPFlag("hash.size", flags.Lookup("hash-size"))
	viper.BindPFlag("verbose", flags.Lookup("verbose"))
	viper.BindPFlag("quiet", flags.Lookup("quiet"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("bgdb")
		viper.SetConfigType("yaml")
	}

	// BGDB_CONTENT_BACKEND, BGDB_S3_BUCKET, BGDB_BATCH_SIZE, ...
	viper.SetEnvPrefix("BGDB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
