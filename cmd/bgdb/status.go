package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/franz/bgdb/internal/osu"
	"github.com/franz/bgdb/internal/search"
	"github.com/franz/bgdb/internal/store"
	"github.com/franz/bgdb/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database counts",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	dbPath := viper.GetString("db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		util.WarnLog("No database at %s. Run 'bgdb extract' first.", dbPath)
		return nil
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	hasher, err := hasherFromConfig()
	if err != nil {
		return err
	}
	stats, err := search.New(&search.Config{Store: db, Hasher: hasher}).Stats()
	if err != nil {
		return err
	}
	stored, _, err := db.GetSetting(store.SettingHashConfig)
	if err != nil {
		return err
	}
	if stored == "" {
		stored = "(not indexed yet)"
	}

	fmt.Printf("Database:     %s\n", dbPath)
	fmt.Printf("Mapsets:      %s\n", humanize.Comma(int64(stats.Mapsets)))
	fmt.Printf("Fingerprints: %s\n", humanize.Comma(int64(stats.Fingerprints)))
	fmt.Printf("Hash:         %s\n", stored)

	modes, err := db.CountMapsetsByMode()
	if err != nil {
		return err
	}
	keys := make([]int, 0, len(modes))
	for m := range modes {
		keys = append(keys, m)
	}
	sort.Ints(keys)
	for _, m := range keys {
		fmt.Printf("  %-10s  %s\n", osu.Mode(m), humanize.Comma(int64(modes[m])))
	}

	return nil
}
