package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/franz/bgdb/internal/search"
	"github.com/franz/bgdb/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var searchCmd = &cobra.Command{
	Use:   "search <image>",
	Short: "Find the beatmaps whose background looks like an image",
	Long: `Fingerprint the given image and list the closest stored backgrounds,
smallest Hamming distance first.

Examples:
  bgdb search screenshot.png
  bgdb search -k 3 cover.jpg
  bgdb search --output jsonl cover.jpg | jq .title`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntP("k", "k", search.DefaultK, "number of results")
	searchCmd.Flags().StringP("output", "o", "human", "Output format: human, jsonl")
	searchCmd.Flags().String("preview-url", search.DefaultPreviewURL, "preview URL format receiving the set id")
	viper.BindPFlag("search.k", searchCmd.Flags().Lookup("k"))
	viper.BindPFlag("preview-url", searchCmd.Flags().Lookup("preview-url"))
}

func runSearch(cmd *cobra.Command, args []string) error {
	hasher, err := hasherFromConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read query image: %w", err)
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	engine := search.New(&search.Config{
		Store:      db,
		Hasher:     hasher,
		PreviewURL: viper.GetString("preview-url"),
	})

	k := GetConfigInt("search.k", search.DefaultK)
	start := time.Now()
	matches, err := engine.Search(context.Background(), data, k)
	if err != nil {
		return err
	}
	util.DebugLog("Search took %v", time.Since(start).Round(time.Microsecond))

	output, _ := cmd.Flags().GetString("output")
	switch output {
	case "jsonl":
		return outputMatchesJSONL(os.Stdout, matches)
	case "human":
		outputMatchesHuman(os.Stdout, matches, hasher.Bits())
		return nil
	default:
		return fmt.Errorf("invalid output format: %s (use human or jsonl)", output)
	}
}

func outputMatchesHuman(w io.Writer, matches []search.Match, bits int) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "No matches.")
		return
	}

	fmt.Fprintf(w, "\n=== Closest Backgrounds (%d-bit fingerprints) ===\n\n", bits)
	for i, m := range matches {
		fmt.Fprintf(w, "[%d] %s - %s (mapped by %s)\n", i+1, m.Artist, m.Title, m.Creator)
		fmt.Fprintf(w, "    Set:      %d (%s)\n", m.SetID, m.Mode)
		fmt.Fprintf(w, "    Image:    %s\n", m.ImageName)
		fmt.Fprintf(w, "    Distance: %d (%.1f%% similar)\n", m.Distance, m.Similarity*100)
		fmt.Fprintf(w, "    Preview:  %s\n", m.PreviewURL)
		fmt.Fprintln(w)
	}
}

func outputMatchesJSONL(w io.Writer, matches []search.Match) error {
	encoder := json.NewEncoder(w)
	for _, m := range matches {
		if err := encoder.Encode(m); err != nil {
			return err
		}
	}
	return nil
}
