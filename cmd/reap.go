package cmd

import (
	"fmt"
	"log"
	"time"

	"EchoFM/config"
	"EchoFM/core/audio"
	"EchoFM/core/hls"

	"github.com/spf13/cobra"
)

var reapMaxAge time.Duration

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Evict stale entries from the local segment cache",
	Long:  `Runs one eviction pass over the HLS segment cache, removing every entry older than the given max age. The running server does this on a timer; this command covers maintenance on a stopped instance.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		maxAge := reapMaxAge
		if maxAge == 0 {
			maxAge = cfg.CacheMaxAge
		}

		segments, err := hls.NewSegmentCache(cfg.HLSCacheDir, audio.NewFFmpegProcessor(cfg.FFmpegPath), hls.NewHTTPFetcher(nil), cfg.HLSBitrate, cfg.HLSSegmentTime)
		if err != nil {
			log.Fatalf("Failed to open segment cache: %v", err)
		}

		fmt.Printf("Reaping entries older than %s from %s\n", maxAge, cfg.HLSCacheDir)
		if err := segments.ReapOlderThan(maxAge); err != nil {
			log.Fatalf("Reap failed: %v", err)
		}
		fmt.Println("Done.")
	},
}

func init() {
	reapCmd.Flags().DurationVar(&reapMaxAge, "max-age", 0, "override the configured cache max age (e.g. 24h)")
	rootCmd.AddCommand(reapCmd)
}
