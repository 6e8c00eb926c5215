package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"EchoFM/config"
	"EchoFM/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix    string
	minioRecursive bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Inspect the media store bucket",
	Long:  `Connects to the configured MinIO bucket and prints object listings and size statistics.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("MinIO: %s, bucket %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		store, err := storage.NewMinioStore(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to MinIO: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if minioRecursive {
			objects, stats, err := store.ListObjects(ctx, minioPrefix, true)
			if err != nil {
				log.Fatalf("Failed to list objects: %v", err)
			}
			for _, obj := range objects {
				fmt.Printf("%-60s %12d  %s\n", obj.Key, obj.Size, obj.LastModified.Format(time.RFC3339))
			}
			fmt.Printf("\n%d objects, %d bytes total\n", stats.TotalObjects, stats.TotalSize)
			return
		}

		if err := store.PrintBucketStatus(ctx, minioPrefix); err != nil {
			log.Fatalf("Failed to print bucket status: %v", err)
		}
	},
}

func init() {
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "object key prefix to filter by")
	minioCmd.Flags().BoolVarP(&minioRecursive, "recursive", "r", false, "list every object under the prefix")
	rootCmd.AddCommand(minioCmd)
}
