package main

import (
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/smaug-iot/marketplace/internal/store"
)

var (
	migrateSrcType  string
	migrateSrcURL   string
	migrateDestType string
	migrateDestURL  string
)

func init() {
	migrateCmd.Flags().StringVarP(&migrateSrcType, "src", "", "", "migration source type: sqlite or postgres")
	migrateCmd.Flags().StringVarP(&migrateSrcURL, "srcurl", "", "", "migration source url: /path/to/marketplace.db or postgresql://...")
	migrateCmd.Flags().StringVarP(&migrateDestType, "dest", "", "", "migration destination type: sqlite or postgres")
	migrateCmd.Flags().StringVarP(&migrateDestURL, "desturl", "", "", "migration destination url: /path/to/marketplace.db or postgresql://...")

	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "migrate the event journal between backends",
	RunE:  doMigration,
}

func doMigration(cmd *cobra.Command, args []string) error {
	src, err := initBackend(migrateSrcType, migrateSrcURL)
	if err != nil {
		return err
	}
	defer src.Close()

	dest, err := initBackend(migrateDestType, migrateDestURL)
	if err != nil {
		return err
	}
	defer dest.Close()

	result, err := migrate(cmd, src, dest)
	if err != nil {
		return err
	}

	log.Printf("completed in %s\ntotal: %d\nerrors: %d\n", result.duration, result.total, result.errors)
	return nil
}

type migrationResult struct {
	total    int
	errors   int
	duration time.Duration
}

func migrate(cmd *cobra.Command, src, dest store.Store) (*migrationResult, error) {
	start := time.Now()

	result := &migrationResult{}
	defer func(start time.Time) {
		result.duration = time.Since(start)
	}(start)

	// The journal is bounded by marketplace activity, so one page is
	// plenty for the deployments this serves.
	const pageSize = 1_000_000

	events, err := src.ListEvents(cmd.Context(), pageSize)
	if err != nil {
		return result, err
	}

	for _, ev := range events {
		if verbose {
			log.Printf("migrating event %s (%s)\n", ev.ID, ev.Kind)
		}
		result.total++
		if err := dest.AppendEvent(cmd.Context(), ev); err != nil {
			log.Printf("[error] append event %s: %s\n", ev.ID, err)
			result.errors++
		}
	}

	return result, nil
}
