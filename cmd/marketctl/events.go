package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	eventsSrcType string
	eventsSrcURL  string
	eventsLimit   int
)

func init() {
	eventsCmd.Flags().StringVarP(&eventsSrcType, "src", "", "", "source type: sqlite or postgres")
	eventsCmd.Flags().StringVarP(&eventsSrcURL, "srcurl", "", "", "source url: /path/to/marketplace.db or postgresql://...")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 100, "maximum number of events to list")

	rootCmd.AddCommand(eventsCmd)
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "list journaled marketplace events, newest first",
	RunE:  doEvents,
}

func doEvents(cmd *cobra.Command, args []string) error {
	backend, err := initBackend(eventsSrcType, eventsSrcURL)
	if err != nil {
		return err
	}
	defer backend.Close()

	events, err := backend.ListEvents(cmd.Context(), eventsLimit)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	fmt.Printf("Time\tKind\tPayload\n")
	for _, ev := range events {
		fmt.Printf("%s\t%s\t%s\n", ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.Kind, ev.Payload)
	}

	return nil
}
