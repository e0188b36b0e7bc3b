package main

import (
	"log"

	"github.com/spf13/cobra"
)

var (
	resetSrcType string
	resetSrcURL  string
)

func init() {
	resetTokensCmd.Flags().StringVarP(&resetSrcType, "src", "", "", "source type: sqlite or postgres")
	resetTokensCmd.Flags().StringVarP(&resetSrcURL, "srcurl", "", "", "source url: /path/to/marketplace.db or postgresql://...")

	rootCmd.AddCommand(resetTokensCmd)
}

var resetTokensCmd = &cobra.Command{
	Use:   "reset-tokens",
	Short: "clear the spent access-token nonces, making issued tokens valid again",
	RunE:  doResetTokens,
}

func doResetTokens(cmd *cobra.Command, args []string) error {
	backend, err := initBackend(resetSrcType, resetSrcURL)
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := backend.ResetNonces(cmd.Context()); err != nil {
		return err
	}

	log.Println("spent nonces cleared")
	return nil
}
