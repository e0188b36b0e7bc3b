package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smaug-iot/marketplace/internal/store"
)

var (
	verbose bool
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

var rootCmd = &cobra.Command{
	Use:   "marketctl",
	Short: "marketplace operations CLI",
	Run: func(cmd *cobra.Command, args []string) {
	},
}

func initBackend(kind, url string) (store.Store, error) {
	switch kind {
	case "sqlite":
		return store.NewSQLite(url)
	case "postgres":
		return store.NewPostgres(url)
	}
	return nil, fmt.Errorf("unsupported storage kind %q. must be one of 'sqlite' or 'postgres'", kind)
}

func main() {
	rootCmd.Execute()
}
