package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	copair "github.com/copairhq/copair"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the copair server",
	Long:  "Start the copair server that hosts collaborative editing sessions over websockets.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := copair.NewBuilder().
		WithConfig(copair.ConfigFromEnv()).
		Build()
	if err != nil {
		return fmt.Errorf("building app: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Start(ctx)
}
