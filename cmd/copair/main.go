// Copair - collaborative code editing server
//
// A multi-party real-time editing server with shared file buffers,
// presence, chat, an AI pair-programming collaborator, and sandboxed
// code execution.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "copair",
	Short: "Copair - collaborative code editing server",
	Long: `Copair is a multi-party real-time collaborative editing server.
Share a session, edit together, chat with an AI collaborator.

  copair serve                            Start the server
  copair create --user alice              Create a session
  copair list                             List sessions
  copair status <id>                      Check session status`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("COPAIR_SERVER", "http://localhost:7080"), "Copair server URL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
