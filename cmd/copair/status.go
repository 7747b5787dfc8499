package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Get the status of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	id := args[0]

	resp, err := http.Get(serverURL + "/api/sessions/" + id + "/stats")
	if err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))
	}

	var stats struct {
		SessionID    string `json:"session_id"`
		Name         string `json:"name"`
		Status       string `json:"status"`
		Participants int    `json:"participants"`
		Files        int    `json:"files"`
		ChatMessages int    `json:"chat_messages"`
		CreatedAt    string `json:"created_at"`
		DurationSec  int64  `json:"duration_sec"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	fmt.Printf("Session:       %s\n", stats.SessionID)
	fmt.Printf("Name:          %s\n", stats.Name)
	fmt.Printf("Status:        %s\n", stats.Status)
	fmt.Printf("Participants:  %d\n", stats.Participants)
	fmt.Printf("Files:         %d\n", stats.Files)
	fmt.Printf("Chat messages: %d\n", stats.ChatMessages)
	fmt.Printf("Created:       %s\n", stats.CreatedAt)
	fmt.Printf("Duration:      %ds\n", stats.DurationSec)
	return nil
}
