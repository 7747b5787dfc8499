package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	createName    string
	createUser    string
	createEditors []string
	createPublic  bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new session",
	RunE:  runCreate,
}

func init() {
	createCmd.Flags().StringVarP(&createName, "name", "n", "", "Session name")
	createCmd.Flags().StringVarP(&createUser, "user", "u", "", "Creator user id")
	createCmd.Flags().StringSliceVarP(&createEditors, "editor", "e", nil, "User ids granted editor role (use 'all' for everyone)")
	createCmd.Flags().BoolVar(&createPublic, "public", false, "Make the session public")
	createCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	body, _ := json.Marshal(map[string]any{
		"name":      createName,
		"creatorId": createUser,
		"editors":   createEditors,
		"isPublic":  createPublic,
	})

	resp, err := http.Post(serverURL+"/api/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("connecting to server: %w\nIs the server running? Start it with: copair serve", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(respBody))
	}

	var sess struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	fmt.Printf("Session %s created (%s)\n", sess.ID, sess.Name)
	fmt.Printf("Connect: %s/ws then join_session with sessionId %s\n", serverURL, sess.ID)
	return nil
}
