package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dkeye/VoiceMesh/internal/config"
	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/spf13/cobra"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List active rooms on the relay",
	RunE:  runRooms,
}

func init() {
	roomsCmd.Flags().String("server-url", "", "relay websocket URL")
	rootCmd.AddCommand(roomsCmd)
}

func runRooms(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadClient(cmd.Flags())
	if err != nil {
		return err
	}
	endpoint, err := roomsURL(cfg.ServerURL)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch rooms: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch rooms: %s", resp.Status)
	}

	var body struct {
		Rooms []domain.RoomInfo `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode rooms: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderRooms(body.Rooms))
	return nil
}

// roomsURL maps ws(s)://host/api/ws/signal to http(s)://host/api/rooms.
func roomsURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/ws/signal") + "/rooms"
	return u.String(), nil
}
