package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/callrelay/internal/client"
	"github.com/BioHazard786/callrelay/internal/signaling"
	"github.com/BioHazard786/callrelay/internal/ui"
)

var watchInterval time.Duration

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Print the relay's rooms and members",
	RunE: func(cmd *cobra.Command, args []string) error {
		fetch, _, err := roomsFetcher()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), joinTimeout)
		defer cancel()

		snap, err := fetch(ctx)
		if err != nil {
			return err
		}
		ui.RenderRooms(os.Stdout, snap)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show a live roster of the relay's rooms",
	RunE: func(cmd *cobra.Command, args []string) error {
		fetch, server, err := roomsFetcher()
		if err != nil {
			return err
		}
		return ui.RunWatch(server, fetch, watchInterval)
	},
}

func roomsFetcher() (ui.FetchFunc, string, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, "", err
	}
	roomsURL, err := cfg.RoomsURL()
	if err != nil {
		return nil, "", err
	}
	return func(ctx context.Context) (signaling.Snapshot, error) {
		return client.FetchRooms(ctx, roomsURL)
	}, cfg.URL, nil
}

func init() {
	addServerFlags(roomsCmd)
	addServerFlags(watchCmd)
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 2*time.Second, "refresh interval")

	rootCmd.AddCommand(roomsCmd, watchCmd)
}
