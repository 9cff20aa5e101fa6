package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/callrelay/internal/ui"
	"github.com/BioHazard786/callrelay/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "callrelay",
	Short: "WebRTC call signaling relay and companion client",
	Long: `callrelay relays WebRTC call setup messages between peers that have joined
a room under an identity. The same binary runs the relay (serve), inspects it
(rooms, watch) and places or answers test calls with a text chat channel
(call, answer).`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
