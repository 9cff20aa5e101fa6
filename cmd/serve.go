package cmd

import (
	"github.com/spf13/cobra"

	"github.com/BioHazard786/callrelay/internal/config"
	"github.com/BioHazard786/callrelay/internal/logging"
	"github.com/BioHazard786/callrelay/internal/server"
)

var serveOpts config.ServerOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling relay",
	Long: `Run the signaling relay.

Flags override environment variables (HOST, PORT, ALLOWED_ORIGINS, LOG_LEVEL),
which override the defaults. A .env file in the working directory is read
first if present.

Examples:
  callrelay serve
  callrelay serve --port 9000 --origins https://app.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServer(serveOpts)
		if err != nil {
			return err
		}
		log := logging.Init(cfg.LogLevel)
		return server.Run(cmd.Context(), cfg, log)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.Host, "host", "", "interface to listen on (env HOST)")
	serveCmd.Flags().IntVarP(&serveOpts.Port, "port", "p", 0, "port to listen on (env PORT)")
	serveCmd.Flags().StringVar(&serveOpts.AllowedOrigins, "origins", "", "comma separated allowed origins, * for any (env ALLOWED_ORIGINS)")
	serveCmd.Flags().StringVar(&serveOpts.LogLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")

	rootCmd.AddCommand(serveCmd)
}
