package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelsec/agentgate/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		initCtx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
		defer cancel()

		srv, err := server.New(initCtx, appConfig, appLogger)
		if err != nil {
			return err
		}
		return srv.Start()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
