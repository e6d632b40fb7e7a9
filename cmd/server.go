/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/libreserve/apiserver/config"
	"github.com/libreserve/apiserver/internal/server"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the libreserve backend server",
	Long: `Starts the libreserve backend server. Usage:

	libreserve server
`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          "libreserve",
		})

		cfg := config.LoadConfig()

		srv, err := server.New(cmd.Context(), cfg, logger)
		if err != nil {
			logger.Fatal("failed to start server", "err", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		logger.Info("server listening", "port", cfg.ServerPort)

		select {
		case err := <-errCh:
			if err != nil {
				logger.Fatal("server error", "err", err)
			}
		case <-ctx.Done():
			logger.Info("shutting down")
			if err := srv.Shutdown(); err != nil {
				logger.Error("shutdown error", "err", err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
