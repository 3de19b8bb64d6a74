package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tenbio",
	Short: "Biomolecular structure-prediction scheduling services",
	Long: `tenbio runs the structure-prediction scheduling layer: GPU backend
services that queue prediction jobs against a single resident model, and the
gateway that routes clients across them.`,
}

func main() {
	// .env is optional; system environment wins when absent.
	if err := godotenv.Load(); err == nil {
		slog.Debug(".env loaded")
	}
	rootCmd.AddCommand(gatewayCmd, backendCmd, clientCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
