package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/leaguemind-ai/leaguemind"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:   "leaguemind",
		Short: "AI personalities for your fantasy league's chat",
		PersistentPreRun: func(*cobra.Command, []string) {
			// A missing .env is fine; the environment may already be set.
			if err := godotenv.Load(); err == nil {
				log.Println("[Leaguemind] loaded .env")
			}
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway and observability servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log.Printf("[Leaguemind] starting v%s", Version)
			return leaguemind.Run(ctx, cfgPath)
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(*cobra.Command, []string) {
			fmt.Println(Version)
		},
	}

	root.AddCommand(serve, version)
	return root
}
