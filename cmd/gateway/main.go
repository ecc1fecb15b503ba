package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gateway",
		Short:        "Streaming chat gateway for OpenAI, SiliconFlow and Anthropic models",
		SilenceUsage: true,
		Version:      version,
	}

	root.PersistentFlags().String("config", "", "path to a YAML config file")
	root.PersistentFlags().String("env-file", "", "path to a .env file (default: ./.env when present)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newModelsCmd())
	return root
}
