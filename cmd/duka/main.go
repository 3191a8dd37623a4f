// Command duka runs the natural-language shopping assistant for a fashion storefront.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "duka",
	Short: "Natural-language shopping assistant",
	Long: `Duka answers shopper messages about products and orders.
Each message is routed to an intent, served by a small set of commerce tools,
checked by the cancellation policy guard and answered with a grounded reply.`,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, askCmd, mcpCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
