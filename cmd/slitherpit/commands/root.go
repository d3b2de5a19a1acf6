package commands

import (
	"fmt"
	"os"

	"github.com/slitherpit/engine/version"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:     "slitherpit",
	Short:   "slitherpit runs the staked arena game engine",
	Version: version.Version,
	Run: func(c *cobra.Command, args []string) {
		serverCmd.Run(c, args)
	},
}

var (
	apiAddr string
)

// Execute runs the root command
func Execute() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api-addr", "http://localhost:3005", "address of the gateway")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(enterCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(identityCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
