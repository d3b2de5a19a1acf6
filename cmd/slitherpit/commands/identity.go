package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/slitherpit/engine/api"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "mints a development identity token from IDENTITY_SECRET",
	Args: func(c *cobra.Command, args []string) error {
		if len(identityUser) == 0 {
			return errors.New("user id is required")
		}
		return nil
	},
	Run: func(*cobra.Command, []string) {
		signer := api.HMACIdentity{Secret: secret("IDENTITY_SECRET")}
		fmt.Println(signer.MintIdentity(identityUser, identityTTL))
	},
}

var (
	identityUser string
	identityTTL  time.Duration
)

func init() {
	identityCmd.Flags().StringVarP(&identityUser, "user", "u", "", "user id to mint the token for")
	identityCmd.Flags().DurationVar(&identityTTL, "ttl", 24*time.Hour, "token lifetime")
}
