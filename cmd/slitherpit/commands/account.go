package commands

import (
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "gets an account balance from the gateway",
	Args: func(c *cobra.Command, args []string) error {
		if len(identityToken) == 0 {
			return errors.New("identity token is required")
		}
		return nil
	},
	Run: func(*cobra.Command, []string) {
		body, err := authorizedGet("/account")
		if err != nil {
			fmt.Println("error while fetching account", err)
			return
		}
		fmt.Println(body)
	},
}

var (
	identityToken string
)

func init() {
	accountCmd.Flags().StringVarP(&identityToken, "token", "t", "", "identity bearer token")
	enterCmd.Flags().AddFlagSet(accountCmd.Flags())
}

func authorizedGet(path string) (string, error) {
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequest("GET", apiAddr+path, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+identityToken)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
