package commands

import (
	"bytes"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var enterCmd = &cobra.Command{
	Use:   "enter",
	Short: "stakes credits and mints a match token",
	Args: func(c *cobra.Command, args []string) error {
		if len(identityToken) == 0 {
			return errors.New("identity token is required")
		}
		if stake <= 0 {
			return errors.New("stake is required")
		}
		return nil
	},
	Run: func(*cobra.Command, []string) {
		client := &http.Client{Timeout: 5 * time.Second}

		buf := bytes.NewBufferString(fmt.Sprintf(`{"stake":%d}`, stake))
		req, err := http.NewRequest("POST", apiAddr+"/enter-match", buf)
		if err != nil {
			fmt.Println("unable to build request", err)
			return
		}
		req.Header.Set("Authorization", "Bearer "+identityToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			fmt.Println("error while posting to enter-match endpoint", err)
			return
		}
		defer resp.Body.Close()

		data, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			fmt.Println("unable to read response body", err)
			return
		}
		fmt.Println(string(data))
	},
}

var (
	stake int64
)

func init() {
	enterCmd.Flags().Int64VarP(&stake, "stake", "s", 0, "credits to stake on the match")
}
