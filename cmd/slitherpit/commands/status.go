package commands

import (
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "checks that the gateway is up and reports its version",
	Run: func(*cobra.Command, []string) {
		client := &http.Client{Timeout: 5 * time.Second}

		resp, err := client.Get(apiAddr + "/version")
		if err != nil {
			fmt.Println("error while fetching gateway status", err)
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
