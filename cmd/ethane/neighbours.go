package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ethane-platform/ethane/api"
)

var neighboursCmdArgs struct {
	endpoint string
	port     string
	match    string
}

var neighboursCmd = &cobra.Command{
	Use:   "neighbours",
	Short: "Print the neighbour bindings a port has learned",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runNeighbours(); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	neighboursCmd.Flags().StringVar(&neighboursCmdArgs.endpoint, "endpoint", "127.0.0.1:9480", "address of the inspection API")
	neighboursCmd.Flags().StringVarP(&neighboursCmdArgs.port, "port", "p", "", "name of the port to inspect")
	neighboursCmd.Flags().StringVarP(&neighboursCmdArgs.match, "match", "m", "", "glob pattern filtering neighbour addresses")
	neighboursCmd.MarkFlagRequired("port")
}

func runNeighbours() error {
	target := fmt.Sprintf("http://%s/api/v1/ports/%s/neighbours",
		neighboursCmdArgs.endpoint, url.PathEscape(neighboursCmdArgs.port))
	if neighboursCmdArgs.match != "" {
		target += "?match=" + url.QueryEscape(neighboursCmdArgs.match)
	}

	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("failed to query the inspection API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var info struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&info); err == nil && info.Error != "" {
			return fmt.Errorf("inspection API returned %s: %s", resp.Status, info.Error)
		}

		return fmt.Errorf("inspection API returned %s", resp.Status)
	}

	var neighbours []api.NeighbourInfo
	if err := json.NewDecoder(resp.Body).Decode(&neighbours); err != nil {
		return fmt.Errorf("failed to decode the response: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDR\tLLADDR\tAGE")
	for _, neighbour := range neighbours {
		age := time.Duration(neighbour.AgeMs) * time.Millisecond
		fmt.Fprintf(w, "%s\t%s\t%s\n", neighbour.Addr, neighbour.HWAddr, age)
	}

	return w.Flush()
}
