package cmd

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var InfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Connect and print what the server advertised in INFO",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, log, err := connect(cmd)
		if err != nil {
			return err
		}
		defer closeConn(conn, log)

		ep, _ := conn.CurrentEndpoint()

		body, err := json.MarshalIndent(struct {
			Endpoint string      `json:"endpoint"`
			Info     interface{} `json:"info"`
		}{ep.String(), conn.ServerInfo()}, "", "  ")
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(body))

		return nil
	},
}
