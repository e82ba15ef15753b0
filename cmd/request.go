package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/lantern/client"
)

var requestReplyTo string

func init() {
	RequestCmd.Flags().StringVarP(&requestReplyTo, "inbox", "i", "", "Reply subject to use instead of a fresh inbox")
}

var RequestCmd = &cobra.Command{
	Use:   "request <subject> [payload]",
	Short: "Send a request and wait for a single reply",
	Long: `Send a request and wait for a single reply

Set LANTERN_READ_TIMEOUT to bound how long to wait.

Usage
	lantern request time.now ""
`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload []byte
		if len(args) == 2 {
			payload = []byte(args[1])
		}

		conn, log, err := connect(cmd)
		if err != nil {
			return err
		}
		defer closeConn(conn, log)

		started := time.Now()

		reply, err := conn.Request(args[0], payload, requestReplyTo)
		if errors.Is(err, client.ErrNoResponders) {
			return fmt.Errorf("Nobody is listening on [%s]", args[0])
		}

		if err != nil {
			return err
		}

		log.Debug("Got reply", zap.Duration("rtt", time.Since(started)))
		printMsg(cmd.OutOrStdout(), 1, reply)

		return nil
	},
}
