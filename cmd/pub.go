package cmd

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var pubReplyTo string

func init() {
	PubCmd.Flags().StringVarP(&pubReplyTo, "reply", "r", "", "Subject subscribers should reply on")
}

var PubCmd = &cobra.Command{
	Use:   "pub <subject> [payload]",
	Short: "Publish a message",
	Long: `Publish a message

The payload is read from stdin when it isn't given as an argument.

Usage
	lantern pub updates.eu "hello"
	echo hello | lantern pub updates.eu
`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			payload []byte
			err     error
		)

		if len(args) == 2 {
			payload = []byte(args[1])
		} else if payload, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return err
		}

		conn, log, err := connect(cmd)
		if err != nil {
			return err
		}
		defer closeConn(conn, log)

		if err := conn.Publish(args[0], payload, pubReplyTo); err != nil {
			return err
		}

		// Flush the publish through the server before hanging up
		if err := conn.Ping(); err != nil {
			return err
		}

		log.Info("Published", zap.String("subject", args[0]), zap.Int("bytes", len(payload)))

		return nil
	},
}
