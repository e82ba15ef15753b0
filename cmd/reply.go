package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var replyQueue string

func init() {
	ReplyCmd.Flags().StringVarP(&replyQueue, "queue", "q", "", "Queue group to join")
}

var ReplyCmd = &cobra.Command{
	Use:   "reply <subject> <response>",
	Short: "Answer every request on a subject with a fixed response",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, log, err := connect(cmd)
		if err != nil {
			return err
		}
		defer closeConn(conn, log)

		if _, err := conn.Subscribe(args[0], replyQueue); err != nil {
			return err
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Replying on [%s]\n", args[0])

		for n := 1; ; n++ {
			msg, err := conn.NextMsg()
			if err != nil {
				return err
			}

			printMsg(cmd.OutOrStdout(), n, msg)

			if msg.GetReplyTo() == "" {
				log.Warn("Message has no reply subject", zap.String("subject", msg.GetSubject()))
				continue
			}

			if err := conn.Publish(msg.GetReplyTo(), []byte(args[1]), ""); err != nil {
				return err
			}
		}
	},
}
