package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/luma/lantern/protocol"
)

var (
	subQueue string
	subCount int
)

func init() {
	flags := SubCmd.Flags()

	flags.StringVarP(&subQueue, "queue", "q", "", "Queue group to join")
	flags.IntVarP(&subCount, "count", "n", 0, "Exit after this many messages, 0 runs forever")
}

var SubCmd = &cobra.Command{
	Use:   "sub <subject>",
	Short: "Subscribe to a subject and print every message",
	Long: `Subscribe to a subject and print every message

Usage
	lantern sub 'updates.>'
	lantern sub updates.eu --queue workers --count 10
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, log, err := connect(cmd)
		if err != nil {
			return err
		}
		defer closeConn(conn, log)

		sub, err := conn.Subscribe(args[0], subQueue)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Listening on [%s] sid %s\n", sub.Subject, sub.SID)

		for n := 1; subCount == 0 || n <= subCount; n++ {
			msg, err := conn.NextMsg()
			if err != nil {
				return err
			}

			printMsg(cmd.OutOrStdout(), n, msg)
		}

		return nil
	},
}

func printMsg(w io.Writer, n int, msg protocol.Message) {
	if msg.GetReplyTo() != "" {
		fmt.Fprintf(w, "[#%d] Received on [%s] reply [%s]\n", n, msg.GetSubject(), msg.GetReplyTo())
	} else {
		fmt.Fprintf(w, "[#%d] Received on [%s]\n", n, msg.GetSubject())
	}

	if hmsg, ok := msg.(*protocol.HMsg); ok && len(hmsg.RawHeaders) > 0 {
		fmt.Fprint(w, string(hmsg.RawHeaders))
	}

	fmt.Fprintln(w, string(msg.GetPayload()))
}
