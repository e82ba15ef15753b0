package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luma/lantern/internal/meta"
)

var versionJSON bool

func init() {
	VersionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print the build info as JSON")
}

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build info",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := meta.GetInfo()

		if !versionJSON {
			fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return nil
		}

		body, err := json.Marshal(info)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(body))

		return nil
	},
}
