package gen

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate Lantern documentation",
	Long:  `Generate documentation for the lantern CLI, such as man pages`,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
}
