package gen

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate documentation for parcel",
	Long:  `Generate documentation for parcel`,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
}
