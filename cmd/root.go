package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luma/parcel/cmd/gen"
)

// Path of the KEY=VALUE config file shared by the server and the client
var configPath string

var RootCmd = &cobra.Command{
	Use:   "parcel",
	Short: "Exchange messages and packets over a small binary TCP protocol",
	Long: `Parcel is a client and a server that exchange NUL-terminated messages and
packets of length-prefixed fields over TCP.

Settings are read from a KEY=VALUE config file, PARCEL_ prefixed
environment variables override the file and flags override both.`,
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.txt", "The KEY=VALUE config file")

	RootCmd.AddCommand(ServerCmd)
	RootCmd.AddCommand(ClientCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
