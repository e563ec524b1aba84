package main

import (
	"fmt"
	"os"

	"github.com/amoylab/tether/internal/common/cnst"
	"github.com/amoylab/tether/pkg/version"
	"github.com/spf13/cobra"
)

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of tether",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", cnst.CommandName, version.Get())
		},
	}

	rootCmd = &cobra.Command{
		Use:          cnst.CommandName,
		SilenceUsage: true,
		Short:        "Session and connection client",
		Long:         `tether keeps an authenticated session alive: it refreshes tokens on demand and holds a persistent connection open`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", cnst.TetherYaml, "path to configuration file, like /etc/tether/tether.yaml")
	rootCmd.AddCommand(versionCmd, runCmd, loginCmd, requestCmd, logoutCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
