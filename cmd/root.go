package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/htrie/cmd/bench"
	"github.com/ValentinKolb/htrie/cmd/demo"
	"github.com/ValentinKolb/htrie/cmd/stress"
	"github.com/ValentinKolb/htrie/cmd/util"
	"github.com/ValentinKolb/htrie/lib/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "htrie",
		Short: "lock-free concurrent hash-trie",
		Long: fmt.Sprintf(`htrie (v%s)

A lock-free concurrent hash-trie written in Go. Lookups are wait-free,
writers retry a bounded number of CAS attempts per slot and removed
entries are recycled through epoch based reclamation.

Every flag can also be set via environment variables in the format
HTRIE_<flag> (e.g. HTRIE_FAIL_LIMIT=40), or in a .env file.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of htrie",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("htrie v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(stress.StressCmd)
	RootCmd.AddCommand(demo.DemoCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
	util.SetupTableFlags(RootCmd)
}

// setup binds the flags of the executed command and configures the loggers
func setup(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
