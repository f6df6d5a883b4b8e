package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dTask/cmd/serve"
	"github.com/ValentinKolb/dTask/cmd/task"
	"github.com/ValentinKolb/dTask/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dtask",
		Short: "client/server task manager",
		Long: fmt.Sprintf(`dTask (v%s)

A task manager with a small binary protocol. Clients send batches of
commands, the server executes them concurrently and answers every command
in its original position. Tasks are kept in memory or replicated with RAFT.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dTask",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dTask v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(task.TaskCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (binary, json)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
	key = "config"
	RootCmd.PersistentFlags().String(key, "", util.WrapString("optional config file (toml, yaml or json), flags and environment variables take precedence"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
