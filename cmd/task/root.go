package task

import (
	"context"

	"github.com/ValentinKolb/dTask/cmd/util"
	"github.com/ValentinKolb/dTask/rpc/client"
	"github.com/ValentinKolb/dTask/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Logger = logger.GetLogger("cli")

var (
	rpcClient client.ITaskClient

	// TaskCommands represents the task command group
	TaskCommands = &cobra.Command{
		Use:                "task",
		Short:              "Perform task operations against a dTask server",
		PersistentPreRunE:  setupTaskClient,
		PersistentPostRunE: closeTaskClient,
	}
)

func init() {
	// Add common RPC flags to the task command
	util.SetupRPCClientFlags(TaskCommands)
	TaskCommands.PersistentFlags().String("log-level", "warn", util.WrapString("LogLevel is the level at which client logs will be output (debug, info, warn, error)"))

	// Add subcommands
	TaskCommands.AddCommand(createCmd)
	TaskCommands.AddCommand(pendingCmd)
	TaskCommands.AddCommand(completedCmd)
	TaskCommands.AddCommand(getCmd)
	TaskCommands.AddCommand(doneCmd)
	TaskCommands.AddCommand(renameCmd)
	TaskCommands.AddCommand(priorityCmd)
	TaskCommands.AddCommand(batchCmd)
	TaskCommands.AddCommand(perfTestCmd)
}

// setupTaskClient initializes the RPC task client
func setupTaskClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetClientTransport()
	if err != nil {
		return err
	}

	// Create the task client
	rpcClient, err = client.NewRPCTaskStore(
		*config,
		t,
		s,
	)

	return err
}

func closeTaskClient(_ *cobra.Command, _ []string) error {
	if rpcClient == nil {
		return nil
	}
	return rpcClient.Close()
}

// commandContext returns the context for a single cli invocation
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
