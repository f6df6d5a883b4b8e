package task

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dTask/cmd/util"
	"github.com/ValentinKolb/dTask/lib/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	createCmd = &cobra.Command{
		Use:   "create [title]",
		Short: "Creates a new task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			priority, err := store.ParsePriority(viper.GetString("priority"))
			if err != nil {
				return err
			}
			task, err := rpcClient.Create(commandContext(cmd), strings.Join(args, " "), priority)
			if err != nil {
				return err
			}
			fmt.Println(task.Format())
			return nil
		},
	}
	pendingCmd = &cobra.Command{
		Use:   "pending",
		Short: "Lists all tasks that are not done yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := rpcClient.ListPending(commandContext(cmd))
			if err != nil {
				return err
			}
			printTasks(tasks)
			return nil
		},
	}
	completedCmd = &cobra.Command{
		Use:   "completed",
		Short: "Lists all completed tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := rpcClient.ListCompleted(commandContext(cmd))
			if err != nil {
				return err
			}
			printTasks(tasks)
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [id]",
		Short: "Reads a single task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			task, err := rpcClient.GetByID(commandContext(cmd), id)
			if err != nil {
				return err
			}
			fmt.Println(task.Format())
			return nil
		},
	}
	doneCmd = &cobra.Command{
		Use:   "done [id]",
		Short: "Marks a task as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			task, err := rpcClient.MarkDone(commandContext(cmd), id)
			if err != nil {
				return err
			}
			printMutation(id, task)
			return nil
		},
	}
	renameCmd = &cobra.Command{
		Use:   "rename [id] [title]",
		Short: "Replaces the title of a task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			task, err := rpcClient.RenameTitle(commandContext(cmd), id, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			printMutation(id, task)
			return nil
		},
	}
	priorityCmd = &cobra.Command{
		Use:   "priority [id] [low|regular|urgent]",
		Short: "Changes the priority of a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			priority, err := store.ParsePriority(args[1])
			if err != nil {
				return err
			}
			task, err := rpcClient.SetPriority(commandContext(cmd), id, priority)
			if err != nil {
				return err
			}
			printMutation(id, task)
			return nil
		},
	}
)

func init() {
	createCmd.Flags().StringP("priority", "p", "regular", util.WrapString("Priority of the new task (low, regular, urgent)"))
}

func parseTaskID(s string) (store.TaskID, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q: %w", s, err)
	}
	return store.TaskID(id), nil
}

func printTasks(tasks []store.Task) {
	if len(tasks) == 0 {
		fmt.Println("no tasks")
		return
	}
	for _, t := range tasks {
		fmt.Println(t.Format())
	}
}

// printMutation prints the updated task, stores that only acknowledge a mutation return the zero Task
func printMutation(id store.TaskID, task store.Task) {
	if task.ID == 0 {
		fmt.Printf("#%d updated\n", id)
		return
	}
	fmt.Println(task.Format())
}
