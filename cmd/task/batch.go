package task

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dTask/lib/store"
	"github.com/ValentinKolb/dTask/rpc/common"
	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch [command]...",
	Short: "Sends several commands in a single request",
	Long: `Sends several commands in a single request. The server runs them concurrently,
the results are printed in the order of the arguments.

Commands:
  create:TITLE[:PRIORITY]
  pending
  completed
  get:ID
  done:ID
  rename:ID:TITLE
  priority:ID:PRIORITY

Example:
  dtask task batch "create:Buy milk:low" pending "rename:1:Buy oat milk"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmds, err := ParseBatch(args)
		if err != nil {
			return err
		}
		results, err := rpcClient.Execute(commandContext(cmd), cmds...)
		if err != nil {
			return err
		}
		for i, res := range results {
			fmt.Printf("[%d] %s\n", i, FormatResult(cmds[i], res))
		}
		return nil
	},
}

// ParseBatch parses all arguments of the batch command
func ParseBatch(args []string) ([]common.Command, error) {
	cmds := make([]common.Command, 0, len(args))
	for i, arg := range args {
		c, err := ParseBatchCommand(arg)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

// ParseBatchCommand parses a single command like 'rename:3:New title'.
// Titles may contain colons. For create the last segment is only used as
// priority if it is a valid priority.
func ParseBatchCommand(s string) (common.Command, error) {
	kind, rest, _ := strings.Cut(s, ":")

	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "create":
		title, priority := rest, store.PriorityRegular
		if i := strings.LastIndex(rest, ":"); i >= 0 {
			if p, err := store.ParsePriority(rest[i+1:]); err == nil {
				title, priority = rest[:i], p
			}
		}
		return common.CreateTask{Title: title, Priority: priority}, nil

	case "pending":
		return common.ListPending{}, nil

	case "completed":
		return common.ListCompleted{}, nil

	case "get":
		id, err := parseTaskID(rest)
		if err != nil {
			return nil, err
		}
		return common.GetByID{ID: id}, nil

	case "done":
		id, err := parseTaskID(rest)
		if err != nil {
			return nil, err
		}
		return common.MarkDone{ID: id}, nil

	case "rename":
		idStr, title, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("invalid rename command %q (expected rename:ID:TITLE)", s)
		}
		id, err := parseTaskID(idStr)
		if err != nil {
			return nil, err
		}
		return common.RenameTask{ID: id, Title: title}, nil

	case "priority":
		idStr, level, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("invalid priority command %q (expected priority:ID:PRIORITY)", s)
		}
		id, err := parseTaskID(idStr)
		if err != nil {
			return nil, err
		}
		p, err := store.ParsePriority(level)
		if err != nil {
			return nil, err
		}
		return common.SetPriority{ID: id, Priority: p}, nil

	default:
		return nil, fmt.Errorf("unknown command %q", kind)
	}
}

// FormatResult renders the result of cmd as a single line (lists span several lines)
func FormatResult(cmd common.Command, res common.Result) string {
	switch r := res.(type) {
	case common.Failure:
		return "error: " + r.Message
	case common.Success:
		switch v := r.Value.(type) {
		case common.TaskValue:
			return v.Task.Format()
		case common.TaskListValue:
			if len(v.Tasks) == 0 {
				return cmd.Type().String() + ": no tasks"
			}
			var sb strings.Builder
			sb.WriteString(fmt.Sprintf("%s: %d task(s)", cmd.Type(), len(v.Tasks)))
			for _, t := range v.Tasks {
				sb.WriteString("\n    ")
				sb.WriteString(t.Format())
			}
			return sb.String()
		case common.AckValue:
			return cmd.Type().String() + ": ok"
		}
	}
	return fmt.Sprintf("unexpected result %T", res)
}
