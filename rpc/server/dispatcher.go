package server

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/dTask/lib/store"
	"github.com/ValentinKolb/dTask/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"github.com/sourcegraph/conc/iter"
)

var batchDuration = metrics.GetOrCreateHistogram(`dtask_batch_duration_seconds`)

// NewDispatcherAdapter creates an adapter that executes the commands of a batch concurrently.
//
// A commandTimeout > 0 bounds every single command, a command that takes longer is answered
// with a Failure while its siblings are unaffected. maxConcurrent limits the number of commands
// of one batch that run at the same time, 0 runs all commands of a batch at once.
func NewDispatcherAdapter(commandTimeout time.Duration, maxConcurrent int) IRPCServerAdapter {
	return &dispatcherAdapterImpl{
		commandTimeout: commandTimeout,
		maxConcurrent:  maxConcurrent,
	}
}

type dispatcherAdapterImpl struct {
	commandTimeout time.Duration
	maxConcurrent  int
}

func (d *dispatcherAdapterImpl) Handle(ctx context.Context, req *common.ClientRequest, s store.ITaskStore) *common.ServerResponse {
	// Case empty batch: no store calls
	if req == nil || len(req.Commands) == 0 {
		return &common.ServerResponse{}
	}

	// Check for nil store
	if s == nil {
		results := make([]common.Result, len(req.Commands))
		for i := range results {
			results[i] = common.NewFailure("handler: store is nil")
		}
		return &common.ServerResponse{Results: results}
	}

	defer batchDuration.UpdateDuration(time.Now())

	workers := d.maxConcurrent
	if workers <= 0 || workers > len(req.Commands) {
		workers = len(req.Commands)
	}

	// Map writes result i into slot i, the completion order does not matter
	mapper := iter.Mapper[common.Command, common.Result]{MaxGoroutines: workers}
	results := mapper.Map(req.Commands, func(cmd *common.Command) common.Result {
		res := d.run(ctx, s, *cmd)
		countCommand(*cmd, res)
		return res
	})

	return &common.ServerResponse{Results: results}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// run executes a single command, honoring the command timeout
func (d *dispatcherAdapterImpl) run(ctx context.Context, s store.ITaskStore, cmd common.Command) common.Result {
	if d.commandTimeout <= 0 {
		return execute(ctx, s, cmd)
	}

	ctx, cancel := context.WithTimeout(ctx, d.commandTimeout)
	defer cancel()

	// The store may ignore the context, so the result is awaited separately.
	// A late result is dropped into the buffered channel.
	done := make(chan common.Result, 1)
	go func() {
		done <- execute(ctx, s, cmd)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return common.NewFailure(fmt.Sprintf("%s: %v", commandKind(cmd), ctx.Err()))
	}
}

// execute maps a command to its store operation. A panic of the store is
// converted into a Failure.
func execute(ctx context.Context, s store.ITaskStore, cmd common.Command) (res common.Result) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("Recovered from panic while executing %s: %v", commandKind(cmd), r)
			res = common.NewFailure(fmt.Sprintf("%s: internal error: %v", commandKind(cmd), r))
		}
	}()

	switch c := cmd.(type) {
	case common.CreateTask:
		return common.NewTaskResult(s.Create(ctx, c.Title, c.Priority))
	case common.ListPending:
		return common.NewTaskListResult(s.ListPending(ctx))
	case common.ListCompleted:
		return common.NewTaskListResult(s.ListCompleted(ctx))
	case common.MarkDone:
		return common.NewMutationResult(s.MarkDone(ctx, c.ID))
	case common.RenameTask:
		return common.NewMutationResult(s.RenameTitle(ctx, c.ID, c.Title))
	case common.SetPriority:
		return common.NewMutationResult(s.SetPriority(ctx, c.ID, c.Priority))
	case common.GetByID:
		return common.NewTaskResult(s.GetByID(ctx, c.ID))
	default:
		return common.NewFailure(fmt.Sprintf("unsupported command %T", cmd))
	}
}

// commandKind returns the name of the command used in messages and metrics
func commandKind(cmd common.Command) string {
	if cmd == nil {
		return common.CmdTUnknown.String()
	}
	return cmd.Type().String()
}

// countCommand updates the per kind and outcome command counter
func countCommand(cmd common.Command, res common.Result) {
	outcome := "success"
	if _, ok := res.(common.Failure); ok {
		outcome = "failure"
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`dtask_commands_total{kind=%q,outcome=%q}`, commandKind(cmd), outcome)).Inc()
}
