package task

import (
	"testing"

	"github.com/ValentinKolb/dTask/lib/store"
	"github.com/ValentinKolb/dTask/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBatchCommand(t *testing.T) {
	tests := []struct {
		in   string
		want common.Command
	}{
		{"create:Buy milk", common.CreateTask{Title: "Buy milk", Priority: store.PriorityRegular}},
		{"create:Buy milk:low", common.CreateTask{Title: "Buy milk", Priority: store.PriorityLow}},
		{"create:Meeting: 10:00:u", common.CreateTask{Title: "Meeting: 10:00", Priority: store.PriorityUrgent}},
		{"create:Read chapter 1:2", common.CreateTask{Title: "Read chapter 1", Priority: store.PriorityUrgent}},
		{"create:Note: call back", common.CreateTask{Title: "Note: call back", Priority: store.PriorityRegular}},
		{"pending", common.ListPending{}},
		{"COMPLETED", common.ListCompleted{}},
		{"get:7", common.GetByID{ID: 7}},
		{"done:#3", common.MarkDone{ID: 3}},
		{"rename:1:Buy oat milk", common.RenameTask{ID: 1, Title: "Buy oat milk"}},
		{"rename:1:a:b", common.RenameTask{ID: 1, Title: "a:b"}},
		{"priority:2:urgent", common.SetPriority{ID: 2, Priority: store.PriorityUrgent}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBatchCommand(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBatchCommandErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"delete:1",
		"get",
		"get:abc",
		"done:-1",
		"rename:1",
		"rename:x:title",
		"priority:1",
		"priority:1:high",
	} {
		_, err := ParseBatchCommand(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseBatch(t *testing.T) {
	cmds, err := ParseBatch([]string{"create:Buy milk:low", "pending", "get:1"})
	require.NoError(t, err)
	assert.Equal(t, []common.Command{
		common.CreateTask{Title: "Buy milk", Priority: store.PriorityLow},
		common.ListPending{},
		common.GetByID{ID: 1},
	}, cmds)

	_, err = ParseBatch([]string{"pending", "get:x"})
	assert.ErrorContains(t, err, "command 1")
}

func TestFormatResult(t *testing.T) {
	task := store.Task{ID: 1, Title: "Buy milk", Priority: store.PriorityLow}

	assert.Equal(t, task.Format(), FormatResult(common.GetByID{ID: 1}, common.Success{Value: common.TaskValue{Task: task}}))
	assert.Equal(t, "error: not found", FormatResult(common.GetByID{ID: 1}, common.Failure{Message: "not found"}))
	assert.Equal(t, "done: ok", FormatResult(common.MarkDone{ID: 1}, common.Success{Value: common.AckValue{}}))
	assert.Equal(t, "pending: no tasks", FormatResult(common.ListPending{}, common.Success{Value: common.TaskListValue{}}))
	assert.Equal(t, "pending: 1 task(s)\n    "+task.Format(),
		FormatResult(common.ListPending{}, common.Success{Value: common.TaskListValue{Tasks: []store.Task{task}}}))
}
