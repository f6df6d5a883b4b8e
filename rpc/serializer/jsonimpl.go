package serializer

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dTask/lib/store"
	"github.com/ValentinKolb/dTask/rpc/common"
)

// NewJSONSerializer creates a new serializer using json encoding.
// It is slower than the binary serializer but useful for debugging.
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IRPCSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// jsonCommand is the json representation of every command variant.
// Type holds CommandType.String(), unused fields are omitted.
type jsonCommand struct {
	Type     string         `json:"type"`
	ID       store.TaskID   `json:"id,omitempty"`
	Title    string         `json:"title,omitempty"`
	Priority store.Priority `json:"priority"`
}

// jsonResult is the json representation of a Success or Failure.
type jsonResult struct {
	Ok    bool         `json:"ok"`
	Error string       `json:"error,omitempty"`
	Kind  string       `json:"kind,omitempty"` // task, tasks or ack
	Task  *store.Task  `json:"task,omitempty"`
	Tasks []store.Task `json:"tasks,omitempty"`
}

const (
	jsonKindTask  = "task"
	jsonKindTasks = "tasks"
	jsonKindAck   = "ack"
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) SerializeRequest(req common.ClientRequest) ([]byte, error) {
	commands := make([]jsonCommand, len(req.Commands))
	for i, cmd := range req.Commands {
		jc := jsonCommand{}
		switch c := cmd.(type) {
		case common.CreateTask:
			jc.Title, jc.Priority = c.Title, c.Priority
		case common.ListPending, common.ListCompleted:
		case common.MarkDone:
			jc.ID = c.ID
		case common.RenameTask:
			jc.ID, jc.Title = c.ID, c.Title
		case common.SetPriority:
			jc.ID, jc.Priority = c.ID, c.Priority
		case common.GetByID:
			jc.ID = c.ID
		default:
			return nil, fmt.Errorf("%w: command %d: unsupported command %T", ErrEncode, i, cmd)
		}
		if !jc.Priority.Valid() {
			return nil, fmt.Errorf("%w: command %d: unknown priority %d", ErrEncode, i, uint8(jc.Priority))
		}
		jc.Type = cmd.Type().String()
		commands[i] = jc
	}
	return json.Marshal(commands)
}

func (j jsonSerializerImpl) DeserializeRequest(b []byte, req *common.ClientRequest) error {
	var raw []jsonCommand
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var commands []common.Command
	for i, jc := range raw {
		if !jc.Priority.Valid() {
			return fmt.Errorf("%w: command %d: unknown priority %d", ErrDecode, i, uint8(jc.Priority))
		}
		cmd, err := commandFromJSON(jc)
		if err != nil {
			return fmt.Errorf("command %d: %w", i, err)
		}
		commands = append(commands, cmd)
	}

	*req = common.ClientRequest{Commands: commands}
	return nil
}

func (j jsonSerializerImpl) SerializeResponse(resp common.ServerResponse) ([]byte, error) {
	results := make([]jsonResult, len(resp.Results))
	for i, res := range resp.Results {
		switch r := res.(type) {
		case common.Failure:
			results[i] = jsonResult{Error: r.Message}
		case common.Success:
			jr := jsonResult{Ok: true}
			switch v := r.Value.(type) {
			case common.TaskValue:
				task := v.Task
				jr.Kind, jr.Task = jsonKindTask, &task
			case common.TaskListValue:
				jr.Kind, jr.Tasks = jsonKindTasks, v.Tasks
			case common.AckValue:
				jr.Kind = jsonKindAck
			default:
				return nil, fmt.Errorf("%w: result %d: unsupported value %T", ErrEncode, i, r.Value)
			}
			results[i] = jr
		default:
			return nil, fmt.Errorf("%w: result %d: unsupported result %T", ErrEncode, i, res)
		}
	}
	return json.Marshal(results)
}

func (j jsonSerializerImpl) DeserializeResponse(b []byte, resp *common.ServerResponse) error {
	var raw []jsonResult
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var results []common.Result
	for i, jr := range raw {
		if !jr.Ok {
			results = append(results, common.Failure{Message: jr.Error})
			continue
		}
		switch jr.Kind {
		case jsonKindTask:
			if jr.Task == nil {
				return fmt.Errorf("%w: result %d: missing task", ErrDecode, i)
			}
			results = append(results, common.Success{Value: common.TaskValue{Task: *jr.Task}})
		case jsonKindTasks:
			results = append(results, common.Success{Value: common.TaskListValue{Tasks: jr.Tasks}})
		case jsonKindAck:
			results = append(results, common.Success{Value: common.AckValue{}})
		default:
			return fmt.Errorf("%w: result %d: unknown kind %q", ErrDecode, i, jr.Kind)
		}
	}

	*resp = common.ServerResponse{Results: results}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func commandFromJSON(jc jsonCommand) (common.Command, error) {
	for _, t := range common.AllCommandTypes {
		if t.String() != jc.Type {
			continue
		}
		switch t {
		case common.CmdTCreateTask:
			return common.CreateTask{Title: jc.Title, Priority: jc.Priority}, nil
		case common.CmdTListPending:
			return common.ListPending{}, nil
		case common.CmdTListCompleted:
			return common.ListCompleted{}, nil
		case common.CmdTMarkDone:
			return common.MarkDone{ID: jc.ID}, nil
		case common.CmdTRenameTask:
			return common.RenameTask{ID: jc.ID, Title: jc.Title}, nil
		case common.CmdTSetPriority:
			return common.SetPriority{ID: jc.ID, Priority: jc.Priority}, nil
		case common.CmdTGetByID:
			return common.GetByID{ID: jc.ID}, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown command type %q", ErrDecode, jc.Type)
}
