package serializer

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/ValentinKolb/dTask/lib/store"
	"github.com/ValentinKolb/dTask/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
// All integers are big endian, strings and sequences are prefixed with their uint32 length.
type binarySerializerImpl struct {
}

// Result and value tags
const (
	resultTSuccess byte = 1
	resultTFailure byte = 2

	valueTTask     byte = 1
	valueTTaskList byte = 2
	valueTAck      byte = 3
)

// Smallest possible encoding of a sequence element, used to reject
// counts that the remaining payload could never hold
const (
	minCommandBytes = 1     // tag only (ListPending, ListCompleted)
	minResultBytes  = 1 + 1 // Success tag + Ack tag
)

var minTaskBytes = store.Task{}.SizeBytes()

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) SerializeRequest(req common.ClientRequest) ([]byte, error) {
	if uint64(len(req.Commands)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: too many commands", ErrEncode)
	}

	size := 4
	for _, cmd := range req.Commands {
		size += commandSizeBytes(cmd)
	}

	result := make([]byte, 0, size)
	result = binary.BigEndian.AppendUint32(result, uint32(len(req.Commands)))
	for i, cmd := range req.Commands {
		var err error
		if result, err = appendCommand(result, cmd); err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
	}
	return result, nil
}

func (b binarySerializerImpl) DeserializeRequest(data []byte, req *common.ClientRequest) error {
	d := decoder{data: data}

	n := d.count(minCommandBytes)
	var commands []common.Command
	if n > 0 {
		commands = make([]common.Command, 0, n)
	}
	for i := 0; i < n && d.err == nil; i++ {
		cmd := d.command()
		if d.err == nil {
			commands = append(commands, cmd)
		}
	}
	if err := d.finish(); err != nil {
		return err
	}

	*req = common.ClientRequest{Commands: commands}
	return nil
}

func (b binarySerializerImpl) SerializeResponse(resp common.ServerResponse) ([]byte, error) {
	if uint64(len(resp.Results)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: too many results", ErrEncode)
	}

	size := 4
	for _, res := range resp.Results {
		size += resultSizeBytes(res)
	}

	result := make([]byte, 0, size)
	result = binary.BigEndian.AppendUint32(result, uint32(len(resp.Results)))
	for i, res := range resp.Results {
		var err error
		if result, err = appendResult(result, res); err != nil {
			return nil, fmt.Errorf("result %d: %w", i, err)
		}
	}
	return result, nil
}

func (b binarySerializerImpl) DeserializeResponse(data []byte, resp *common.ServerResponse) error {
	d := decoder{data: data}

	n := d.count(minResultBytes)
	var results []common.Result
	if n > 0 {
		results = make([]common.Result, 0, n)
	}
	for i := 0; i < n && d.err == nil; i++ {
		res := d.result()
		if d.err == nil {
			results = append(results, res)
		}
	}
	if err := d.finish(); err != nil {
		return err
	}

	*resp = common.ServerResponse{Results: results}
	return nil
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

func appendString(b []byte, s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("%w: string is not valid utf-8", ErrEncode)
	}
	if uint64(len(s)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: string too long", ErrEncode)
	}
	b = binary.BigEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...), nil
}

func appendPriority(b []byte, p store.Priority) ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %d", ErrEncode, uint8(p))
	}
	return append(b, byte(p)), nil
}

func appendTask(b []byte, task store.Task) ([]byte, error) {
	if !task.Priority.Valid() {
		return nil, fmt.Errorf("%w: task %d has unknown priority %d", ErrEncode, task.ID, uint8(task.Priority))
	}
	if !utf8.ValidString(task.Title) {
		return nil, fmt.Errorf("%w: task %d title is not valid utf-8", ErrEncode, task.ID)
	}
	return task.AppendBinary(b), nil
}

func appendCommand(b []byte, cmd common.Command) ([]byte, error) {
	var err error
	switch c := cmd.(type) {
	case common.CreateTask:
		b = append(b, byte(common.CmdTCreateTask))
		if b, err = appendString(b, c.Title); err != nil {
			return nil, err
		}
		return appendPriority(b, c.Priority)
	case common.ListPending:
		return append(b, byte(common.CmdTListPending)), nil
	case common.ListCompleted:
		return append(b, byte(common.CmdTListCompleted)), nil
	case common.MarkDone:
		b = append(b, byte(common.CmdTMarkDone))
		return binary.BigEndian.AppendUint64(b, uint64(c.ID)), nil
	case common.RenameTask:
		b = append(b, byte(common.CmdTRenameTask))
		b = binary.BigEndian.AppendUint64(b, uint64(c.ID))
		return appendString(b, c.Title)
	case common.SetPriority:
		b = append(b, byte(common.CmdTSetPriority))
		b = binary.BigEndian.AppendUint64(b, uint64(c.ID))
		return appendPriority(b, c.Priority)
	case common.GetByID:
		b = append(b, byte(common.CmdTGetByID))
		return binary.BigEndian.AppendUint64(b, uint64(c.ID)), nil
	default:
		return nil, fmt.Errorf("%w: unsupported command %T", ErrEncode, cmd)
	}
}

func appendResult(b []byte, res common.Result) ([]byte, error) {
	switch r := res.(type) {
	case common.Success:
		b = append(b, resultTSuccess)
		return appendValue(b, r.Value)
	case common.Failure:
		b = append(b, resultTFailure)
		return appendString(b, r.Message)
	default:
		return nil, fmt.Errorf("%w: unsupported result %T", ErrEncode, res)
	}
}

func appendValue(b []byte, val common.Value) ([]byte, error) {
	switch v := val.(type) {
	case common.TaskValue:
		b = append(b, valueTTask)
		return appendTask(b, v.Task)
	case common.TaskListValue:
		if uint64(len(v.Tasks)) > math.MaxUint32 {
			return nil, fmt.Errorf("%w: too many tasks", ErrEncode)
		}
		b = append(b, valueTTaskList)
		b = binary.BigEndian.AppendUint32(b, uint32(len(v.Tasks)))
		var err error
		for _, task := range v.Tasks {
			if b, err = appendTask(b, task); err != nil {
				return nil, err
			}
		}
		return b, nil
	case common.AckValue:
		return append(b, valueTAck), nil
	default:
		return nil, fmt.Errorf("%w: unsupported value %T", ErrEncode, val)
	}
}

// commandSizeBytes returns the encoded size of a command (used to presize buffers)
func commandSizeBytes(cmd common.Command) int {
	switch c := cmd.(type) {
	case common.CreateTask:
		return 1 + 4 + len(c.Title) + 1
	case common.RenameTask:
		return 1 + 8 + 4 + len(c.Title)
	case common.SetPriority:
		return 1 + 8 + 1
	case common.MarkDone, common.GetByID:
		return 1 + 8
	default:
		return 1
	}
}

// resultSizeBytes returns the encoded size of a result (used to presize buffers)
func resultSizeBytes(res common.Result) int {
	switch r := res.(type) {
	case common.Failure:
		return 1 + 4 + len(r.Message)
	case common.Success:
		switch v := r.Value.(type) {
		case common.TaskValue:
			return 2 + v.Task.SizeBytes()
		case common.TaskListValue:
			size := 2 + 4
			for _, task := range v.Tasks {
				size += task.SizeBytes()
			}
			return size
		}
	}
	return 2
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

// decoder reads values from data. After the first error all reads return zero values
// and err holds the error.
type decoder struct {
	data []byte
	pos  int
	err  error
}

func (d *decoder) fail(format string, args ...interface{}) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
	}
}

func (d *decoder) remaining() int {
	return len(d.data) - d.pos
}

func (d *decoder) take(n int, what string) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.remaining() < n {
		d.fail("unexpected end of data while reading %s at offset %d", what, d.pos)
		return nil
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) u8(what string) byte {
	b := d.take(1, what)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) u32(what string) uint32 {
	b := d.take(4, what)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *decoder) u64(what string) uint64 {
	b := d.take(8, what)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (d *decoder) id() store.TaskID {
	return store.TaskID(d.u64("task id"))
}

// count reads a sequence length and checks that the remaining data could hold it
func (d *decoder) count(minElemBytes int) int {
	n := d.u32("sequence length")
	if d.err != nil {
		return 0
	}
	if uint64(n)*uint64(minElemBytes) > uint64(d.remaining()) {
		d.fail("sequence length %d exceeds remaining %d bytes", n, d.remaining())
		return 0
	}
	return int(n)
}

func (d *decoder) str(what string) string {
	n := d.u32(what + " length")
	if d.err != nil {
		return ""
	}
	if uint64(n) > uint64(d.remaining()) {
		d.fail("%s length %d exceeds remaining %d bytes", what, n, d.remaining())
		return ""
	}
	b := d.take(int(n), what)
	if !utf8.Valid(b) {
		d.fail("%s is not valid utf-8", what)
		return ""
	}
	return string(b)
}

func (d *decoder) priority() store.Priority {
	p := store.Priority(d.u8("priority"))
	if d.err == nil && !p.Valid() {
		d.fail("unknown priority %d", uint8(p))
	}
	return p
}

func (d *decoder) task() store.Task {
	if d.err != nil {
		return store.Task{}
	}
	var task store.Task
	n, err := task.ReadBinary(d.data[d.pos:])
	if err != nil {
		d.fail("invalid task at offset %d: %v", d.pos, err)
		return store.Task{}
	}
	d.pos += n
	return task
}

func (d *decoder) command() common.Command {
	tag := common.CommandType(d.u8("command tag"))
	if d.err != nil {
		return nil
	}
	switch tag {
	case common.CmdTCreateTask:
		title := d.str("title")
		return common.CreateTask{Title: title, Priority: d.priority()}
	case common.CmdTListPending:
		return common.ListPending{}
	case common.CmdTListCompleted:
		return common.ListCompleted{}
	case common.CmdTMarkDone:
		return common.MarkDone{ID: d.id()}
	case common.CmdTRenameTask:
		id := d.id()
		return common.RenameTask{ID: id, Title: d.str("title")}
	case common.CmdTSetPriority:
		id := d.id()
		return common.SetPriority{ID: id, Priority: d.priority()}
	case common.CmdTGetByID:
		return common.GetByID{ID: d.id()}
	default:
		d.fail("unknown command tag %d", uint8(tag))
		return nil
	}
}

func (d *decoder) result() common.Result {
	tag := d.u8("result tag")
	if d.err != nil {
		return nil
	}
	switch tag {
	case resultTSuccess:
		return common.Success{Value: d.value()}
	case resultTFailure:
		return common.Failure{Message: d.str("failure message")}
	default:
		d.fail("unknown result tag %d", tag)
		return nil
	}
}

func (d *decoder) value() common.Value {
	tag := d.u8("value tag")
	if d.err != nil {
		return nil
	}
	switch tag {
	case valueTTask:
		return common.TaskValue{Task: d.task()}
	case valueTTaskList:
		n := d.count(minTaskBytes)
		var tasks []store.Task
		if n > 0 {
			tasks = make([]store.Task, 0, n)
		}
		for i := 0; i < n && d.err == nil; i++ {
			task := d.task()
			if d.err == nil {
				tasks = append(tasks, task)
			}
		}
		return common.TaskListValue{Tasks: tasks}
	case valueTAck:
		return common.AckValue{}
	default:
		d.fail("unknown value tag %d", tag)
		return nil
	}
}

// finish reports the first error or trailing bytes
func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if d.remaining() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrDecode, d.remaining())
	}
	return nil
}
