package store

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTitleBytes is the maximum length of a task title in bytes
const MaxTitleBytes = 1024

// --------------------------------------------------------------------------
// Task Types
// --------------------------------------------------------------------------

// TaskID identifies a task. Ids are assigned by the store and start at 1, 0 is never a valid id.
type TaskID uint64

// Priority is the urgency of a task. It is encoded as a single byte on the wire.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityRegular
	PriorityUrgent
)

// Valid returns whether p is one of the known priorities
func (p Priority) Valid() bool {
	return p <= PriorityUrgent
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityRegular:
		return "Regular"
	case PriorityUrgent:
		return "Urgent"
	default:
		return fmt.Sprintf("Priority(%d)", uint8(p))
	}
}

// ParsePriority converts a (case-insensitive) name or number into a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "l", "0":
		return PriorityLow, nil
	case "regular", "r", "1":
		return PriorityRegular, nil
	case "urgent", "u", "2":
		return PriorityUrgent, nil
	default:
		return 0, fmt.Errorf("invalid priority %q (expected one of: low, regular, urgent)", s)
	}
}

// Task is a snapshot of a task record.
type Task struct {
	ID        TaskID    `json:"id"`
	Title     string    `json:"title"`
	Priority  Priority  `json:"priority"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

// Format returns a one line, human-readable representation of the task
func (t Task) Format() string {
	status := " "
	if t.Completed {
		status = "x"
	}
	return fmt.Sprintf("#%d [%s] [%s]: %s", t.ID, status, t.Priority, t.Title)
}

// SortByID sorts tasks in place by ascending id
func SortByID(tasks []Task) {
	slices.SortFunc(tasks, func(a, b Task) int {
		return cmp.Compare(a.ID, b.ID)
	})
}

// --------------------------------------------------------------------------
// Validation
// --------------------------------------------------------------------------

// ValidateTitle checks a title before it is written to a store
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return NewError(RetCInvalidArgument, "title must not be empty")
	}
	if len(title) > MaxTitleBytes {
		return NewError(RetCInvalidArgument, fmt.Sprintf("title is longer than %d bytes", MaxTitleBytes))
	}
	if !utf8.ValidString(title) {
		return NewError(RetCInvalidArgument, "title is not valid utf-8")
	}
	return nil
}

// ValidatePriority checks a priority before it is written to a store
func ValidatePriority(p Priority) error {
	if !p.Valid() {
		return NewError(RetCInvalidArgument, fmt.Sprintf("unknown priority %d", uint8(p)))
	}
	return nil
}

// --------------------------------------------------------------------------
// Binary Layout
// --------------------------------------------------------------------------

// The binary layout of a task is shared by the rpc serializer and the replicated store:
// - 8 bytes: id (uint64, big endian)
// - 4 bytes: title length (uint32, big endian)
// - N bytes: title (utf-8)
// - 1 byte:  priority
// - 1 byte:  completed (0 or 1)
// - 8 bytes: created at, unix seconds (int64, big endian)
// - 4 bytes: created at, nanoseconds (uint32, big endian)

// taskFixedBytes is the size of all fixed width task fields
const taskFixedBytes = 8 + 4 + 1 + 1 + 8 + 4

// ErrMalformedTask is returned by ReadBinary if the data does not contain a valid task
var ErrMalformedTask = errors.New("malformed task")

// SizeBytes returns the exact number of bytes AppendBinary will append
func (t Task) SizeBytes() int {
	return taskFixedBytes + len(t.Title)
}

// AppendBinary appends the binary encoding of the task to b and returns the extended slice
func (t Task) AppendBinary(b []byte) []byte {
	b = binary.BigEndian.AppendUint64(b, uint64(t.ID))
	b = binary.BigEndian.AppendUint32(b, uint32(len(t.Title)))
	b = append(b, t.Title...)
	b = append(b, byte(t.Priority))
	if t.Completed {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	b = binary.BigEndian.AppendUint64(b, uint64(t.CreatedAt.Unix()))
	b = binary.BigEndian.AppendUint32(b, uint32(t.CreatedAt.Nanosecond()))
	return b
}

// ReadBinary decodes a task from the start of data and returns the number of bytes consumed.
// t is only modified if decoding succeeds. The creation time is returned in UTC.
func (t *Task) ReadBinary(data []byte) (int, error) {
	if len(data) < taskFixedBytes {
		return 0, fmt.Errorf("%w: data too short for task", ErrMalformedTask)
	}
	pos := 0

	id := binary.BigEndian.Uint64(data[pos : pos+8])
	pos += 8

	titleLen := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4

	// the remaining fixed fields must still fit after the title
	if uint64(len(data)-pos) < uint64(titleLen)+uint64(taskFixedBytes-12) {
		return 0, fmt.Errorf("%w: data too short for title of length %d", ErrMalformedTask, titleLen)
	}
	titleBytes := data[pos : pos+int(titleLen)]
	if !utf8.Valid(titleBytes) {
		return 0, fmt.Errorf("%w: title is not valid utf-8", ErrMalformedTask)
	}
	title := string(titleBytes)
	pos += int(titleLen)

	priority := Priority(data[pos])
	if !priority.Valid() {
		return 0, fmt.Errorf("%w: unknown priority %d", ErrMalformedTask, data[pos])
	}
	pos++

	var completed bool
	switch data[pos] {
	case 0:
		completed = false
	case 1:
		completed = true
	default:
		return 0, fmt.Errorf("%w: invalid completed flag %d", ErrMalformedTask, data[pos])
	}
	pos++

	sec := int64(binary.BigEndian.Uint64(data[pos : pos+8]))
	pos += 8
	nsec := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4
	if nsec >= uint32(time.Second) {
		return 0, fmt.Errorf("%w: invalid nanoseconds %d", ErrMalformedTask, nsec)
	}

	*t = Task{
		ID:        TaskID(id),
		Title:     title,
		Priority:  priority,
		Completed: completed,
		CreatedAt: time.Unix(sec, int64(nsec)).UTC(),
	}
	return pos, nil
}
