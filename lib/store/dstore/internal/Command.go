package internal

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ValentinKolb/dTask/lib/store"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTCreate      CommandType = iota // Insert a new task, the id is assigned by the state machine.
	CommandTMarkDone                       // Mark a task as completed.
	CommandTRename                         // Replace the title of a task.
	CommandTSetPriority                    // Replace the priority of a task.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTCreate:
		return "Create"
	case CommandTMarkDone:
		return "MarkDone"
	case CommandTRename:
		return "Rename"
	case CommandTSetPriority:
		return "SetPriority"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type      CommandType
	ID        store.TaskID   // target task (unused for Create)
	Priority  store.Priority // Create and SetPriority
	CreatedAt time.Time      // Create only, stamped by the proposer so all replicas agree
	Title     string         // Create and Rename
}

// commandHeaderBytes is the size of the fixed width part of a serialized command:
// Type + ID + Priority + CreatedAt seconds + CreatedAt nanos + TitleLen
const commandHeaderBytes = 1 + 8 + 1 + 8 + 4 + 4

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	return commandHeaderBytes + len(command.Title)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 8 bytes for the task id,
// 1 byte for the priority,
// 8 bytes for the creation time (unix seconds),
// 4 bytes for the creation time (nanoseconds),
// 4 bytes for title length (big endian),
// N bytes for title data
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint64(result[1:9], uint64(command.ID))
	result[9] = byte(command.Priority)

	var sec int64
	var nsec uint32
	if !command.CreatedAt.IsZero() {
		sec = command.CreatedAt.Unix()
		nsec = uint32(command.CreatedAt.Nanosecond())
	}
	binary.BigEndian.PutUint64(result[10:18], uint64(sec))
	binary.BigEndian.PutUint32(result[18:22], nsec)

	binary.BigEndian.PutUint32(result[22:26], uint32(len(command.Title)))
	copy(result[26:], command.Title)

	return result
}

// Deserialize extracts all Command fields from a byte array.
// The command is only modified if the data is valid.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < commandHeaderBytes {
		return fmt.Errorf("data too short for command")
	}

	titleLen := binary.BigEndian.Uint32(data[22:26])
	if uint64(len(data)) != uint64(commandHeaderBytes)+uint64(titleLen) {
		return fmt.Errorf("invalid data length %d for title of length %d", len(data), titleLen)
	}

	var createdAt time.Time
	sec := int64(binary.BigEndian.Uint64(data[10:18]))
	nsec := binary.BigEndian.Uint32(data[18:22])
	if sec != 0 || nsec != 0 {
		createdAt = time.Unix(sec, int64(nsec)).UTC()
	}

	*command = Command{
		Type:      CommandType(data[0]),
		ID:        store.TaskID(binary.BigEndian.Uint64(data[1:9])),
		Priority:  store.Priority(data[9]),
		CreatedAt: createdAt,
		Title:     string(data[commandHeaderBytes:]),
	}
	return nil
}
