// Package serializer provides message serialization for the task server RPC system.
// It defines a common interface and two implementations for converting requests and
// responses to the frame payloads exchanged by client and server.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - binarySerializerImpl: The wire format of the protocol. Every tagged variant is
//     encoded as a one byte tag followed by its fields, sequences and strings are
//     prefixed with their uint32 length, ids are uint64, timestamps are int64 unix
//     seconds plus uint32 nanoseconds. All integers are big endian.
//
//   - jsonSerializerImpl: A json encoding of the same messages, useful for debugging
//     or interoperability with other systems, but with lower performance.
//
// Binary Format:
//
//	request  = u32 count, command*
//	command  = u8 tag, fields
//	             1 CreateTask    title:string priority:u8
//	             2 ListPending
//	             3 ListCompleted
//	             4 MarkDone      id:u64
//	             5 RenameTask    id:u64 title:string
//	             6 SetPriority   id:u64 priority:u8
//	             7 GetByID       id:u64
//	response = u32 count, result*
//	result   = 1 value | 2 message:string
//	value    = 1 task | 2 u32 count, task* | 3 (ack)
//	task     = id:u64 title:string priority:u8 completed:u8 seconds:i64 nanos:u32
//	string   = u32 length, utf-8 bytes
//
// Error Handling:
//
//	Decoding fails with an error wrapping ErrDecode for unknown tags, invalid
//	priorities or booleans, invalid utf-8, truncated input, trailing bytes and
//	sequence counts the remaining input could not hold. Decoding never modifies
//	the target on error. Values without a wire representation (nil variants,
//	unknown priorities) fail to encode with an error wrapping ErrEncode.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	s := serializer.NewBinarySerializer()
//	data, err := s.SerializeRequest(common.ClientRequest{Commands: cmds})
//	// ... send data ...
//	var resp common.ServerResponse
//	err = s.DeserializeResponse(receivedData, &resp)
package serializer
