package serializer

import (
	"errors"

	"github.com/ValentinKolb/dTask/rpc/common"
)

var (
	// ErrDecode is wrapped by every error returned for malformed input
	ErrDecode = errors.New("malformed message")
	// ErrEncode is wrapped by every error returned for values that can not be represented on the wire
	ErrEncode = errors.New("unencodable message")
)

// IRPCSerializer is the interface for all message serializers.
// Implementations must be safe for concurrent use.
type IRPCSerializer interface {
	// SerializeRequest serializes a ClientRequest into a byte array
	SerializeRequest(req common.ClientRequest) ([]byte, error)
	// DeserializeRequest deserializes a byte array into a ClientRequest.
	// req is only modified if decoding succeeds.
	DeserializeRequest(b []byte, req *common.ClientRequest) error
	// SerializeResponse serializes a ServerResponse into a byte array
	SerializeResponse(resp common.ServerResponse) ([]byte, error)
	// DeserializeResponse deserializes a byte array into a ServerResponse.
	// resp is only modified if decoding succeeds.
	DeserializeResponse(b []byte, resp *common.ServerResponse) error
}
