package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dTask/lib/store"
	"github.com/ValentinKolb/dTask/rpc/common"
	"github.com/ValentinKolb/dTask/rpc/serializer"
	"github.com/ValentinKolb/dTask/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("client")
)

// ErrCommandFailed is wrapped by errors created from Failure results
// that do not originate from a store error
var ErrCommandFailed = errors.New("command failed")

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
type rpcClientAdapter struct {
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invokeRPCRequest is a helper function used by all RPC clients to send requests
// It takes a request, a transport layer and a serializer as parameters
// It returns the response and an error if any occurs
// This method also checks that the response holds exactly one result per command
func invokeRPCRequest(ctx context.Context, req *common.ClientRequest, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.ServerResponse, error) {
	// Serialize the request
	reqBytes, err := serializer.SerializeRequest(*req)
	if err != nil {
		return nil, err
	}

	// Send the request
	respBytes, err := transport.Send(ctx, reqBytes)
	if err != nil {
		Logger.Warningf("RPC client - sending a batch of %d commands failed: %v", len(req.Commands), err)
		return nil, err
	}

	// Deserialize the response
	resp := &common.ServerResponse{}
	if err := serializer.DeserializeResponse(respBytes, resp); err != nil {
		Logger.Errorf("RPC client - invalid response of %d bytes: %v", len(respBytes), err)
		return nil, fmt.Errorf("RPC client - invalid response: %w", err)
	}

	// Check that every command got its result
	if len(resp.Results) != len(req.Commands) {
		Logger.Errorf("RPC client - expected %d results, got %d", len(req.Commands), len(resp.Results))
		return nil, fmt.Errorf("RPC client - expected %d results, got %d", len(req.Commands), len(resp.Results))
	}

	return resp, nil
}

// resultError converts a Failure into an error. Store errors are restored with
// their return code, so helpers like store.IsNotFound work on the client side.
func resultError(res common.Result) error {
	failure, ok := res.(common.Failure)
	if !ok {
		return nil
	}
	if storeErr, ok := store.ParseError(failure.Message); ok {
		return storeErr
	}
	return fmt.Errorf("%w: %s", ErrCommandFailed, failure.Message)
}

// successValue returns the value of a result or the error of a Failure
func successValue(res common.Result) (common.Value, error) {
	if err := resultError(res); err != nil {
		return nil, err
	}
	success, ok := res.(common.Success)
	if !ok {
		return nil, fmt.Errorf("RPC client - unexpected result %T", res)
	}
	return success.Value, nil
}
