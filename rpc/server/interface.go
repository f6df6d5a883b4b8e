package server

import (
	"context"

	"github.com/ValentinKolb/dTask/lib/store"
	"github.com/ValentinKolb/dTask/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for executing requests against a store
type IRPCServerAdapter interface {
	// Handle executes every command of the request against the store and returns
	// the response. Result i of the response belongs to command i of the request.
	// Errors of single commands are reported as Failure results, Handle itself never fails.
	Handle(ctx context.Context, req *common.ClientRequest, s store.ITaskStore) (resp *common.ServerResponse)
}
