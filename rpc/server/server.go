package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"slices"
	"syscall"
	"time"

	"github.com/ValentinKolb/dTask/lib/store"
	"github.com/ValentinKolb/dTask/lib/store/dstore"
	"github.com/ValentinKolb/dTask/lib/store/lstore"
	"github.com/ValentinKolb/dTask/rpc/common"
	"github.com/ValentinKolb/dTask/rpc/serializer"
	"github.com/ValentinKolb/dTask/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

var (
	requestsTotal  = metrics.GetOrCreateCounter(`dtask_requests_total`)
	decodeFailures = metrics.GetOrCreateCounter(`dtask_decode_failures_total`)
	encodeFailures = metrics.GetOrCreateCounter(`dtask_encode_failures_total`)
	trimmedResults = metrics.GetOrCreateCounter(`dtask_results_trimmed_total`)
)

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters.
// The task store is created from the config when Serve is called.
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *rpcServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		adapter:    NewDispatcherAdapter(config.CommandTimeout(), config.MaxConcurrentCommands),
	}
}

// NewRPCServerWithStore creates a new RPC server that serves the given store
// instead of creating one from the config
func NewRPCServerWithStore(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	s store.ITaskStore,
) *rpcServer {
	server := NewRPCServer(config, transport, serializer)
	server.store = s
	return server
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	adapter    IRPCServerAdapter
	store      store.ITaskStore
	nodeHost   *dragonboat.NodeHost
}

// Serve starts the RPC server
// This function initializes the store and starts the transport layer. It blocks
// until ctx is canceled or the transport fails. Canceling ctx stops accepting new
// connections, connections that are already established are not terminated.
func (s *rpcServer) Serve(ctx context.Context) error {
	if err := s.init(); err != nil {
		return err
	}
	defer s.close()

	if s.config.MetricsEndpoint != "" {
		go s.serveMetrics(ctx)
	}

	return s.transport.Listen(ctx, s.config)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *rpcServer) init() error {

	// Init logger
	if s.config.LogLevel != "" {
		if err := common.InitLoggers(s.config.LogLevel); err != nil {
			return err
		}
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())

	if s.store == nil {
		st, err := s.createStore()
		if err != nil {
			return err
		}
		s.store = st
	}

	Logger.Infof("dTask setup completed successfully")

	// Configure the transport layer
	s.transport.RegisterHandler(s.handle)

	return nil
}

// createStore creates the task store selected by the config
func (s *rpcServer) createStore() (store.ITaskStore, error) {
	switch s.config.StoreType {

	// Case local store
	case common.StoreTypeLocal, "":
		Logger.Infof("created local task store")
		return lstore.NewLocalStore(), nil

	// Case replicated store
	case common.StoreTypeRaft:
		nodeHost, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create node host: %w", err)
		}

		// Start Raft for the shard
		if err := nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, dstore.CreateStateMachineFactory(), s.config.ToDragonboatConfig()); err != nil {
			nodeHost.Close()
			return nil, fmt.Errorf("failed to start shard %d: %w", s.config.ShardID, err)
		}
		s.nodeHost = nodeHost

		// Configure the timeout for the distributed store
		timeout := time.Duration(s.config.TimeoutSecond) * time.Second

		Logger.Infof("created replicated task store for shard %d", s.config.ShardID)
		return dstore.NewDistributedStore(nodeHost, s.config.ShardID, timeout), nil

	default:
		return nil, fmt.Errorf("invalid store type: %s", s.config.StoreType)
	}
}

// handle decodes a request, dispatches it and encodes the response.
// A request that cannot be decoded returns an error, which closes the connection.
func (s *rpcServer) handle(ctx context.Context, data []byte) ([]byte, error) {
	requestsTotal.Inc()

	var req common.ClientRequest
	if err := s.serializer.DeserializeRequest(data, &req); err != nil {
		decodeFailures.Inc()
		return nil, fmt.Errorf("failed to deserialize request: %w", err)
	}

	resp := s.adapter.Handle(ctx, &req, s.store)

	out, err := s.serializer.SerializeResponse(*resp)
	if err == nil && len(out) > s.config.Transport.FrameLimit() {
		out, err = s.trimResponse(&req, resp, len(out))
	}
	if err != nil {
		encodeFailures.Inc()
		return nil, fmt.Errorf("failed to serialize response: %w", err)
	}
	return out, nil
}

// trimResponse replaces the largest results with failures until the encoded
// response fits into a frame. Every command keeps its slot.
func (s *rpcServer) trimResponse(req *common.ClientRequest, resp *common.ServerResponse, size int) ([]byte, error) {
	limit := s.config.Transport.FrameLimit()
	results := slices.Clone(resp.Results)

	// encoded size of every result on its own
	sizes := make([]int, len(results))
	for i, res := range results {
		data, err := s.serializer.SerializeResponse(common.ServerResponse{Results: []common.Result{res}})
		if err != nil {
			return nil, err
		}
		sizes[i] = len(data)
	}

	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return sizes[b] - sizes[a] })

	trimmed := 0
	for _, i := range order {
		if size <= limit {
			break
		}
		if _, ok := results[i].(common.Failure); ok {
			continue
		}
		failure := common.NewFailure(fmt.Sprintf("%s: response exceeds the frame limit of %d bytes", req.Commands[i].Type(), limit))
		data, err := s.serializer.SerializeResponse(common.ServerResponse{Results: []common.Result{failure}})
		if err != nil {
			return nil, err
		}
		results[i] = failure
		size += len(data) - sizes[i]
		trimmed++
	}

	trimmedResults.Add(trimmed)
	Logger.Warningf("response of %d results exceeds the frame limit of %d bytes, replaced %d result(s) with failures", len(results), limit, trimmed)

	out, err := s.serializer.SerializeResponse(common.ServerResponse{Results: results})
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		return nil, fmt.Errorf("response of %d results does not fit into %d bytes even without values", len(results), limit)
	}
	return out, nil
}

// serveMetrics exposes the metrics in the prometheus text format until ctx is canceled
func (s *rpcServer) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	srv := &http.Server{
		Addr:              s.config.MetricsEndpoint,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	Logger.Infof("Serving metrics on http://%s/metrics", s.config.MetricsEndpoint)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		Logger.Errorf("Metrics endpoint failed: %v", err)
	}
}

// close releases the resources of the store
func (s *rpcServer) close() {
	if s.nodeHost != nil {
		s.nodeHost.Close()
		s.nodeHost = nil
	}
}
