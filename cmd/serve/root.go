package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ValentinKolb/dTask/cmd/util"
	"github.com/ValentinKolb/dTask/rpc/common"
	"github.com/ValentinKolb/dTask/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start the dTask server",
		Long: `Start the dTask server with the specified configuration. The configuration can be set via command line flags, environment variables or a config file.
The format of the environment variables is DTASK_<flag> (e.g. DTASK_COMMAND_TIMEOUT=5)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	key := "store"
	ServeCmd.PersistentFlags().String(key, "local", cmdUtil.WrapString("Which task store to serve: 'local' keeps all tasks in memory, 'raft' replicates them across the cluster members"))

	key = "shard-id"
	ServeCmd.PersistentFlags().Uint64(key, 100, cmdUtil.WrapString("(raft) The raft shard that holds the tasks"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Uint64(key, 100, cmdUtil.WrapString("(raft) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. \nOther raft configuration parameters (ElectionRTT=value*10, HeartbeatRTT=value*1) are derived from this value"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Uint64(key, 10, cmdUtil.WrapString("(raft) SnapshotEntries defines how often the state machine should be snapshotted automatically. It is defined in terms of the number of applied Raft log entries. SnapshotEntries can be set to 0 to disable such automatic snapshotting (not recommended)"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Uint64(key, 5, cmdUtil.WrapString("(raft) CompactionOverhead defines the number of snapshots that should be retained in the system. Recommended value is about 1/2 of SnapshotEntries"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("(raft) DataDir is the directory used for storing the raft log and snapshots"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft) ReplicaID is the unique name of this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("(raft) Timeout in seconds of a single proposal or read"))

	key = "command-timeout"
	ServeCmd.PersistentFlags().Int64(key, 0, cmdUtil.WrapString("Timeout in seconds of a single command, a command that takes longer is answered with a failure (0 disables it)"))

	key = "max-concurrent-commands"
	ServeCmd.PersistentFlags().Int(key, common.DefaultMaxConcurrentCommands, cmdUtil.WrapString("How many commands of one batch run at the same time (0 runs all of them at once, 1 runs them in order)"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the server will listen (e.g. localhost:8080 for tcp, /tmp/dtask.sock for unix)"))

	key = "idle-timeout"
	ServeCmd.PersistentFlags().Int64(key, 0, cmdUtil.WrapString("Close connections that do not send a request within this many seconds (0 disables it)"))

	key = "write-timeout"
	ServeCmd.PersistentFlags().Int64(key, 10, cmdUtil.WrapString("Timeout in seconds for writing a response (0 disables it)"))

	key = "max-frame"
	ServeCmd.PersistentFlags().Int(key, common.DefaultMaxFrameBytes/1024, cmdUtil.WrapString("The largest accepted request (in KB), connections sending larger frames are closed"))

	key = "write-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the socket write buffer (in KB)"))

	key = "read-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the socket read buffer (in KB)"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "tcp-linger"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The linger time (in seconds, only for tcp, 0 keeps the OS default)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of an http endpoint serving prometheus metrics on /metrics (e.g. localhost:9090, empty disables it)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	storeType, err := common.ParseStoreType(viper.GetString("store"))
	if err != nil {
		return err
	}
	serveCmdConfig.StoreType = storeType

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.ShardID = viper.GetUint64("shard-id")
	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.CommandTimeoutSecond = viper.GetInt64("command-timeout")
	serveCmdConfig.MaxConcurrentCommands = viper.GetInt("max-concurrent-commands")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint:           viper.GetString("endpoint"),
		MaxFrameBytes:      viper.GetInt("max-frame") * 1024,
		IdleTimeoutSecond:  viper.GetInt64("idle-timeout"),
		WriteTimeoutSecond: viper.GetInt64("write-timeout"),
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("tcp-linger"),
		},
	}

	if serveCmdConfig.StoreType != common.StoreTypeRaft {
		return nil
	}

	// parse replica id
	id := viper.GetString("replica-id")
	if id == "" {
		return fmt.Errorf("replica-id is required for the raft store")
	}
	serveCmdConfig.ReplicaID = cmdUtil.HashReplicaName(id)

	// parse cluster members
	members, err := cmdUtil.ParseClusterMembers(viper.GetString("cluster-members"))
	if err != nil {
		return fmt.Errorf("cluster-members: %w", err)
	}
	serveCmdConfig.ClusterMembers = members

	// test if the replica id is in the cluster members
	if _, ok := serveCmdConfig.ClusterMembers[serveCmdConfig.ReplicaID]; !ok {
		return fmt.Errorf("no address found for replica %s in cluster members", id)
	}

	return nil
}

// run starts the dTask server and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.NewRPCServer(*serveCmdConfig, t, s).Serve(ctx)
}
