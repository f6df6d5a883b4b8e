package task

import (
	"context"
	"encoding/csv"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTask/cmd/util"
	"github.com/ValentinKolb/dTask/lib/store"
	"github.com/ValentinKolb/dTask/rpc/common"
	"github.com/rcrowley/go-metrics"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:   "perf",
		Short: "Performance testing tool for dTask servers",
		Long: `Runs concurrent load against a dTask server and reports the latency of every workload.
Note that the tool creates tasks and there is no way to delete them, run it against a test server.`,
		Args:    cobra.NoArgs,
		PreRunE: processPerfConfig,
		RunE:    runPerf,
	}
	perfTitlePrefix = "__perf"
	perfNumThreads  = 10
	perfRequests    = 1000
	perfBatchSize   = 10
	perfSkip        = make([]string, 0)
)

// percentiles reported for every workload
var perfPercentiles = []float64{0.5, 0.95, 0.99}

// perfWorkload sends a single request, i is the index of the request within the workload
type perfWorkload struct {
	name string
	run  func(ctx context.Context, i int) error
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Workloads to skip (comma separated - e.g. create,batch)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of concurrent clients (goroutines) per workload"))
	key = "requests"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("Number of requests per workload"))
	key = "batch-size"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of commands per request of the batch workload"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = max(1, viper.GetInt("threads"))
	perfRequests = max(1, viper.GetInt("requests"))
	perfBatchSize = max(1, viper.GetInt("batch-size"))
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)

	fmt.Println("Performance testing tool for dTask servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d, Requests: %d, Batch Size: %d\n", perfNumThreads, perfRequests, perfBatchSize)
	fmt.Println()

	// tasks used by the read and update workloads
	ids, err := seedTasks(ctx, perfNumThreads)
	if err != nil {
		return fmt.Errorf("failed to create seed tasks: %w", err)
	}

	fmt.Println("starting tests...")

	registry := metrics.NewRegistry()
	results := make([]perfResult, 0)

	for _, w := range perfWorkloads(ids) {
		if shouldSkip(w.name) {
			printResult(perfResult{name: w.name})
			continue
		}
		res := runWorkload(ctx, registry, w)
		results = append(results, res)
		printResult(res)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return err
		}
	}

	return nil
}

// perfWorkloads returns all workloads in execution order
func perfWorkloads(ids []store.TaskID) []perfWorkload {
	pick := func(i int) store.TaskID { return ids[i%len(ids)] }
	priorities := []store.Priority{store.PriorityLow, store.PriorityRegular, store.PriorityUrgent}

	return []perfWorkload{
		{
			name: "create",
			run: func(ctx context.Context, i int) error {
				_, err := rpcClient.Create(ctx, fmt.Sprintf("%s-create-%d", perfTitlePrefix, i), store.PriorityLow)
				return err
			},
		},
		{
			name: "get",
			run: func(ctx context.Context, i int) error {
				_, err := rpcClient.GetByID(ctx, pick(i))
				return err
			},
		},
		{
			name: "rename",
			run: func(ctx context.Context, i int) error {
				_, err := rpcClient.RenameTitle(ctx, pick(i), fmt.Sprintf("%s-rename-%d", perfTitlePrefix, i))
				return err
			},
		},
		{
			name: "priority",
			run: func(ctx context.Context, i int) error {
				_, err := rpcClient.SetPriority(ctx, pick(i), priorities[i%len(priorities)])
				return err
			},
		},
		{
			name: "pending",
			run: func(ctx context.Context, _ int) error {
				_, err := rpcClient.ListPending(ctx)
				return err
			},
		},
		{
			name: "batch",
			run: func(ctx context.Context, i int) error {
				cmds := make([]common.Command, perfBatchSize)
				for j := range cmds {
					cmds[j] = common.GetByID{ID: pick(i + j)}
				}
				return executeBatch(ctx, cmds)
			},
		},
		{
			name: "mixed",
			run: func(ctx context.Context, i int) error {
				cmds := make([]common.Command, perfBatchSize)
				for j := range cmds {
					id := pick(rand.IntN(len(ids)))
					switch j % 4 {
					case 0:
						cmds[j] = common.CreateTask{Title: fmt.Sprintf("%s-mixed-%d-%d", perfTitlePrefix, i, j), Priority: store.PriorityUrgent}
					case 1:
						cmds[j] = common.GetByID{ID: id}
					case 2:
						cmds[j] = common.RenameTask{ID: id, Title: fmt.Sprintf("%s-mixed-%d-%d", perfTitlePrefix, i, j)}
					default:
						cmds[j] = common.ListCompleted{}
					}
				}
				return executeBatch(ctx, cmds)
			},
		},
	}
}

// seedTasks creates n tasks in a single request
func seedTasks(ctx context.Context, n int) ([]store.TaskID, error) {
	cmds := make([]common.Command, n)
	for i := range cmds {
		cmds[i] = common.CreateTask{Title: fmt.Sprintf("%s-seed-%d", perfTitlePrefix, i), Priority: store.PriorityRegular}
	}
	results, err := rpcClient.Execute(ctx, cmds...)
	if err != nil {
		return nil, err
	}
	ids := make([]store.TaskID, 0, n)
	for i, res := range results {
		s, ok := res.(common.Success)
		if !ok {
			return nil, fmt.Errorf("seed task %d: %s", i, FormatResult(cmds[i], res))
		}
		if v, ok := s.Value.(common.TaskValue); ok {
			ids = append(ids, v.Task.ID)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("server did not return any created task")
	}
	return ids, nil
}

// executeBatch sends a batch and reports the first failed command as error
func executeBatch(ctx context.Context, cmds []common.Command) error {
	results, err := rpcClient.Execute(ctx, cmds...)
	if err != nil {
		return err
	}
	for i, res := range results {
		if f, ok := res.(common.Failure); ok {
			return fmt.Errorf("command %d (%s): %s", i, cmds[i].Type(), f.Message)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Measurement
// --------------------------------------------------------------------------

type perfResult struct {
	name        string
	count       int64
	errors      int64
	mean        time.Duration
	min         time.Duration
	max         time.Duration
	percentiles []time.Duration
	opsPerSec   float64
}

// runWorkload spreads perfRequests requests over perfNumThreads goroutines and times every request
func runWorkload(ctx context.Context, registry metrics.Registry, w perfWorkload) perfResult {
	timer := metrics.GetOrRegisterTimer(w.name+".latency", registry)
	errCounter := metrics.GetOrRegisterCounter(w.name+".errors", registry)

	var next atomic.Int64
	var wg conc.WaitGroup
	start := time.Now()

	for range perfNumThreads {
		wg.Go(func() {
			for {
				i := int(next.Add(1) - 1)
				if i >= perfRequests || ctx.Err() != nil {
					return
				}
				reqStart := time.Now()
				err := w.run(ctx, i)
				timer.UpdateSince(reqStart)
				if err != nil {
					errCounter.Inc(1)
					Logger.Debugf("(%s) request %d failed: %v", w.name, i, err)
				}
			}
		})
	}
	wg.Wait()
	elapsed := time.Since(start)

	snapshot := timer.Snapshot()
	res := perfResult{
		name:   w.name,
		count:  snapshot.Count(),
		errors: errCounter.Count(),
		mean:   time.Duration(snapshot.Mean()),
		min:    time.Duration(snapshot.Min()),
		max:    time.Duration(snapshot.Max()),
	}
	for _, p := range snapshot.Percentiles(perfPercentiles) {
		res.percentiles = append(res.percentiles, time.Duration(p))
	}
	if elapsed > 0 {
		res.opsPerSec = float64(res.count) / elapsed.Seconds()
	}
	return res
}

func shouldSkip(test string) bool {
	return slices.ContainsFunc(perfSkip, func(s string) bool {
		return strings.TrimSpace(s) == test
	})
}

func printResult(res perfResult) {
	if res.count == 0 {
		fmt.Printf("%-12sskipped\n", res.name)
		return
	}

	fmt.Printf("%-12smean %-12s p50 %-12s p95 %-12s p99 %-12s max %-12s %8.0f req/sec",
		res.name, res.mean, res.percentiles[0], res.percentiles[1], res.percentiles[2], res.max, res.opsPerSec)
	if res.errors > 0 {
		fmt.Printf("\t(%d errors)", res.errors)
	}
	fmt.Println()
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []perfResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "Requests", "Errors", "MeanNs", "MinNs", "P50Ns", "P95Ns", "P99Ns", "MaxNs", "OpsPerSec",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"Serializer", "Transport",
		"Threads", "BatchSize",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for _, res := range results {
		row := []string{
			res.name,
			strconv.FormatInt(res.count, 10),
			strconv.FormatInt(res.errors, 10),
			strconv.FormatInt(res.mean.Nanoseconds(), 10),
			strconv.FormatInt(res.min.Nanoseconds(), 10),
			strconv.FormatInt(res.percentiles[0].Nanoseconds(), 10),
			strconv.FormatInt(res.percentiles[1].Nanoseconds(), 10),
			strconv.FormatInt(res.percentiles[2].Nanoseconds(), 10),
			strconv.FormatInt(res.max.Nanoseconds(), 10),
			fmt.Sprintf("%.0f", res.opsPerSec),
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfBatchSize),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", res.name, err)
		}
	}

	return nil
}
