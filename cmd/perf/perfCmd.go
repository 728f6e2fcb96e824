package perf

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dShard/cmd/util"
	"github.com/ValentinKolb/dShard/lib/schema"
	"github.com/ValentinKolb/dShard/lib/shard"
	vmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/panjf2000/ants/v2"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rt *util.Runtime

	// PerfCmd runs a load test against the configured backend
	PerfCmd = &cobra.Command{
		Use:   "perf",
		Short: "Performance testing tool for sharded entities",
		Long: util.WrapString(`Creates records concurrently on a worker pool, reads them back
and reports latencies and how evenly the ids spread over the shards. Records created by
the test are not deleted.`),
		Args:    cobra.NoArgs,
		PreRunE: processPerfConfig,
		RunE:    run,
	}
	perfEntity       = ""
	perfNumThreads   = 10
	perfOps          = 1000
	perfSkip         = make([]string, 0)
	perfPrintMetrics = false
)

func init() {
	key := "entity"
	PerfCmd.Flags().String(key, "", util.WrapString("Entity to use for the test (default: first configured entity)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Size of the worker pool"))
	key = "ops"
	PerfCmd.Flags().Int(key, 1000, util.WrapString("Number of operations per test"))
	key = "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Tests to skip (comma separated - e.g. resolve,mixed)"))
	key = "print-metrics"
	PerfCmd.Flags().Bool(key, false, util.WrapString("Print all dshard metrics in Prometheus text format after the tests"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) (err error) {
	if rt, err = util.Setup(cmd); err != nil {
		return err
	}

	perfEntity = viper.GetString("entity")
	perfNumThreads = viper.GetInt("threads")
	perfOps = viper.GetInt("ops")
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	perfPrintMetrics = viper.GetBool("print-metrics")

	if perfNumThreads < 1 || perfOps < 1 {
		return fmt.Errorf("threads and ops must be at least 1")
	}
	return nil
}

// result of a single test
type result struct {
	test    string
	skipped bool
	ops     int64
	errors  int64
	nsPerOp float64
	p50     float64
	p99     float64
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for sharded entities")

	et, err := pickEntity()
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(rt.Config.String())
	fmt.Printf("Entity: %s\n", et)
	fmt.Printf("Threads: %d, Ops: %d\n", perfNumThreads, perfOps)
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if _, err := rt.Registry.InitializeAllShards(ctx, et); err != nil {
		return err
	}

	pool, err := ants.NewPool(perfNumThreads)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	registry := gometrics.NewRegistry()
	results := make([]result, 0, 4)

	fmt.Println("starting tests...")

	// resolve: id -> descriptor (memoized, no I/O)
	results = append(results, benchResolve(ctx, et))

	// create
	var (
		idsMu sync.Mutex
		ids   = make([]uint64, 0, perfOps)
	)
	results = append(results, runPool(pool, registry, "create", func(i int) error {
		rec, err := rt.Service.Create(ctx, et, sampleValues(et, i))
		if err != nil {
			return err
		}
		idsMu.Lock()
		ids = append(ids, rec.ID)
		idsMu.Unlock()
		return nil
	}))

	// get (reads the records created above)
	results = append(results, runPool(pool, registry, "get", func(i int) error {
		if len(ids) == 0 {
			return fmt.Errorf("no records to read")
		}
		id := ids[i%len(ids)]
		if _, ok, err := rt.Service.Get(ctx, et, id); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("record %d not found", id)
		}
		return nil
	}))

	// mixed: every second operation is a create
	results = append(results, runPool(pool, registry, "mixed", func(i int) error {
		if i%2 == 0 {
			_, err := rt.Service.Create(ctx, et, sampleValues(et, i))
			return err
		}
		_, _, err := rt.Service.Get(ctx, et, uint64(i))
		return err
	}))

	for _, r := range results {
		printResult(r)
	}

	if len(ids) > 0 {
		printDistribution(et, ids)
	}

	if perfPrintMetrics {
		fmt.Println("\nLatency timers:")
		gometrics.WriteOnce(registry, os.Stdout)
		fmt.Println("\nMetrics:")
		vmetrics.WritePrometheus(os.Stdout, false)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, et, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func benchResolve(ctx context.Context, et *schema.EntityType) result {
	if shouldSkip("resolve") {
		return result{test: "resolve", skipped: true}
	}

	var errCount atomic.Int64
	res := testing.Benchmark(func(b *testing.B) {
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			var id uint64
			for pb.Next() {
				if _, err := rt.Registry.Resolve(ctx, et, id); err != nil {
					errCount.Add(1)
				}
				id++
			}
		})
	})

	return result{
		test:    "resolve",
		ops:     int64(res.N),
		errors:  errCount.Load(),
		nsPerOp: float64(res.NsPerOp()),
	}
}

// runPool submits perfOps operations to the pool and times each of them
func runPool(pool *ants.Pool, registry gometrics.Registry, test string, op func(i int) error) result {
	if shouldSkip(test) {
		return result{test: test, skipped: true}
	}

	timer := gometrics.GetOrRegisterTimer(test, registry)
	var (
		wg       sync.WaitGroup
		errCount atomic.Int64
	)

	start := time.Now()
	for i := 0; i < perfOps; i++ {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			t0 := time.Now()
			if err := op(i); err != nil {
				errCount.Add(1)
				if errCount.Load() <= 3 {
					fmt.Printf("(%s) - error: %v\n", test, err)
				}
			}
			timer.UpdateSince(t0)
		})
		if err != nil {
			wg.Done()
			errCount.Add(1)
		}
	}
	wg.Wait()
	elapsed := time.Since(start)

	snap := timer.Snapshot()
	return result{
		test:    test,
		ops:     snap.Count(),
		errors:  errCount.Load(),
		nsPerOp: float64(elapsed.Nanoseconds()) / float64(perfOps),
		p50:     snap.Percentile(0.5),
		p99:     snap.Percentile(0.99),
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func pickEntity() (*schema.EntityType, error) {
	if perfEntity != "" {
		return rt.Entity(perfEntity)
	}
	return rt.Entity(rt.EntityNames()[0])
}

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// sampleValues creates values for every field of the entity type
func sampleValues(et *schema.EntityType, i int) schema.Values {
	values := make(schema.Values, et.Schema().Len())
	for _, f := range et.Schema().Fields() {
		switch f.Type {
		case schema.FieldTInt:
			values[f.Name] = int64(i)
		case schema.FieldTFloat:
			values[f.Name] = float64(i) / 10
		case schema.FieldTBool:
			values[f.Name] = i%2 == 0
		default:
			s := fmt.Sprintf("perf-%s-%d", f.Name, i)
			if f.Size > 0 && len(s) > f.Size {
				s = s[:f.Size]
			}
			values[f.Name] = s
		}
	}
	return values
}

// printResult prints the result of a test in a formatted way
func printResult(r result) {
	if r.skipped {
		fmt.Printf("%-20sskipped\n", r.test)
		return
	}

	nsPerOp := math.Max(r.nsPerOp, 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec", r.test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
	if r.p50 > 0 {
		fmt.Printf("\tp50=%s p99=%s", time.Duration(r.p50), time.Duration(r.p99))
	}
	if r.errors > 0 {
		fmt.Printf("\t%d errors", r.errors)
	}
	fmt.Println()
}

func printDistribution(et *schema.EntityType, ids []uint64) {
	d := shard.NewDistribution(ids, et.ShardCount())

	fmt.Printf("\nShard distribution of %d created records:\n", d.Total)
	for i, c := range d.Counts {
		fmt.Printf("  %-24s %d\n", schema.PhysicalTableName(et.Name(), i), c)
	}
	fmt.Printf("  mean=%.1f std=%.2f min=%d max=%d empty=%d quality=%.3f\n",
		d.Mean, d.StdDev, d.Min, d.Max, d.Empty, d.Quality)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, et *schema.EntityType, results []result) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50", "P99", "Errors", "Skipped",
		"Backend", "Counter", "Entity", "ShardCount", "Threads", "Ops",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, r := range results {
		var nsPerOp, opsPerSec float64
		if !r.skipped {
			nsPerOp = math.Max(r.nsPerOp, 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			r.test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			time.Duration(r.p50).String(),
			time.Duration(r.p99).String(),
			strconv.FormatInt(r.errors, 10),
			strconv.FormatBool(r.skipped),
			string(rt.Config.Backend),
			string(rt.Config.Counter),
			et.Name(),
			strconv.Itoa(et.ShardCount()),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfOps),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", r.test, err)
		}
	}

	return nil
}
