package bench

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/htrie/cmd/util"
	"github.com/ValentinKolb/htrie/lib/common"
	"github.com/ValentinKolb/htrie/lib/table"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var plog = logger.GetLogger("cli")

var (
	benchConfig = &common.BenchConfig{}

	// BenchCmd runs parallel throughput benchmarks against the configured engine
	BenchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Benchmark a table engine",
		Long: util.WrapString(`Runs parallel benchmarks for insert, get, get-miss, update, insert-remove
and a read heavy mix against a fresh table each and prints ns/op and ops/sec.`),
		Args:    cobra.NoArgs,
		PreRunE: processConfig,
		RunE:    run,
	}
)

// benchmarks lists the benchmark names in execution order
var benchmarks = []string{"insert", "get", "get-miss", "update", "insert-remove", "mixed"}

func init() {
	key := "threads"
	BenchCmd.Flags().Int(key, 1, util.WrapString("Goroutines per CPU used by every benchmark (passed to SetParallelism)"))
	key = "keys"
	BenchCmd.Flags().Int(key, 1<<16, util.WrapString("How many different keys to use for the tests"))
	key = "skip"
	BenchCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. insert,get-miss)"))
	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
	key = "metrics"
	BenchCmd.Flags().Bool(key, false, util.WrapString("Print the Prometheus metrics of every hashtrie table after its benchmark"))
}

func processConfig(_ *cobra.Command, _ []string) error {
	benchConfig.Table = util.GetTableConfig()
	benchConfig.Threads = viper.GetInt("threads")
	benchConfig.Keys = viper.GetInt("keys")
	benchConfig.CSVPath = viper.GetString("csv")
	benchConfig.Metrics = viper.GetBool("metrics")
	benchConfig.Skip = nil
	if skip := viper.GetString("skip"); skip != "" {
		benchConfig.Skip = strings.Split(skip, ",")
	}

	if benchConfig.Threads < 1 {
		return fmt.Errorf("threads must be at least 1, got %d", benchConfig.Threads)
	}
	if benchConfig.Keys < 1 {
		return fmt.Errorf("keys must be at least 1, got %d", benchConfig.Keys)
	}

	// fail before the first benchmark if the engine options are invalid
	probe, err := util.NewTable("probe", benchConfig.Table)
	if err != nil {
		return err
	}
	return probe.Close()
}

func run(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Benchmarking table engine")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintln(out, benchConfig.String())
	fmt.Fprintln(out, "starting benchmarks...")

	results := make(map[string]testing.BenchmarkResult, len(benchmarks))
	for _, name := range benchmarks {
		results[name] = runBenchmark(out, name)
		printResult(out, name, results[name])
	}

	if benchConfig.CSVPath != "" {
		fmt.Fprintf(out, "\nExporting results to CSV: %s\n", benchConfig.CSVPath)
		if err := writeResultsToCSV(benchConfig.CSVPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %w", err)
		}
		fmt.Fprintln(out, "Export complete")
	}
	return nil
}

// --------------------------------------------------------------------------
// Benchmarks
// --------------------------------------------------------------------------

// runBenchmark runs one named benchmark. Every round of testing.Benchmark
// gets a fresh table, the tables are closed once the result is final.
func runBenchmark(out io.Writer, name string) testing.BenchmarkResult {
	if benchConfig.ShouldSkip(name) {
		return testing.BenchmarkResult{}
	}

	keys := uint64(benchConfig.Keys)
	var tables []table.Table[uint64, uint64]
	var contention atomic.Uint64

	result := testing.Benchmark(func(b *testing.B) {
		tbl, err := util.NewTable(name, benchConfig.Table)
		if err != nil {
			b.Fatalf("(%s) - error creating table: %v", name, err)
		}
		tables = append(tables, tbl)

		if name != "insert" && name != "insert-remove" {
			fill(tbl, keys)
		}

		b.SetParallelism(benchConfig.Threads)
		b.ResetTimer()

		var worker atomic.Uint64
		b.RunParallel(func(pb *testing.PB) {
			ops, detach := util.Attach(tbl)
			defer detach()

			id := worker.Add(1)
			i := id * 7919
			for pb.Next() {
				if errors.Is(step(ops, name, id, i, keys), table.ErrContention) {
					contention.Add(1)
				}
				i++
			}
		})
	})

	if n := contention.Load(); n > 0 {
		plog.Infof("(%s) - %d operations reported contention", name, n)
	}
	if benchConfig.Metrics && len(tables) > 0 {
		if w, ok := tables[len(tables)-1].(interface{ WriteMetrics(io.Writer) }); ok {
			w.WriteMetrics(out)
		}
	}
	for _, tbl := range tables {
		_ = tbl.Close()
	}
	return result
}

// step performs the i-th operation of benchmark name for worker id
func step(ops util.Ops, name string, id, i, keys uint64) error {
	k := i % keys
	switch name {
	case "insert":
		return ops.Insert(id<<32|i&0xffffffff, i)
	case "get":
		ops.Get(k)
	case "get-miss":
		ops.Get(keys + k)
	case "update":
		return ops.Update(k, i)
	case "insert-remove":
		k = id<<32 | i%1024
		if err := ops.Insert(k, i); err != nil {
			return err
		}
		return ops.Remove(k)
	case "mixed":
		// 80% get, 10% update, 5% insert, 5% remove
		switch i % 20 {
		case 0:
			return ops.Insert(k, i)
		case 1:
			return ops.Remove(k)
		case 2, 3:
			return ops.Update(k, i)
		default:
			ops.Get(k)
		}
	}
	return nil
}

// fill inserts the keys 0 to n-1
func fill(tbl table.Table[uint64, uint64], n uint64) {
	for k := uint64(0); k < n; k++ {
		if err := tbl.Insert(k, k); err != nil {
			plog.Warningf("error inserting key %d: %v", k, err)
		}
	}
}

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

// printResult prints the result of a benchmark test in a formatted way
func printResult(out io.Writer, test string, result testing.BenchmarkResult) {
	if result.N == 0 {
		fmt.Fprintf(out, "%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Fprintf(out, "%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Engine", "HashLevel", "RootHashLevel", "Participants", "FailLimit", "Recycling",
		"Threads", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	conf := benchConfig.Table
	for _, test := range benchmarks {
		result := results[test]

		var nsPerOp, opsPerSec float64
		skipped := "true"
		if result.N > 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			conf.Engine,
			strconv.Itoa(conf.HashLevel),
			strconv.Itoa(conf.RootHashLevel),
			strconv.Itoa(conf.Participants),
			strconv.Itoa(conf.FailLimit),
			strconv.FormatBool(!conf.DisableRecycle),
			strconv.Itoa(benchConfig.Threads),
			strconv.Itoa(benchConfig.Keys),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %w", test, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
