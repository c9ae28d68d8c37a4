package stress

import (
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/ValentinKolb/htrie/cmd/util"
	"github.com/ValentinKolb/htrie/lib/common"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var plog = logger.GetLogger("cli")

var (
	stressConfig = &common.StressConfig{}

	// StressCmd hammers the configured engine from many goroutines and
	// verifies every observed outcome
	StressCmd = &cobra.Command{
		Use:   "stress",
		Short: "Verify a table engine under concurrent load",
		Long: util.WrapString(`Runs two phases against a fresh table. In the owned phase every worker
inserts, updates and removes its own keys and checks each outcome against a
private model; the final table is compared with the reference engine. In the
shared phase all workers update and read the same keys and check that no
reader observes a value older than one it has already seen. Latency
percentiles are printed per operation.`),
		Args:    cobra.NoArgs,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	key := "threads"
	StressCmd.Flags().Int(key, runtime.GOMAXPROCS(0), util.WrapString("Number of concurrent workers"))
	key = "owned-keys"
	StressCmd.Flags().Int(key, 1024, util.WrapString("Keys owned by every worker in the owned phase"))
	key = "shared-keys"
	StressCmd.Flags().Int(key, 16, util.WrapString("Keys shared by all workers in the shared phase"))
	key = "ops"
	StressCmd.Flags().Int(key, 100000, util.WrapString("Operations per worker and phase"))
}

func processConfig(_ *cobra.Command, _ []string) error {
	stressConfig.Table = util.GetTableConfig()
	stressConfig.Threads = viper.GetInt("threads")
	stressConfig.OwnedKeys = viper.GetInt("owned-keys")
	stressConfig.SharedKeys = viper.GetInt("shared-keys")
	stressConfig.Ops = viper.GetInt("ops")

	switch {
	case stressConfig.Threads < 2:
		return fmt.Errorf("threads must be at least 2, got %d", stressConfig.Threads)
	case stressConfig.OwnedKeys < 1:
		return fmt.Errorf("owned-keys must be at least 1, got %d", stressConfig.OwnedKeys)
	case stressConfig.SharedKeys < 1:
		return fmt.Errorf("shared-keys must be at least 1, got %d", stressConfig.SharedKeys)
	case stressConfig.Ops < 1:
		return fmt.Errorf("ops must be at least 1, got %d", stressConfig.Ops)
	}
	return nil
}

func run(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Stress testing table engine")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintln(out, stressConfig.String())

	report, err := Run(stressConfig)
	if report != nil {
		report.Print(out)
	}
	return err
}

// --------------------------------------------------------------------------
// Report
// --------------------------------------------------------------------------

// operations lists the timed operations in print order
var operations = []string{"insert", "update", "remove", "get"}

// Report collects the latencies and outcome counters of a stress run
type Report struct {
	registry gometrics.Registry

	Owned      time.Duration
	Shared     time.Duration
	Contention int64
	Entries    int
}

func newReport() *Report {
	return &Report{registry: gometrics.NewRegistry()}
}

// timer returns the latency timer of op
func (r *Report) timer(op string) gometrics.Timer {
	return gometrics.GetOrRegisterTimer(op, r.registry)
}

// Count returns how many operations of kind op were timed
func (r *Report) Count(op string) int64 {
	return r.timer(op).Count()
}

// Print writes the latency percentiles per operation
func (r *Report) Print(out io.Writer) {
	fmt.Fprintf(out, "\n%-10s%12s%12s%12s%12s%12s\n", "op", "count", "mean", "p50", "p99", "p99.9")
	for _, op := range operations {
		t := r.timer(op)
		if t.Count() == 0 {
			continue
		}
		ps := t.Percentiles([]float64{0.5, 0.99, 0.999})
		fmt.Fprintf(out, "%-10s%12d%12s%12s%12s%12s\n", op, t.Count(),
			time.Duration(t.Mean()), time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]))
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "owned phase:  %s\n", r.Owned)
	fmt.Fprintf(out, "shared phase: %s\n", r.Shared)
	fmt.Fprintf(out, "contention:   %d retried operations\n", r.Contention)
	fmt.Fprintf(out, "entries:      %d\n", r.Entries)
}
