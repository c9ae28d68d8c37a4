package bench

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/htrie/cmd/util"
	"github.com/ValentinKolb/htrie/lib/common"
	"github.com/ValentinKolb/htrie/lib/table"
	"github.com/stretchr/testify/require"
)

func TestStepKeepsKeysOfInsertRemoveBalanced(t *testing.T) {
	tbl, err := util.NewTable("step", common.TableConfig{Engine: "hashtrie"})
	require.NoError(t, err)
	defer tbl.Close()

	for i := uint64(0); i < 5000; i++ {
		require.NoError(t, step(tbl, "insert-remove", 1, i, 100))
	}
	require.Zero(t, tbl.Len())

	for i := uint64(0); i < 100; i++ {
		require.NoError(t, step(tbl, "insert", 2, i, 100))
	}
	require.Equal(t, 100, tbl.Len())
	require.ErrorIs(t, step(tbl, "insert", 2, 0, 100), table.ErrDuplicateKey)
}

func TestRunBenchmarkSkipped(t *testing.T) {
	benchConfig = &common.BenchConfig{
		Table:   common.TableConfig{Engine: "reference"},
		Threads: 1,
		Keys:    16,
		Skip:    []string{"get"},
	}

	var out bytes.Buffer
	result := runBenchmark(&out, "get")
	require.Zero(t, result.N)

	printResult(&out, "get", result)
	require.Contains(t, out.String(), "skipped")
}

func TestWriteResultsToCSV(t *testing.T) {
	benchConfig = &common.BenchConfig{
		Table:   common.TableConfig{Engine: "hashtrie"},
		Threads: 2,
		Keys:    128,
	}
	results := map[string]testing.BenchmarkResult{
		"get": {N: 1000, T: 1000000},
	}

	path := filepath.Join(t.TempDir(), "results.csv")
	require.NoError(t, writeResultsToCSV(path, results))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, len(benchmarks)+1)

	for _, row := range rows[1:] {
		if row[0] == "get" {
			require.Equal(t, "1000", row[1])
			require.Equal(t, "false", row[4])
		} else {
			require.Equal(t, "true", row[4])
		}
	}
}
