package stress

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/htrie/lib/common"
	"github.com/stretchr/testify/require"
)

func stressConf(engine string) *common.StressConfig {
	return &common.StressConfig{
		Table:      common.TableConfig{Engine: engine},
		Threads:    4,
		OwnedKeys:  64,
		SharedKeys: 4,
		Ops:        5000,
	}
}

func TestRunHashTrie(t *testing.T) {
	report, err := Run(stressConf("hashtrie"))
	require.NoError(t, err)

	// 4 owned workers, then 2 writers and 2 readers
	total := report.Count("insert") + report.Count("update") + report.Count("remove") + report.Count("get")
	require.Equal(t, int64(4*5000+2*5000+2*5000), total)

	var out bytes.Buffer
	report.Print(&out)
	require.Contains(t, out.String(), "p99.9")
}

func TestRunNarrowLevels(t *testing.T) {
	conf := stressConf("hashtrie")
	conf.Table.RootHashLevel = 1
	conf.Table.HashLevel = 1
	conf.Table.FailLimit = 1

	_, err := Run(conf)
	require.NoError(t, err)
}

func TestRunReference(t *testing.T) {
	_, err := Run(stressConf("reference"))
	require.NoError(t, err)
}

func TestRunRejectsUnknownEngine(t *testing.T) {
	_, err := Run(stressConf("btree"))
	require.Error(t, err)
}
