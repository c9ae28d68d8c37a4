package util

import (
	"strings"
	"testing"

	"github.com/ValentinKolb/htrie/lib/common"
	"github.com/ValentinKolb/htrie/lib/table"
	"github.com/ValentinKolb/htrie/lib/table/engines/hashtrie"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 40)
	for _, line := range strings.Split(WrapString(text), "\n") {
		require.LessOrEqual(t, len(line), Wrap)
	}
	require.Equal(t, "short text", WrapString("  short   text "))
}

func TestNewTable(t *testing.T) {
	for _, engine := range []string{"hashtrie", "reference"} {
		tbl, err := NewTable("util", common.TableConfig{Engine: engine})
		require.NoError(t, err)
		require.Equal(t, table.Implementation(engine), tbl.GetInfo().Impl)
		require.NoError(t, tbl.Close())
	}

	_, err := NewTable("util", common.TableConfig{Engine: "skiplist"})
	require.Error(t, err)

	_, err = NewTable("util", common.TableConfig{Engine: "hashtrie", HashLevel: 32})
	require.Error(t, err)
}

func TestAttach(t *testing.T) {
	tbl, err := NewTable("util", common.TableConfig{Engine: "hashtrie", Participants: 1})
	require.NoError(t, err)
	defer tbl.Close()

	ops, detach := Attach(tbl)
	_, isHandle := ops.(*hashtrie.Handle[uint64, uint64])
	require.True(t, isHandle)

	// the only participant slot is taken, the table itself is returned
	fallback, noop := Attach(tbl)
	require.Same(t, tbl.(*hashtrie.Map[uint64, uint64]), fallback.(*hashtrie.Map[uint64, uint64]))
	noop()

	require.NoError(t, ops.Insert(1, 1))
	detach()
	v, ok := tbl.Get(1)
	require.True(t, ok)
	require.Equal(t, uint64(1), v)
}

func TestGetTableConfigFromFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	SetupTableFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--engine=reference", "--hash-level=6", "--no-recycle"}))
	require.NoError(t, viper.BindPFlags(cmd.PersistentFlags()))
	t.Cleanup(viper.Reset)

	conf := GetTableConfig()
	require.Equal(t, "reference", conf.Engine)
	require.Equal(t, 6, conf.HashLevel)
	require.True(t, conf.DisableRecycle)
	require.Zero(t, conf.FailLimit)
}
