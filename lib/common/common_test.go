package common

import (
	"bytes"
	"log"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]logger.LogLevel{
		"debug": logger.DEBUG,
		"INFO":  logger.INFO,
		"warn":  logger.WARNING,
		"error": logger.ERROR,
	} {
		got, err := ParseLogLevel(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ParseLogLevel("loud")
	require.Error(t, err)
	require.Error(t, InitLoggers("loud"))
}

func TestModuleLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := CreateLogger("epoch").(*moduleLogger)
	l.out = log.New(&buf, "", 0)

	l.Infof("hidden %d", 1)
	l.Warningf("shown %d", 2)
	require.Equal(t, "WARN  | epoch      | shown 2\n", buf.String())

	buf.Reset()
	l.SetLevel(logger.DEBUG)
	l.Debugf("now visible")
	require.Contains(t, buf.String(), "DEBUG | epoch      | now visible")

	require.PanicsWithValue(t, "boom 3", func() { l.Panicf("boom %d", 3) })
}

func TestBenchConfig(t *testing.T) {
	c := &BenchConfig{
		Table:   TableConfig{Engine: "hashtrie", LogLevel: "warn", FailLimit: 20},
		Threads: 4,
		Keys:    100,
		Skip:    []string{"insert", " update"},
	}

	require.True(t, c.ShouldSkip("insert"))
	require.True(t, c.ShouldSkip("update"))
	require.False(t, c.ShouldSkip("get"))

	s := c.String()
	require.Contains(t, s, "TABLE")
	require.Contains(t, s, "CAS Fail Limit")
	require.Contains(t, s, "BENCHMARK")
}

func TestReferenceConfigOmitsHashTrieFields(t *testing.T) {
	c := &TableConfig{Engine: "reference", LogLevel: "info"}
	require.NotContains(t, c.String(), "Participants")
}
