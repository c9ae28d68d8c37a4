package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Table configuration struct
// --------------------------------------------------------------------------

// TableConfig selects and parameterizes the table engine used by the commands
type TableConfig struct {
	// Engine is either "hashtrie" or "reference"
	Engine string

	// level widths in bits (0 = engine default)
	HashLevel     int
	RootHashLevel int

	// hashtrie parameters (0 = engine default)
	Participants   int
	FailLimit      int
	Capacity       int
	DisableRecycle bool

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *TableConfig) String() string {
	var sb strings.Builder
	c.write(&sb)
	return sb.String()
}

func (c *TableConfig) write(sb *strings.Builder) {
	addSection(sb, "Table")
	addField(sb, "Engine", c.Engine)
	addField(sb, "Root Hash Level", orDefault(c.RootHashLevel))
	addField(sb, "Hash Level", orDefault(c.HashLevel))
	addField(sb, "Capacity", orDefault(c.Capacity))
	if c.Engine == "hashtrie" {
		addField(sb, "Participants", orDefault(c.Participants))
		addField(sb, "CAS Fail Limit", orDefault(c.FailLimit))
		addField(sb, "Recycling", strconv.FormatBool(!c.DisableRecycle))
	}

	addSection(sb, "Logging")
	addField(sb, "Log Level", c.LogLevel)
}

// --------------------------------------------------------------------------
// Benchmark configuration struct
// --------------------------------------------------------------------------

// BenchConfig holds the parameters of the bench command
type BenchConfig struct {
	Table   TableConfig
	Threads int
	Keys    int
	Skip    []string
	CSVPath string
	Metrics bool
}

// ShouldSkip reports whether the named benchmark is in the skip list
func (c *BenchConfig) ShouldSkip(test string) bool {
	for _, skip := range c.Skip {
		if strings.TrimSpace(skip) == test {
			return true
		}
	}
	return false
}

// String returns a formatted string representation of the configuration
func (c *BenchConfig) String() string {
	var sb strings.Builder
	c.Table.write(&sb)

	addSection(&sb, "Benchmark")
	addField(&sb, "Threads", strconv.Itoa(c.Threads))
	addField(&sb, "Keys", strconv.Itoa(c.Keys))
	if len(c.Skip) > 0 {
		addField(&sb, "Skip", strings.Join(c.Skip, ", "))
	}
	if c.CSVPath != "" {
		addField(&sb, "CSV", c.CSVPath)
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Stress configuration struct
// --------------------------------------------------------------------------

// StressConfig holds the parameters of the stress command
type StressConfig struct {
	Table TableConfig

	// Threads is the number of concurrent workers
	Threads int

	// OwnedKeys is the number of keys every worker inserts, updates and removes exclusively
	OwnedKeys int

	// SharedKeys is the number of keys all workers update and read
	SharedKeys int

	// Ops is the number of operations per worker and phase
	Ops int
}

// String returns a formatted string representation of the configuration
func (c *StressConfig) String() string {
	var sb strings.Builder
	c.Table.write(&sb)

	addSection(&sb, "Stress")
	addField(&sb, "Threads", strconv.Itoa(c.Threads))
	addField(&sb, "Owned Keys", fmt.Sprintf("%d per worker", c.OwnedKeys))
	addField(&sb, "Shared Keys", strconv.Itoa(c.SharedKeys))
	addField(&sb, "Operations", fmt.Sprintf("%d per worker and phase", c.Ops))
	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func addSection(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
}

func addField(sb *strings.Builder, name, value string) {
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
}

func orDefault(v int) string {
	if v == 0 {
		return "default"
	}
	return strconv.Itoa(v)
}
