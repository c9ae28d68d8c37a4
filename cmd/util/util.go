package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/htrie/lib/common"
	"github.com/ValentinKolb/htrie/lib/table"
	"github.com/ValentinKolb/htrie/lib/table/engines/hashtrie"
	"github.com/ValentinKolb/htrie/lib/table/engines/reference"
	tableutil "github.com/ValentinKolb/htrie/lib/table/util"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupTableFlags adds the engine selection and tuning flags to a command
func SetupTableFlags(cmd *cobra.Command) {
	key := "engine"
	cmd.PersistentFlags().String(key, "hashtrie", WrapString("The table engine to use (hashtrie, reference)"))

	key = "hash-level"
	cmd.PersistentFlags().Int(key, 0, WrapString("Bits consumed by every array level below the root, 1 to 16 (0 = default: 4)"))

	key = "root-hash-level"
	cmd.PersistentFlags().Int(key, 0, WrapString("Bits consumed by the root array, 1 to 16 (0 = default: 8)"))

	key = "capacity"
	cmd.PersistentFlags().Int(key, 0, WrapString("Expected number of entries, array nodes are reserved for it up front"))

	key = "participants"
	cmd.PersistentFlags().Int(key, 0, WrapString("(hashtrie) Maximum number of attached handles (0 = default: 4 * GOMAXPROCS)"))

	key = "fail-limit"
	cmd.PersistentFlags().Int(key, 0, WrapString("(hashtrie) Failed CAS attempts per slot before an operation reports contention (0 = default: 20)"))

	key = "no-recycle"
	cmd.PersistentFlags().Bool(key, false, WrapString("(hashtrie) Disable the recycling of removed data nodes"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("htrie")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetTableConfig reads the table configuration from viper
func GetTableConfig() common.TableConfig {
	return common.TableConfig{
		Engine:         viper.GetString("engine"),
		HashLevel:      viper.GetInt("hash-level"),
		RootHashLevel:  viper.GetInt("root-hash-level"),
		Participants:   viper.GetInt("participants"),
		FailLimit:      viper.GetInt("fail-limit"),
		Capacity:       viper.GetInt("capacity"),
		DisableRecycle: viper.GetBool("no-recycle"),
		LogLevel:       viper.GetString("log-level"),
	}
}

// NewTable creates the configured engine for uint64 keys and values
func NewTable(name string, conf common.TableConfig) (table.Table[uint64, uint64], error) {
	hasher := tableutil.Uint64Hasher(tableutil.GenerateSeed())

	switch table.Implementation(conf.Engine) {
	case table.ImplHashTrie:
		m, err := hashtrie.New[uint64, uint64](hasher, &hashtrie.Options{
			Name:           name,
			HashLevel:      conf.HashLevel,
			RootHashLevel:  conf.RootHashLevel,
			Participants:   conf.Participants,
			FailLimit:      conf.FailLimit,
			Capacity:       conf.Capacity,
			DisableRecycle: conf.DisableRecycle,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case table.ImplReference:
		r, err := reference.New[uint64, uint64](hasher, &reference.Options{
			HashLevel:     conf.HashLevel,
			RootHashLevel: conf.RootHashLevel,
			Capacity:      conf.Capacity,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("invalid engine %s (expected one of: hashtrie, reference)", conf.Engine)
	}
}

// Ops is the part of table.Table that a hashtrie handle provides as well
type Ops interface {
	Insert(key, value uint64) error
	Update(key, value uint64) error
	Remove(key uint64) error
	Get(key uint64) (uint64, bool)
}

// Attach returns a hashtrie handle for the calling goroutine and the func
// that detaches it. Other engines, or a hashtrie without a free participant
// slot, are returned as they are.
func Attach(tbl table.Table[uint64, uint64]) (Ops, func()) {
	if m, ok := tbl.(*hashtrie.Map[uint64, uint64]); ok {
		if h, err := m.Attach(); err == nil {
			return h, h.Detach
		}
	}
	return tbl, func() {}
}
