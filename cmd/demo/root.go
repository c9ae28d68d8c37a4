package demo

import (
	"errors"
	"fmt"
	"io"

	"github.com/ValentinKolb/htrie/cmd/util"
	"github.com/ValentinKolb/htrie/lib/table"
	"github.com/spf13/cobra"
)

var (
	// DemoCmd runs a short scripted history against the configured engine
	DemoCmd = &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted history and print every outcome",
		Long: util.WrapString(`Inserts the keys 0 to 15 with value 10, then inserts, updates and
removes key 16 and prints every outcome. The run fails if an outcome differs
from the expected one.`),
		Args: cobra.NoArgs,
		RunE: run,
	}
)

func run(cmd *cobra.Command, _ []string) error {
	tbl, err := util.NewTable("demo", util.GetTableConfig())
	if err != nil {
		return err
	}
	defer tbl.Close()

	return Run(tbl, cmd.OutOrStdout())
}

// Run executes the scripted history against tbl and writes one line per step
func Run(tbl table.Table[uint64, uint64], out io.Writer) error {
	s := &script{tbl: tbl, out: out}

	for k := uint64(0); k < 16; k++ {
		s.expect(fmt.Sprintf("insert(%d, 10)", k), tbl.Insert(k, 10), nil)
	}
	s.expectLen(16)

	s.expect("insert(16, 10)", tbl.Insert(16, 10), nil)
	s.expectGet(16, 10, true)
	s.expect("insert(16, 99)", tbl.Insert(16, 99), table.ErrDuplicateKey)

	s.expect("update(16, 55)", tbl.Update(16, 55), nil)
	s.expectGet(16, 55, true)

	s.expect("remove(16)", tbl.Remove(16), nil)
	s.expectGet(16, 0, false)
	s.expect("remove(16)", tbl.Remove(16), table.ErrNotFound)
	s.expect("update(16, 1)", tbl.Update(16, 1), table.ErrNotFound)
	s.expectLen(16)

	if s.failed > 0 {
		return fmt.Errorf("%d of %d steps had an unexpected outcome", s.failed, s.steps)
	}
	fmt.Fprintf(out, "\nall %d steps had the expected outcome\n", s.steps)
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

type script struct {
	tbl    table.Table[uint64, uint64]
	out    io.Writer
	steps  int
	failed int
}

func (s *script) report(step, got string, ok bool) {
	s.steps++
	mark := "ok"
	if !ok {
		s.failed++
		mark = "UNEXPECTED"
	}
	fmt.Fprintf(s.out, "%-20s-> %-30s%s\n", step, got, mark)
}

func (s *script) expect(step string, err, want error) {
	got := "ok"
	if err != nil {
		got = err.Error()
	}
	s.report(step, got, errors.Is(err, want))
}

func (s *script) expectGet(key, want uint64, found bool) {
	v, ok := s.tbl.Get(key)
	got := "not found"
	if ok {
		got = fmt.Sprintf("%d", v)
	}
	s.report(fmt.Sprintf("get(%d)", key), got, ok == found && (!ok || v == want))
}

func (s *script) expectLen(want int) {
	n := s.tbl.Len()
	s.report("len()", fmt.Sprintf("%d", n), n == want)
}
