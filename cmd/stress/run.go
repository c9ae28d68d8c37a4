package stress

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/htrie/cmd/util"
	"github.com/ValentinKolb/htrie/lib/common"
	"github.com/ValentinKolb/htrie/lib/table"
	"github.com/ValentinKolb/htrie/lib/table/engines/reference"
	tableutil "github.com/ValentinKolb/htrie/lib/table/util"
	"github.com/sourcegraph/conc/pool"
)

// sharedBase keeps the shared keys apart from the owned ones
const sharedBase = uint64(1) << 63

// Run executes both phases against a fresh table built from conf.Table.
// The returned report is valid even if a check failed.
func Run(conf *common.StressConfig) (*Report, error) {
	tbl, err := util.NewTable("stress", conf.Table)
	if err != nil {
		return nil, err
	}
	defer tbl.Close()

	report := newReport()
	var contention atomic.Int64
	defer func() { report.Contention = contention.Load() }()

	start := time.Now()
	models, err := runOwned(tbl, conf, report, &contention)
	report.Owned = time.Since(start)
	if err != nil {
		return report, fmt.Errorf("owned phase: %w", err)
	}
	if err := compareWithReference(tbl, conf, models); err != nil {
		return report, fmt.Errorf("owned phase: %w", err)
	}
	plog.Infof("owned phase passed with %d entries", tbl.Len())

	start = time.Now()
	err = runShared(tbl, conf, report, &contention)
	report.Shared = time.Since(start)
	if err != nil {
		return report, fmt.Errorf("shared phase: %w", err)
	}
	plog.Infof("shared phase passed")

	report.Entries = tbl.Len()
	return report, nil
}

// retry repeats op while it reports contention
func retry(contention *atomic.Int64, op func() error) error {
	for {
		err := op()
		if !errors.Is(err, table.ErrContention) {
			return err
		}
		contention.Add(1)
	}
}

// --------------------------------------------------------------------------
// Owned phase
// --------------------------------------------------------------------------

// runOwned lets every worker mutate its own keys and compares each outcome
// with a private model. It returns the final models.
func runOwned(tbl table.Table[uint64, uint64], conf *common.StressConfig, report *Report, contention *atomic.Int64) ([]map[uint64]uint64, error) {
	models := make([]map[uint64]uint64, conf.Threads)
	seed := tableutil.GenerateSeed()

	p := pool.New().WithErrors().WithMaxGoroutines(conf.Threads)
	for w := 0; w < conf.Threads; w++ {
		model := make(map[uint64]uint64, conf.OwnedKeys)
		models[w] = model

		p.Go(func() error {
			ops, detach := util.Attach(tbl)
			defer detach()

			rng := rand.New(rand.NewPCG(seed, uint64(w)))
			for i := 0; i < conf.Ops; i++ {
				k := ownedKey(w, rng.IntN(conf.OwnedKeys))
				v := rng.Uint64()
				stored, present := model[k]

				begin := time.Now()
				switch rng.IntN(4) {
				case 0:
					err := retry(contention, func() error { return ops.Insert(k, v) })
					report.timer("insert").UpdateSince(begin)
					if err := check("insert", k, err, present, table.ErrDuplicateKey); err != nil {
						return err
					}
					if !present {
						model[k] = v
					}
				case 1:
					err := retry(contention, func() error { return ops.Update(k, v) })
					report.timer("update").UpdateSince(begin)
					if err := check("update", k, err, !present, table.ErrNotFound); err != nil {
						return err
					}
					if present {
						model[k] = v
					}
				case 2:
					err := retry(contention, func() error { return ops.Remove(k) })
					report.timer("remove").UpdateSince(begin)
					if err := check("remove", k, err, !present, table.ErrNotFound); err != nil {
						return err
					}
					delete(model, k)
				default:
					got, found := ops.Get(k)
					report.timer("get").UpdateSince(begin)
					if found != present || got != stored {
						return fmt.Errorf("get(%d): got (%d, %t), want (%d, %t)", k, got, found, stored, present)
					}
				}
			}
			return nil
		})
	}
	return models, p.Wait()
}

// check compares the outcome of op with the expected one: failing is true
// if op had to fail with want, otherwise it had to succeed
func check(op string, key uint64, err error, failing bool, want error) error {
	switch {
	case failing && !errors.Is(err, want):
		return fmt.Errorf("%s(%d): got %v, want %v", op, key, err, want)
	case !failing && err != nil:
		return fmt.Errorf("%s(%d): got %v, want success", op, key, err)
	}
	return nil
}

func ownedKey(worker, i int) uint64 {
	return uint64(worker)<<32 | uint64(i)
}

// compareWithReference replays the final models into the reference engine
// and requires the table to hold exactly the same entries
func compareWithReference(tbl table.Table[uint64, uint64], conf *common.StressConfig, models []map[uint64]uint64) error {
	ref, err := reference.New[uint64, uint64](tableutil.Uint64Hasher(tableutil.GenerateSeed()), &reference.Options{
		Capacity: conf.Threads * conf.OwnedKeys,
	})
	if err != nil {
		return err
	}
	defer ref.Close()

	for _, model := range models {
		for k, v := range model {
			if err := ref.Insert(k, v); err != nil {
				return fmt.Errorf("reference insert(%d): %w", k, err)
			}
		}
	}

	for w := 0; w < conf.Threads; w++ {
		for i := 0; i < conf.OwnedKeys; i++ {
			k := ownedKey(w, i)
			want, wantOK := ref.Get(k)
			got, gotOK := tbl.Get(k)
			if got != want || gotOK != wantOK {
				return fmt.Errorf("key %d: table has (%d, %t), reference has (%d, %t)", k, got, gotOK, want, wantOK)
			}
		}
	}
	if tbl.Len() != ref.Len() {
		return fmt.Errorf("table holds %d entries, reference holds %d", tbl.Len(), ref.Len())
	}
	return nil
}

// --------------------------------------------------------------------------
// Shared phase
// --------------------------------------------------------------------------

// runShared lets half of the workers update the shared keys with values
// that encode writer and sequence number while the other half reads them.
// A reader must never see a sequence number of a writer below one it has
// already seen on the same key.
func runShared(tbl table.Table[uint64, uint64], conf *common.StressConfig, report *Report, contention *atomic.Int64) error {
	for i := 0; i < conf.SharedKeys; i++ {
		if err := tbl.Insert(sharedBase|uint64(i), 0); err != nil {
			return fmt.Errorf("insert(%d): %w", sharedBase|uint64(i), err)
		}
	}

	writers := conf.Threads / 2
	p := pool.New().WithErrors().WithMaxGoroutines(conf.Threads)

	for w := 1; w <= writers; w++ {
		p.Go(func() error {
			ops, detach := util.Attach(tbl)
			defer detach()

			for seq := 1; seq <= conf.Ops; seq++ {
				k := sharedBase | uint64(seq%conf.SharedKeys)
				begin := time.Now()
				err := retry(contention, func() error { return ops.Update(k, uint64(w)<<32|uint64(seq)) })
				report.timer("update").UpdateSince(begin)
				if err != nil {
					return fmt.Errorf("writer %d: update(%d): %w", w, k, err)
				}
			}
			return nil
		})
	}

	for r := writers; r < conf.Threads; r++ {
		p.Go(func() error {
			ops, detach := util.Attach(tbl)
			defer detach()

			// last[key][writer] is the highest sequence number seen
			last := make([][]uint64, conf.SharedKeys)
			for i := range last {
				last[i] = make([]uint64, writers+1)
			}

			for i := 0; i < conf.Ops; i++ {
				slot := i % conf.SharedKeys
				begin := time.Now()
				v, ok := ops.Get(sharedBase | uint64(slot))
				report.timer("get").UpdateSince(begin)
				if !ok {
					return fmt.Errorf("reader %d: shared key %d vanished", r, slot)
				}

				writer, seq := v>>32, v&0xffffffff
				switch {
				case writer > uint64(writers) || seq > uint64(conf.Ops):
					return fmt.Errorf("reader %d: key %d holds a value nobody wrote: %#x", r, slot, v)
				case seq < last[slot][writer]:
					return fmt.Errorf("reader %d: key %d went back from seq %d to %d of writer %d", r, slot, last[slot][writer], seq, writer)
				}
				last[slot][writer] = seq
			}
			return nil
		})
	}

	return p.Wait()
}
