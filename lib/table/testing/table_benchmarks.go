package testing

import (
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/htrie/lib/table"
)

// benchKeySpread is the number of distinct keys used by the read and update benchmarks
const benchKeySpread = 1 << 16

// RunTableBenchmarks runs all benchmarks for a table implementation
func RunTableBenchmarks(b *testing.B, name string, factory TableFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Insert", func(b *testing.B) {
			benchmarkInsert(b, factory())
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory())
		})

		b.Run("Get(miss)", func(b *testing.B) {
			benchmarkGetMiss(b, factory())
		})

		b.Run("Update", func(b *testing.B) {
			benchmarkUpdate(b, factory())
		})

		b.Run("InsertRemove", func(b *testing.B) {
			benchmarkInsertRemove(b, factory())
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// fill inserts benchKeySpread keys
func fill(b *testing.B, tbl table.Table[uint64, uint64]) {
	for k := uint64(0); k < benchKeySpread; k++ {
		if err := tbl.Insert(k, k); err != nil {
			b.Fatalf("Insert %d failed: %v", k, err)
		}
	}
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Insert of fresh keys
func benchmarkInsert(b *testing.B, tbl table.Table[uint64, uint64]) {
	b.Cleanup(func() {
		tbl.Close()
	})

	requireFeature(b, tbl, table.FeatureInsert)

	var next atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tbl.Insert(next.Add(1), 1)
		}
	})
}

// Benchmark for Get of present keys
func benchmarkGet(b *testing.B, tbl table.Table[uint64, uint64]) {
	b.Cleanup(func() {
		tbl.Close()
	})

	requireFeature(b, tbl, table.FeatureInsert|table.FeatureGet)
	fill(b, tbl)

	var offset atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := offset.Add(7919)
		for pb.Next() {
			tbl.Get(i % benchKeySpread)
			i++
		}
	})
}

// Benchmark for Get of absent keys
func benchmarkGetMiss(b *testing.B, tbl table.Table[uint64, uint64]) {
	b.Cleanup(func() {
		tbl.Close()
	})

	requireFeature(b, tbl, table.FeatureInsert|table.FeatureGet)
	fill(b, tbl)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := uint64(benchKeySpread)
		for pb.Next() {
			tbl.Get(i)
			i++
		}
	})
}

// Benchmark for Update of present keys, exercises node recycling
func benchmarkUpdate(b *testing.B, tbl table.Table[uint64, uint64]) {
	b.Cleanup(func() {
		tbl.Close()
	})

	requireFeature(b, tbl, table.FeatureInsert|table.FeatureUpdate)
	fill(b, tbl)

	var offset atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := offset.Add(7919)
		for pb.Next() {
			_ = tbl.Update(i%benchKeySpread, i)
			i++
		}
	})
}

// Benchmark for Insert followed by Remove of the same key
func benchmarkInsertRemove(b *testing.B, tbl table.Table[uint64, uint64]) {
	b.Cleanup(func() {
		tbl.Close()
	})

	requireFeature(b, tbl, table.FeatureInsert|table.FeatureRemove)

	var worker atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		base := worker.Add(1) << 32
		i := uint64(0)
		for pb.Next() {
			k := base | (i % 1024)
			_ = tbl.Insert(k, i)
			_ = tbl.Remove(k)
			i++
		}
	})
}

// Benchmark with a read heavy mix: 80% Get, 10% Update, 5% Insert, 5% Remove
func benchmarkMixedUsage(b *testing.B, tbl table.Table[uint64, uint64]) {
	b.Cleanup(func() {
		tbl.Close()
	})

	requireFeature(b, tbl, table.FeatureInsert|table.FeatureGet|table.FeatureUpdate|table.FeatureRemove)
	fill(b, tbl)

	var offset atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := offset.Add(7919)
		for pb.Next() {
			k := i % benchKeySpread
			switch i % 20 {
			case 0:
				_ = tbl.Insert(k, i)
			case 1:
				_ = tbl.Remove(k)
			case 2, 3:
				_ = tbl.Update(k, i)
			default:
				tbl.Get(k)
			}
			i++
		}
	})
}
