package testing

import (
	"errors"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/htrie/lib/table"
	"github.com/sourcegraph/conc"
)

// TableFactory is a function that creates a new instance of a Table implementation
type TableFactory func() table.Table[uint64, uint64]

// RunTableTests runs a comprehensive test suite for a Table implementation.
func RunTableTests(t *testing.T, name string, factory TableFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Insert&Get", func(t *testing.T) {
			testInsertGet(t, factory())
		})

		t.Run("DuplicateKey", func(t *testing.T) {
			testDuplicateKey(t, factory())
		})

		t.Run("Update", func(t *testing.T) {
			testUpdate(t, factory())
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, factory())
		})

		t.Run("Scenario", func(t *testing.T) {
			testScenario(t, factory())
		})

		t.Run("ManyKeys", func(t *testing.T) {
			testManyKeys(t, factory())
		})

		t.Run("Close", func(t *testing.T) {
			testClose(t, factory())
		})

		t.Run("ConcurrentDisjointKeys", func(t *testing.T) {
			testConcurrentDisjointKeys(t, factory())
		})

		t.Run("ConcurrentOwnedKeys", func(t *testing.T) {
			testConcurrentOwnedKeys(t, factory())
		})

		t.Run("ConcurrentSharedKey", func(t *testing.T) {
			testConcurrentSharedKey(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the table supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, tbl table.Table[uint64, uint64], feature table.Feature) {
	if !tbl.SupportsFeature(feature) {
		t.Skip()
	}
}

// retry repeats op while it reports contention
func retry(op func() error) error {
	for {
		err := op()
		if !table.IsRetryable(err) {
			return err
		}
		runtime.Gosched()
	}
}

func workers() int {
	n := runtime.GOMAXPROCS(0)
	if n < 4 {
		n = 4
	}
	return n
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testInsertGet(t *testing.T, tbl table.Table[uint64, uint64]) {
	defer tbl.Close()

	requireFeature(t, tbl, table.FeatureInsert|table.FeatureGet)

	if err := tbl.Insert(1, 100); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	value, found := tbl.Get(1)
	if !found {
		t.Errorf("Expected key 1 to exist after Insert")
	}
	if value != 100 {
		t.Errorf("Expected value 100, got %d", value)
	}

	if _, found := tbl.Get(2); found {
		t.Errorf("Expected nonexistent key to return found=false")
	}

	// the zero key and the zero value are ordinary entries
	if err := tbl.Insert(0, 0); err != nil {
		t.Fatalf("Insert of zero key failed: %v", err)
	}
	if value, found := tbl.Get(0); !found || value != 0 {
		t.Errorf("Expected zero key with value 0, got %d (found=%v)", value, found)
	}

	if tbl.Len() != 2 {
		t.Errorf("Expected Len 2, got %d", tbl.Len())
	}
}

func testDuplicateKey(t *testing.T, tbl table.Table[uint64, uint64]) {
	defer tbl.Close()

	requireFeature(t, tbl, table.FeatureInsert|table.FeatureGet)

	if err := tbl.Insert(7, 1); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	err := tbl.Insert(7, 2)
	if !errors.Is(err, table.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	if value, _ := tbl.Get(7); value != 1 {
		t.Errorf("Duplicate insert must not overwrite: expected 1, got %d", value)
	}
	if tbl.Len() != 1 {
		t.Errorf("Expected Len 1 after duplicate insert, got %d", tbl.Len())
	}
}

func testUpdate(t *testing.T, tbl table.Table[uint64, uint64]) {
	defer tbl.Close()

	requireFeature(t, tbl, table.FeatureInsert|table.FeatureGet|table.FeatureUpdate)

	if err := tbl.Update(3, 30); !errors.Is(err, table.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for update of absent key, got %v", err)
	}
	if _, found := tbl.Get(3); found {
		t.Errorf("Update must not create a key")
	}

	if err := tbl.Insert(3, 30); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	for i := uint64(0); i < 100; i++ {
		if err := tbl.Update(3, i); err != nil {
			t.Fatalf("Update %d failed: %v", i, err)
		}
		if value, _ := tbl.Get(3); value != i {
			t.Fatalf("Expected value %d after update, got %d", i, value)
		}
	}

	if tbl.Len() != 1 {
		t.Errorf("Expected Len 1 after updates, got %d", tbl.Len())
	}
}

func testRemove(t *testing.T, tbl table.Table[uint64, uint64]) {
	defer tbl.Close()

	requireFeature(t, tbl, table.FeatureInsert|table.FeatureGet|table.FeatureRemove)

	if err := tbl.Insert(5, 50); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := tbl.Remove(5); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, found := tbl.Get(5); found {
		t.Errorf("Expected key to be gone after Remove")
	}
	if err := tbl.Remove(5); !errors.Is(err, table.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for second Remove, got %v", err)
	}
	if tbl.Len() != 0 {
		t.Errorf("Expected Len 0 after Remove, got %d", tbl.Len())
	}

	// a removed key can be inserted again
	if err := tbl.Insert(5, 51); err != nil {
		t.Fatalf("Reinsert failed: %v", err)
	}
	if value, _ := tbl.Get(5); value != 51 {
		t.Errorf("Expected value 51 after reinsert, got %d", value)
	}
}

func testScenario(t *testing.T, tbl table.Table[uint64, uint64]) {
	defer tbl.Close()

	requireFeature(t, tbl, table.FeatureInsert|table.FeatureGet|table.FeatureUpdate|table.FeatureRemove)

	for k := uint64(0); k < 16; k++ {
		if err := tbl.Insert(k, 10); err != nil {
			t.Fatalf("Insert %d failed: %v", k, err)
		}
	}
	if tbl.Len() != 16 {
		t.Errorf("Expected Len 16, got %d", tbl.Len())
	}

	if err := tbl.Insert(16, 10); err != nil {
		t.Fatalf("Insert 16 failed: %v", err)
	}
	if value, found := tbl.Get(16); !found || value != 10 {
		t.Errorf("Expected 10 for key 16, got %d (found=%v)", value, found)
	}

	if err := tbl.Update(16, 55); err != nil {
		t.Fatalf("Update 16 failed: %v", err)
	}
	if value, found := tbl.Get(16); !found || value != 55 {
		t.Errorf("Expected 55 for key 16, got %d (found=%v)", value, found)
	}

	if err := tbl.Remove(16); err != nil {
		t.Fatalf("Remove 16 failed: %v", err)
	}
	if _, found := tbl.Get(16); found {
		t.Errorf("Expected key 16 to be gone")
	}
}

func testManyKeys(t *testing.T, tbl table.Table[uint64, uint64]) {
	defer tbl.Close()

	requireFeature(t, tbl, table.FeatureInsert|table.FeatureGet|table.FeatureRemove)

	const n = 20000
	for k := uint64(0); k < n; k++ {
		if err := tbl.Insert(k, k*3); err != nil {
			t.Fatalf("Insert %d failed: %v", k, err)
		}
	}
	if tbl.Len() != n {
		t.Errorf("Expected Len %d, got %d", n, tbl.Len())
	}

	for k := uint64(0); k < n; k++ {
		if value, found := tbl.Get(k); !found || value != k*3 {
			t.Fatalf("Expected %d for key %d, got %d (found=%v)", k*3, k, value, found)
		}
	}

	// remove every second key
	for k := uint64(0); k < n; k += 2 {
		if err := tbl.Remove(k); err != nil {
			t.Fatalf("Remove %d failed: %v", k, err)
		}
	}
	for k := uint64(0); k < n; k++ {
		_, found := tbl.Get(k)
		if found != (k%2 == 1) {
			t.Fatalf("Key %d: expected found=%v", k, k%2 == 1)
		}
	}
	if tbl.Len() != n/2 {
		t.Errorf("Expected Len %d, got %d", n/2, tbl.Len())
	}
}

func testClose(t *testing.T, tbl table.Table[uint64, uint64]) {
	if err := tbl.Insert(1, 1); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := tbl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := tbl.Insert(2, 2); !errors.Is(err, table.ErrClosed) {
		t.Errorf("Expected ErrClosed after Close, got %v", err)
	}
	if _, found := tbl.Get(1); found {
		t.Errorf("Expected no entries after Close")
	}
	if err := tbl.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}

func testConcurrentDisjointKeys(t *testing.T, tbl table.Table[uint64, uint64]) {
	defer tbl.Close()

	requireFeature(t, tbl, table.FeatureInsert|table.FeatureGet)

	const perWorker = 2000
	n := workers()

	var wg conc.WaitGroup
	for w := 0; w < n; w++ {
		base := uint64(w) * perWorker
		wg.Go(func() {
			for i := uint64(0); i < perWorker; i++ {
				if err := retry(func() error { return tbl.Insert(base+i, base+i) }); err != nil {
					t.Errorf("Insert %d failed: %v", base+i, err)
					return
				}
			}
		})
	}
	wg.Wait()

	if tbl.Len() != n*perWorker {
		t.Errorf("Expected Len %d, got %d", n*perWorker, tbl.Len())
	}
	for k := uint64(0); k < uint64(n*perWorker); k++ {
		if value, found := tbl.Get(k); !found || value != k {
			t.Fatalf("Expected %d for key %d, got %d (found=%v)", k, k, value, found)
		}
	}
}

// Each worker owns a key range and checks the table against a private model
// while every other worker churns its own keys.
func testConcurrentOwnedKeys(t *testing.T, tbl table.Table[uint64, uint64]) {
	defer tbl.Close()

	requireFeature(t, tbl, table.FeatureInsert|table.FeatureGet|table.FeatureUpdate|table.FeatureRemove)

	const keysPerWorker = 64
	const rounds = 3000
	n := workers()

	var wg conc.WaitGroup
	for w := 0; w < n; w++ {
		base := uint64(w) * keysPerWorker
		wg.Go(func() {
			model := make(map[uint64]uint64)
			state := base*7919 + 1
			for r := 0; r < rounds; r++ {
				state = state*6364136223846793005 + 1442695040888963407
				k := base + (state>>33)%keysPerWorker
				_, present := model[k]

				var err error
				switch (state >> 20) % 3 {
				case 0:
					err = retry(func() error { return tbl.Insert(k, uint64(r)) })
					if present && !errors.Is(err, table.ErrDuplicateKey) {
						t.Errorf("Insert of present key %d: expected ErrDuplicateKey, got %v", k, err)
					} else if !present && err == nil {
						model[k] = uint64(r)
					} else if !present {
						t.Errorf("Insert of absent key %d failed: %v", k, err)
					}
				case 1:
					err = retry(func() error { return tbl.Update(k, uint64(r)) })
					if present && err == nil {
						model[k] = uint64(r)
					} else if present || !errors.Is(err, table.ErrNotFound) {
						t.Errorf("Update of key %d (present=%v): unexpected %v", k, present, err)
					}
				default:
					err = retry(func() error { return tbl.Remove(k) })
					if present && err == nil {
						delete(model, k)
					} else if present || !errors.Is(err, table.ErrNotFound) {
						t.Errorf("Remove of key %d (present=%v): unexpected %v", k, present, err)
					}
				}

				value, found := tbl.Get(k)
				want, ok := model[k]
				if found != ok || value != want {
					t.Errorf("Key %d: got (%d, %v), model (%d, %v)", k, value, found, want, ok)
					return
				}
			}
		})
	}
	wg.Wait()
}

// Writers update one shared key with strictly increasing values tagged with
// their id, while one more writer removes the key and inserts it again with
// its own increasing values. Readers must only ever observe written values or
// a missing key, and the values of a single writer must appear in order.
func testConcurrentSharedKey(t *testing.T, tbl table.Table[uint64, uint64]) {
	defer tbl.Close()

	requireFeature(t, tbl, table.FeatureInsert|table.FeatureGet|table.FeatureUpdate|table.FeatureRemove)

	const key = 42
	const updates = 5000
	const idShift = 32
	updaters := workers() / 2
	readers := workers() - updaters
	churner := uint64(updaters + 1)
	writers := updaters + 1

	if err := tbl.Insert(key, 0); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	var done atomic.Int32
	var wg conc.WaitGroup
	for w := 1; w <= updaters; w++ {
		id := uint64(w)
		wg.Go(func() {
			defer done.Add(1)
			for seq := uint64(1); seq <= updates; seq++ {
				err := retry(func() error { return tbl.Update(key, id<<idShift|seq) })
				if err != nil && !errors.Is(err, table.ErrNotFound) {
					t.Errorf("Update failed: %v", err)
					return
				}
			}
		})
	}

	wg.Go(func() {
		defer done.Add(1)
		for seq := uint64(1); seq <= updates; seq++ {
			if err := retry(func() error { return tbl.Remove(key) }); err != nil {
				t.Errorf("Remove failed: %v", err)
				return
			}
			if err := retry(func() error { return tbl.Insert(key, churner<<idShift|seq) }); err != nil {
				t.Errorf("Insert failed: %v", err)
				return
			}
		}
	})

	for r := 0; r < readers; r++ {
		wg.Go(func() {
			last := make([]uint64, writers+1)
			for done.Load() < int32(writers) {
				value, found := tbl.Get(key)
				if !found || value == 0 {
					continue
				}
				id, seq := value>>idShift, value&(1<<idShift-1)
				if id == 0 || id > uint64(writers) || seq == 0 || seq > updates {
					t.Errorf("Observed value %#x that was never written", value)
					return
				}
				if seq < last[id] {
					t.Errorf("Writer %d went back from %d to %d", id, last[id], seq)
					return
				}
				last[id] = seq
			}
		})
	}
	wg.Wait()

	// the churner inserts last, so the key is present
	value, found := tbl.Get(key)
	if !found {
		t.Fatalf("Expected the shared key to be present after the churner finished")
	}
	if id := value >> idShift; id == 0 || id > uint64(writers) {
		t.Errorf("Expected the final value to come from a writer, got %#x", value)
	}
}
