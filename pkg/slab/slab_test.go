package slab_test

import (
	"sync"
	"testing"

	"github.com/qrutyy/ls-bdd/pkg/slab"
)

type record struct {
	key   uint64
	value *uint64
}

func Test_Get_Returns_Zeroed_Distinct_Records(t *testing.T) {
	t.Parallel()

	arena := slab.New[record](4)

	seen := map[*record]bool{}

	for i := 0; i < 100; i++ {
		r := arena.Get()
		if r == nil {
			t.Fatal("Get must never return nil")
		}

		if r.key != 0 || r.value != nil {
			t.Fatalf("Get must return a zeroed record; got %+v", *r)
		}

		if seen[r] {
			t.Fatal("Get must not hand out the same record twice")
		}

		seen[r] = true
		r.key = uint64(i)
	}

	if got := arena.Allocated(); got != 100 {
		t.Fatalf("Allocated() = %d, want 100", got)
	}
}

func Test_Records_Keep_Their_Contents_Across_Block_Growth(t *testing.T) {
	t.Parallel()

	arena := slab.New[record](8)

	records := make([]*record, 0, 1000)

	for i := 0; i < 1000; i++ {
		r := arena.Get()
		r.key = uint64(i)
		records = append(records, r)
	}

	for i, r := range records {
		if r.key != uint64(i) {
			t.Fatalf("record %d holds key %d after arena growth", i, r.key)
		}
	}
}

func Test_Concurrent_Get_Hands_Out_Unique_Records(t *testing.T) {
	t.Parallel()

	arena := slab.New[record](16)

	const (
		workers   = 8
		perWorker = 500
	)

	results := make([][]*record, workers)

	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		w := w

		wg.Add(1)

		go func() {
			defer wg.Done()

			out := make([]*record, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				out = append(out, arena.Get())
			}

			results[w] = out
		}()
	}

	wg.Wait()

	seen := map[*record]bool{}

	for _, out := range results {
		for _, r := range out {
			if seen[r] {
				t.Fatal("two workers received the same record")
			}

			seen[r] = true
		}
	}

	if got := arena.Allocated(); got != workers*perWorker {
		t.Fatalf("Allocated() = %d, want %d", got, workers*perWorker)
	}
}
