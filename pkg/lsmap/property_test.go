package lsmap_test

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/qrutyy/ls-bdd/pkg/lsmap"
)

// keyGen draws keys from a single 2048-sector chunk so every back-end,
// including the hashed-bucket one, maintains total order over the drawn set.
var keyGen = rapid.Custom(func(t *rapid.T) lsmap.Sector {
	return lsmap.Sector(rapid.Uint64Range(1, 2047).Draw(t, "key"))
})

// mapModel is the reference the back-ends are checked against.
type mapModel struct {
	entries map[lsmap.Sector]*lsmap.Mapping
}

func (mm *mapModel) predecessor(key lsmap.Sector) (lsmap.Sector, bool) {
	var (
		best  lsmap.Sector
		found bool
	)

	for k := range mm.entries {
		if k < key && (!found || k > best) {
			best = k
			found = true
		}
	}

	return best, found
}

func (mm *mapModel) greatest() lsmap.Sector {
	var max lsmap.Sector
	for k := range mm.entries {
		if k > max {
			max = k
		}
	}

	return max
}

func Test_Map_Matches_Model_Under_Random_Ops(t *testing.T) {
	t.Parallel()

	for _, backend := range lsmap.Backends() {
		backend := backend

		t.Run(string(backend), func(t *testing.T) {
			t.Parallel()

			rapid.Check(t, func(rt *rapid.T) {
				m, err := lsmap.New(backend)
				if err != nil {
					rt.Fatalf("New: %v", err)
				}
				defer m.Destroy()

				model := &mapModel{entries: map[lsmap.Sector]*lsmap.Mapping{}}

				var nextPBA lsmap.Sector = 32

				rt.Repeat(map[string]func(*rapid.T){
					"insert": func(rt *rapid.T) {
						key := keyGen.Draw(rt, "insert key")
						if _, present := model.entries[key]; present {
							// Insert has an absent-key precondition;
							// the engine removes first.
							return
						}

						length := uint32(rapid.IntRange(1, 16).Draw(rt, "sectors")) * lsmap.SectorSize
						v := &lsmap.Mapping{PBA: nextPBA, Length: length}
						nextPBA += v.Sectors()

						if err := m.Insert(key, v); err != nil {
							rt.Fatalf("Insert(%d): %v", key, err)
						}

						model.entries[key] = v
					},
					"remove": func(rt *rapid.T) {
						key := keyGen.Draw(rt, "remove key")

						_, present := model.entries[key]

						if removed := m.Remove(key); removed != present {
							rt.Fatalf("Remove(%d) = %v, model says %v", key, removed, present)
						}

						delete(model.entries, key)
					},
					"lookup": func(rt *rapid.T) {
						key := keyGen.Draw(rt, "lookup key")

						got, found := m.Lookup(key)
						want, present := model.entries[key]

						if found != present {
							rt.Fatalf("Lookup(%d) found=%v, model says %v", key, found, present)
						}

						if found && (got.PBA != want.PBA || got.Length != want.Length) {
							rt.Fatalf("Lookup(%d) = %+v, model has %+v", key, got, want)
						}
					},
					"predecessor": func(rt *rapid.T) {
						key := keyGen.Draw(rt, "pred key")

						gotKey, gotVal, found := m.Predecessor(key)
						wantKey, present := model.predecessor(key)

						if found != present {
							rt.Fatalf("Predecessor(%d) found=%v, model says %v", key, found, present)
						}

						if !found {
							return
						}

						if gotKey != wantKey {
							rt.Fatalf("Predecessor(%d) = %d, model says %d", key, gotKey, wantKey)
						}

						if want := model.entries[wantKey]; gotVal.PBA != want.PBA {
							rt.Fatalf("Predecessor(%d) value PBA = %d, model has %d", key, gotVal.PBA, want.PBA)
						}
					},
					"isEmpty": func(rt *rapid.T) {
						if got, want := m.IsEmpty(), len(model.entries) == 0; got != want {
							rt.Fatalf("IsEmpty() = %v, model says %v", got, want)
						}
					},
					"": func(rt *rapid.T) {
						// Invariant checks between ops: every model key
						// is retrievable with its exact value.
						for k, want := range model.entries {
							got, found := m.Lookup(k)
							if !found || got.PBA != want.PBA {
								rt.Fatalf("invariant: Lookup(%d) = (%+v, %v), want %+v", k, got, found, want)
							}
						}
					},
				})
			})
		})
	}
}

func Test_GreatestKey_Matches_Model_For_Insert_Only_Sequences(t *testing.T) {
	t.Parallel()

	// Insert-only: the lock-free back-ends cache a high-water mark that is
	// exact as long as the maximum is never removed.
	for _, backend := range lsmap.Backends() {
		backend := backend

		t.Run(string(backend), func(t *testing.T) {
			t.Parallel()

			rapid.Check(t, func(rt *rapid.T) {
				m, err := lsmap.New(backend)
				if err != nil {
					rt.Fatalf("New: %v", err)
				}
				defer m.Destroy()

				model := &mapModel{entries: map[lsmap.Sector]*lsmap.Mapping{}}

				keys := rapid.SliceOfN(keyGen, 1, 64).Draw(rt, "keys")
				for _, key := range keys {
					if _, present := model.entries[key]; present {
						continue
					}

					v := &lsmap.Mapping{PBA: 32, Length: lsmap.SectorSize}
					if err := m.Insert(key, v); err != nil {
						rt.Fatalf("Insert(%d): %v", key, err)
					}

					model.entries[key] = v

					if got, want := m.GreatestKey(), model.greatest(); got != want {
						rt.Fatalf("GreatestKey = %d, model says %d", got, want)
					}
				}
			})
		})
	}
}
