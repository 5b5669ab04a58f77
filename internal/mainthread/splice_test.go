package mainthread

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSpliceApply(t *testing.T) {
	tests := []struct {
		name   string
		list   []string
		splice Splice[string]
		want   []string
	}{
		{"insert at head", []string{"b"}, Splice[string]{0, 0, []string{"a"}}, []string{"a", "b"}},
		{"append", []string{"a"}, Splice[string]{1, 0, []string{"b"}}, []string{"a", "b"}},
		{"replace", []string{"a", "b", "c"}, Splice[string]{1, 1, []string{"x", "y"}}, []string{"a", "x", "y", "c"}},
		{"delete", []string{"a", "b", "c"}, Splice[string]{0, 2, nil}, []string{"c"}},
		{"clamped start", []string{"a"}, Splice[string]{9, 3, []string{"z"}}, []string{"a", "z"}},
		{"clamped count", []string{"a", "b"}, Splice[string]{1, 9, nil}, []string{"a"}},
		{"negative", []string{"a"}, Splice[string]{-1, -1, []string{"z"}}, []string{"z", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.splice.Apply(tt.list)); diff != "" {
				t.Errorf("Apply mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSpliceApplyDoesNotAlias(t *testing.T) {
	list := []int{1, 2, 3}
	Splice[int]{Start: 1, DeleteCount: 1, Items: []int{9}}.Apply(list)
	if diff := cmp.Diff([]int{1, 2, 3}, list); diff != "" {
		t.Errorf("input modified (-want +got):\n%s", diff)
	}
}

// randomBatch returns non-overlapping splices against a list of length n,
// ordered by ascending start.
func randomBatch(r *rand.Rand, n int) []Splice[int] {
	starts := map[int]bool{}
	for i := r.Intn(5); i >= 0; i-- {
		starts[r.Intn(n+1)] = true
	}
	keys := make([]int, 0, len(starts))
	for s := range starts {
		keys = append(keys, s)
	}
	sort.Ints(keys)

	var batch []Splice[int]
	for i, s := range keys {
		limit := n - s
		if i+1 < len(keys) {
			limit = keys[i+1] - s
		}
		del := 0
		if limit > 0 {
			del = r.Intn(limit + 1)
		}
		items := make([]int, r.Intn(3))
		for j := range items {
			items[j] = 1000 + r.Intn(1000)
		}
		batch = append(batch, Splice[int]{Start: s, DeleteCount: del, Items: items})
	}
	return batch
}

func TestApplySplicesMatchesShiftedForward(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for iter := 0; iter < 500; iter++ {
		n := r.Intn(12)
		list := make([]int, n)
		for i := range list {
			list[i] = i
		}
		batch := randomBatch(r, n)

		got := ApplySplices(list, batch)

		// Forward application, re-deriving each offset from the current list.
		want := append([]int(nil), list...)
		shift := 0
		for _, s := range batch {
			want = Splice[int]{Start: s.Start + shift, DeleteCount: s.DeleteCount, Items: s.Items}.Apply(want)
			shift += len(s.Items) - s.DeleteCount
		}

		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("batch %+v on %v (-forward +reverse):\n%s", batch, list, diff)
		}
	}
}
