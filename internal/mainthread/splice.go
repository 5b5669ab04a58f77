package mainthread

// Splice replaces DeleteCount items at Start with Items.
type Splice[T any] struct {
	Start       int `json:"start"`
	DeleteCount int `json:"deleteCount"`
	Items       []T `json:"items"`
}

// Apply applies a single splice to list. Out of range offsets are clamped.
func (s Splice[T]) Apply(list []T) []T {
	start := min(max(s.Start, 0), len(list))
	end := min(start+max(s.DeleteCount, 0), len(list))

	out := make([]T, 0, len(list)-(end-start)+len(s.Items))
	out = append(out, list[:start]...)
	out = append(out, s.Items...)
	return append(out, list[end:]...)
}

// ApplySplices applies a batch of splices whose offsets were all computed
// against list. The batch is ordered by ascending Start and is applied last
// to first so earlier offsets stay valid.
func ApplySplices[T any](list []T, batch []Splice[T]) []T {
	for i := len(batch) - 1; i >= 0; i-- {
		list = batch[i].Apply(list)
	}
	return list
}
