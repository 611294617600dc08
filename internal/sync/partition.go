package sync

import "github.com/tl-its-umich-edu/placement-exams/internal/model"

// PartitionByUniqname separates submissions whose student appears more than
// once in the pending set. Those have to be sent one per call; the rest can
// share a bulk call. Relative order is kept in both groups.
func PartitionByUniqname(subs []model.Submission) (regular, duplicates []model.Submission) {
	counts := make(map[string]int, len(subs))
	for _, sub := range subs {
		counts[sub.StudentUniqname]++
	}

	for _, sub := range subs {
		if counts[sub.StudentUniqname] > 1 {
			duplicates = append(duplicates, sub)
		} else {
			regular = append(regular, sub)
		}
	}
	return regular, duplicates
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(items)
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
