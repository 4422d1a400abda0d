package store

import (
	"context"
	"errors"
	"slices"
)

// ErrGroupCycle is returned when a parent assignment would make a group its
// own ancestor.
var ErrGroupCycle = errors.New("group cannot be its own ancestor")

// CheckGroupParent walks up from parentID and fails if it reaches groupID.
// groupID is 0 for a group that does not exist yet, which can never close
// a cycle but still requires the parent to exist.
func CheckGroupParent(ctx context.Context, s GroupStore, groupID int64, parentID *int64) error {
	if parentID == nil {
		return nil
	}
	if groupID != 0 && *parentID == groupID {
		return ErrGroupCycle
	}

	seen := map[int64]struct{}{}
	current := *parentID
	for {
		if groupID != 0 && current == groupID {
			return ErrGroupCycle
		}
		if _, ok := seen[current]; ok {
			// pre-existing loop above us, refuse to extend it
			return ErrGroupCycle
		}
		seen[current] = struct{}{}

		g, err := s.GetGroup(ctx, current)
		if err != nil {
			return err
		}
		if g.ParentID == nil {
			return nil
		}
		current = *g.ParentID
	}
}

// DedupeIDs drops zero and repeated ids while keeping the first-seen order.
func DedupeIDs(in []int64) []int64 {
	if len(in) == 0 {
		return []int64{}
	}
	out := make([]int64, 0, len(in))
	for _, id := range in {
		if id == 0 || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// ChunkRange calls fn for consecutive [start, end) windows of at most
// chunkSize elements.
func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}
