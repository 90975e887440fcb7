package store

import "fmt"

// recentList is the bounded, most-recent-first list shared by every driver.
// Drivers load it, mutate a copy and then persist that copy as a whole.
type recentList []*TestRecord

// prepend returns a new list with rec at the head, truncated to capacity.
func (l recentList) prepend(rec *TestRecord, capacity int) (recentList, error) {
	if rec == nil {
		return nil, fmt.Errorf("record is required")
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("record id is required")
	}
	if l.index(rec.ID) >= 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
	}

	size := len(l) + 1
	if size > capacity {
		size = capacity
	}
	next := make(recentList, 0, size)
	next = append(next, rec.Clone())
	for _, r := range l {
		if len(next) == capacity {
			break
		}
		next = append(next, r)
	}
	return next, nil
}

// update returns a copy of the list with mutate applied to the record with id.
// found is false when the id is not retained.
func (l recentList) update(id string, mutate func(*TestRecord) error) (next recentList, found bool, err error) {
	i := l.index(id)
	if i < 0 {
		return l, false, nil
	}

	rec := l[i].Clone()
	if err := mutate(rec); err != nil {
		return l, true, err
	}
	if rec.ID != id {
		return l, true, fmt.Errorf("record id is immutable: %s", id)
	}

	next = make(recentList, len(l))
	copy(next, l)
	next[i] = rec
	return next, true, nil
}

func (l recentList) index(id string) int {
	for i, r := range l {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (l recentList) get(id string) (*TestRecord, error) {
	i := l.index(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return l[i].Clone(), nil
}

// clone returns deep copies so callers cannot alias stored records.
func (l recentList) clone() []*TestRecord {
	out := make([]*TestRecord, len(l))
	for i, r := range l {
		out[i] = r.Clone()
	}
	return out
}

// trim enforces the bound after loading data written under a larger capacity.
func (l recentList) trim(capacity int) recentList {
	if len(l) > capacity {
		return l[:capacity]
	}
	return l
}
