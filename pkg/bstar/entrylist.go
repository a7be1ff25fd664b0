package bstar

import (
	"sort"

	"go-bstardb/pkg/customerrors"

	"github.com/pkg/errors"
)

// SortedEntryList keeps node entries ordered by key with unique keys. The
// total encoded size of all entries is maintained on every change.
type SortedEntryList[K Key[K]] struct {
	entries []KeyAddress[K]
	size    int
}

func (l *SortedEntryList[K]) Len() int  { return len(l.entries) }
func (l *SortedEntryList[K]) Size() int { return l.size }

func (l *SortedEntryList[K]) At(i int) KeyAddress[K] {
	return l.entries[i]
}

func (l *SortedEntryList[K]) Last() KeyAddress[K] {
	return l.entries[len(l.entries)-1]
}

// Entries returns a copy of the entries.
func (l *SortedEntryList[K]) Entries() []KeyAddress[K] {
	return append([]KeyAddress[K](nil), l.entries...)
}

// search returns the index of the first entry with key >= key and whether
// that entry's key is equal to key.
func (l *SortedEntryList[K]) search(key K) (int, bool) {
	idx := sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].Key.Compare(key) >= 0
	})
	return idx, idx < len(l.entries) && l.entries[idx].Key.Compare(key) == 0
}

func (l *SortedEntryList[K]) Insert(e KeyAddress[K]) error {
	idx, found := l.search(e.Key)
	if found {
		return errors.Wrapf(customerrors.ErrDuplicateKey, "key %s", e.Key)
	}
	l.insertAt(idx, e)
	return nil
}

func (l *SortedEntryList[K]) Remove(key K) (KeyAddress[K], error) {
	idx, found := l.search(key)
	if !found {
		return KeyAddress[K]{}, errors.Wrapf(customerrors.ErrKeyNotFound, "key %s", key)
	}
	return l.removeAt(idx), nil
}

// Find returns the entry with exactly the given key.
func (l *SortedEntryList[K]) Find(key K) (KeyAddress[K], bool) {
	idx, found := l.search(key)
	if !found {
		return KeyAddress[K]{}, false
	}
	return l.entries[idx], true
}

// Floor returns the index of the rightmost entry whose key is <= key, or -1
// when key is smaller than every entry. Interior nodes descend through it.
func (l *SortedEntryList[K]) Floor(key K) int {
	idx, found := l.search(key)
	if found {
		return idx
	}
	return idx - 1
}

// SplitAt keeps the longest prefix whose total size stays within limit and
// returns the remaining entries. Both halves get at least one entry when the
// list has two or more.
func (l *SortedEntryList[K]) SplitAt(limit int) *SortedEntryList[K] {
	total, at := 0, 0
	for at < len(l.entries) && total+l.entries[at].Size() <= limit {
		total += l.entries[at].Size()
		at++
	}

	if at == 0 && len(l.entries) > 1 {
		total, at = l.entries[0].Size(), 1
	} else if at == len(l.entries) && at > 1 {
		at--
		total -= l.entries[at].Size()
	}

	right := &SortedEntryList[K]{
		entries: append(make([]KeyAddress[K], 0, len(l.entries)-at), l.entries[at:]...),
		size:    l.size - total,
	}
	l.entries = l.entries[:at:at]
	l.size = total
	return right
}

// Merge appends every entry of other, whose keys must all be greater than
// the keys already in the list. Nothing changes when the result would
// exceed capacity bytes.
func (l *SortedEntryList[K]) Merge(other *SortedEntryList[K], capacity int) error {
	if l.size+other.size > capacity {
		return errors.Wrapf(
			customerrors.ErrCapacityExceeded,
			"merged size %d exceeds capacity %d", l.size+other.size, capacity,
		)
	}
	if l.Len() > 0 && other.Len() > 0 && l.Last().Compare(other.At(0)) >= 0 {
		return errors.Errorf("merge out of order: %s after %s", other.At(0).Key, l.Last().Key)
	}

	l.entries = append(l.entries, other.entries...)
	l.size += other.size
	return nil
}

func (l *SortedEntryList[K]) insertAt(idx int, e KeyAddress[K]) {
	l.entries = append(l.entries, KeyAddress[K]{})
	copy(l.entries[idx+1:], l.entries[idx:])
	l.entries[idx] = e
	l.size += e.Size()
}

func (l *SortedEntryList[K]) append(e KeyAddress[K]) {
	l.entries = append(l.entries, e)
	l.size += e.Size()
}

func (l *SortedEntryList[K]) removeAt(idx int) KeyAddress[K] {
	e := l.entries[idx]
	l.entries = append(l.entries[:idx], l.entries[idx+1:]...)
	l.size -= e.Size()
	return e
}

// setKey replaces the key of entry idx, keeping its address.
func (l *SortedEntryList[K]) setKey(idx int, key K) {
	l.size += key.Size() - l.entries[idx].Key.Size()
	l.entries[idx].Key = key
}
