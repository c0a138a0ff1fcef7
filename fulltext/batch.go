package fulltext

import (
	"github.com/hupe1980/lexkv/key"
	"github.com/hupe1980/lexkv/record"
)

// Batch applies mutations to an index immediately and records how to undo
// each of them. Rollback restores the index to its state at Begin, provided
// all mutations in between went through the batch.
type Batch struct {
	idx    *Index
	undo   []func(s *state) *state
	closed bool
}

// Begin starts a batch.
func (idx *Index) Begin() *Batch {
	return &Batch{idx: idx}
}

// Len returns the number of applied mutations.
func (bt *Batch) Len() int { return len(bt.undo) }

// Add indexes rec under ref.
func (bt *Batch) Add(ref key.Key, rec record.Record) error {
	if bt.closed {
		return ErrBatchClosed
	}
	bt.idx.mu.Lock()
	defer bt.idx.mu.Unlock()
	d, err := bt.idx.addLocked(ref, rec)
	if err != nil {
		return err
	}
	bt.undo = append(bt.undo, func(s *state) *state {
		s.remove(d)
		return s
	})
	return nil
}

// AddAll adds docs in order. On the first failure the documents added by
// this call are removed again and the error is returned; earlier mutations
// of the batch stay applied.
func (bt *Batch) AddAll(docs []Document) error {
	if bt.closed {
		return ErrBatchClosed
	}
	mark := len(bt.undo)
	for _, d := range docs {
		if err := bt.Add(d.Ref, d.Record); err != nil {
			bt.rollbackTo(mark)
			return err
		}
	}
	return nil
}

// Update indexes rec under ref, replacing any previous document.
func (bt *Batch) Update(ref key.Key, rec record.Record) error {
	if bt.closed {
		return ErrBatchClosed
	}
	bt.idx.mu.Lock()
	defer bt.idx.mu.Unlock()
	old, cur, err := bt.idx.updateLocked(ref, rec)
	if err != nil {
		return err
	}
	bt.undo = append(bt.undo, func(s *state) *state {
		s.remove(cur)
		if old != nil {
			s.insert(old)
		}
		return s
	})
	return nil
}

// Remove drops ref and reports whether it was indexed.
func (bt *Batch) Remove(ref key.Key) (bool, error) {
	if bt.closed {
		return false, ErrBatchClosed
	}
	bt.idx.mu.Lock()
	defer bt.idx.mu.Unlock()
	old := bt.idx.removeLocked(ref)
	if old == nil {
		return false, nil
	}
	bt.undo = append(bt.undo, func(s *state) *state {
		s.insert(old)
		return s
	})
	return true, nil
}

// Clear removes every document.
func (bt *Batch) Clear() error {
	if bt.closed {
		return ErrBatchClosed
	}
	bt.idx.mu.Lock()
	defer bt.idx.mu.Unlock()
	prev := bt.idx.state
	bt.idx.state = newState(len(bt.idx.fields))
	bt.undo = append(bt.undo, func(*state) *state { return prev })
	return nil
}

// Commit keeps the applied mutations and closes the batch.
func (bt *Batch) Commit() {
	bt.undo = nil
	bt.closed = true
}

// Rollback undoes every applied mutation in reverse order and closes the
// batch. Rolling back a closed batch is a no-op.
func (bt *Batch) Rollback() {
	if bt.closed {
		return
	}
	bt.rollbackTo(0)
	bt.closed = true
}

func (bt *Batch) rollbackTo(mark int) {
	bt.idx.mu.Lock()
	defer bt.idx.mu.Unlock()
	for i := len(bt.undo) - 1; i >= mark; i-- {
		bt.idx.state = bt.undo[i](bt.idx.state)
	}
	bt.undo = bt.undo[:mark]
}
