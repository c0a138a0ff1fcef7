package lexkv

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/hupe1980/lexkv/engine"
	"github.com/hupe1980/lexkv/fulltext"
	"github.com/hupe1980/lexkv/key"
	"github.com/hupe1980/lexkv/keyrange"
)

// ScoredRecord is a search result joined with its record.
type ScoredRecord struct {
	Key    Key
	Record Record
	Score  float64
}

// Search runs a full-text query on store and returns the matching records
// by descending score, ties by ascending key.
//
// The query holds the index read lock across the record join, so results
// never mix index and store states.
func (db *DB) Search(ctx context.Context, store, query string, opts ...SearchOption) (out []ScoredRecord, err error) {
	start := time.Now()
	defer func() {
		db.opts.metricsCollector.RecordSearch(len(out), time.Since(start), err)
		db.opts.logger.LogSearch(ctx, store, query, len(out), err)
	}()
	if _, err := db.textIndex(store); err != nil {
		return nil, err
	}
	err = db.View(ctx, []string{store}, func(tx *Tx) error {
		out, err = tx.Search(store, query, opts...)
		return err
	})
	return out, err
}

// Search runs a full-text query on a store in the transaction scope. Inside
// a write transaction the results include the transaction's own writes.
func (t *Tx) Search(store, query string, opts ...SearchOption) ([]ScoredRecord, error) {
	ti, err := t.db.textIndex(store)
	if err != nil {
		return nil, err
	}
	st, err := t.Store(store)
	if err != nil {
		return nil, err
	}
	out, err := join(st, ti.idx.Search(query), applySearchOptions(opts))
	return out, translateError(err)
}

// join reads the records of hits through one cursor bounded by the smallest
// and largest hit key, seeking from key to key in ascending order. Hits
// whose record is gone are dropped.
func join(st *engine.StoreTx, hits []fulltext.Hit, o searchOptions) ([]ScoredRecord, error) {
	if len(hits) == 0 {
		return []ScoredRecord{}, nil
	}
	scores := make(map[string]float64, len(hits))
	keys := make([]key.Key, 0, len(hits))
	for _, h := range hits {
		scores[h.Ref.Encoded()] = h.Score
		keys = append(keys, h.Ref)
	}
	keys = key.SortedUnique(keys)

	r, err := keyrange.Bound(keys[0], keys[len(keys)-1], false, false)
	if err != nil {
		return nil, err
	}
	c, err := st.Range(r, engine.Next)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	out := make([]ScoredRecord, 0, len(keys))
	for _, k := range keys {
		if !c.Seek(k) {
			if err := c.Err(); err != nil {
				return nil, err
			}
			break
		}
		e := c.Entry()
		if !e.Key.Equal(k) {
			continue
		}
		out = append(out, ScoredRecord{Key: e.Key, Record: e.Record, Score: scores[k.Encoded()]})
	}

	slices.SortFunc(out, func(a, b ScoredRecord) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return key.Compare(a.Key, b.Key)
	})

	if o.offset > 0 {
		if o.offset >= len(out) {
			return []ScoredRecord{}, nil
		}
		out = out[o.offset:]
	}
	if o.limit > 0 && len(out) > o.limit {
		out = out[:o.limit]
	}
	return out, nil
}
