// Package lexkv is an embedded, transactional, ordered key-value document
// store with schema-driven secondary indexes and a synchronized full-text
// index.
//
// # Quick Start
//
//	ctx := context.Background()
//	s := lexkv.Schema{
//	    "posts": {
//	        KeyPath:       "id",
//	        KeyGeneration: schema.KeyGenAutoIncrement,
//	        Indexes:       []schema.IndexConfig{{Name: "by_author", KeyPath: "author"}},
//	        FullText: &schema.FullTextConfig{
//	            Fields: []schema.Field{{Name: "title", Boost: 2}, {Name: "body"}},
//	        },
//	    },
//	}
//	db, _ := lexkv.Open(ctx, lexkv.Bolt("app.db"), 1, s)
//	defer db.Close()
//
//	posts, _ := db.Store("posts")
//	posts.Add(ctx, lexkv.Record{"title": "Hello", "body": "first post", "author": "ann"})
//	results, _ := posts.Search(ctx, "hello", lexkv.WithLimit(10))
//
// # Transactions
//
// Every Store method runs in its own transaction. Group operations with
// Update and View; Update commits when the function returns nil:
//
//	err := db.Update(ctx, []string{"posts"}, func(tx *lexkv.Tx) error {
//	    st, err := tx.Store("posts")
//	    if err != nil {
//	        return err
//	    }
//	    _, err = st.Put(rec1, rec2)
//	    return err
//	})
//
// A constraint violation inside a transaction undoes the records of the
// failing call and leaves the transaction open; returning the error from
// the function aborts it. Storage failures abort the transaction at once.
//
// # Full-text index
//
// Stores with a FullText configuration keep an in-memory inverted index
// that mirrors every committed write. Aborted transactions leave the index
// untouched. The index is persisted as a snapshot inside the database
// (see SnapshotMode) and restored on Open when the snapshot matches the
// store; otherwise it is rebuilt from the records.
//
// Queries are whitespace separated terms. "field:term" restricts a term to
// one field, "term*" matches a prefix, "+term" is required and "-term"
// excluded.
//
// # Concurrency
//
// A DB is safe for concurrent use. Writers are serialized by the host
// engine, readers run concurrently. A goroutine holding an open Tx must not
// start another transaction on overlapping stores.
package lexkv
