// Package fulltext provides the in-memory inverted index that backs full-text
// search over a store.
//
// Documents are records referenced by their primary key. Each configured
// field is tokenized separately and scored with BM25 multiplied by the field
// boost; the score of a document is the sum over matched fields and query
// clauses.
//
// # Usage
//
//	idx := fulltext.New([]schema.Field{{Name: "title", Boost: 2}, {Name: "body", Boost: 1}})
//	_ = idx.Add(key.Int(1), record.Record{"title": "rust ownership", "body": "memory safety"})
//
//	hits := idx.Search("rust")
//
// # Query syntax
//
// Queries are whitespace separated clauses:
//
//	rust          optional term
//	title:rust    term restricted to one field
//	own*          prefix match over the vocabulary
//	+rust         required term
//	-memory       prohibited term
//
// # Transactions
//
// Begin returns a Batch that applies mutations immediately and keeps an undo
// log, so a failed store transaction can put the index back exactly as it
// was.
//
// # Snapshots
//
// Snapshot serializes the index into a self-describing, checksummed and
// optionally compressed byte slice. Equal index contents always produce equal
// bytes. Restore rejects snapshots with a bad checksum or a different field
// configuration and leaves the index untouched.
//
// # Thread Safety
//
// Index is safe for concurrent use. A Batch must be used by one goroutine.
package fulltext
