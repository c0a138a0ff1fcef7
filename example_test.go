package lexkv_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/hupe1980/lexkv"
	"github.com/hupe1980/lexkv/key"
	"github.com/hupe1980/lexkv/keyrange"
	"github.com/hupe1980/lexkv/schema"
)

func exampleSchema() lexkv.Schema {
	return lexkv.Schema{
		"posts": {
			KeyPath:       "id",
			KeyGeneration: schema.KeyGenAutoIncrement,
			Indexes:       []schema.IndexConfig{{Name: "slug", KeyPath: "slug", Unique: true}},
			FullText: &schema.FullTextConfig{
				Fields: []schema.Field{{Name: "title", Boost: 2}, {Name: "body", Boost: 1}},
			},
		},
	}
}

func exampleDB() (*lexkv.DB, func()) {
	dir, err := os.MkdirTemp("", "lexkv-example")
	if err != nil {
		log.Fatal(err)
	}
	db, err := lexkv.Open(context.Background(), lexkv.Bolt(filepath.Join(dir, "example.db")), 1, exampleSchema(),
		lexkv.WithLogger(lexkv.NoopLogger()))
	if err != nil {
		log.Fatal(err)
	}
	return db, func() {
		_ = db.Close()
		_ = os.RemoveAll(dir)
	}
}

// Example_search stores a few posts and runs a ranked full-text query.
func Example_search() {
	ctx := context.Background()
	db, cleanup := exampleDB()
	defer cleanup()

	posts, err := db.Store("posts")
	if err != nil {
		log.Fatal(err)
	}
	if _, err := posts.Add(ctx,
		lexkv.Record{"slug": "ownership", "title": "Rust ownership", "body": "memory safety without a collector"},
		lexkv.Record{"slug": "channels", "title": "Go channels", "body": "compared with rust async"},
	); err != nil {
		log.Fatal(err)
	}

	results, err := posts.Search(ctx, "rust")
	if err != nil {
		log.Fatal(err)
	}
	for _, r := range results {
		fmt.Println(r.Key, r.Record["title"])
	}
	// Output:
	// 1 Rust ownership
	// 2 Go channels
}

// Example_uniqueIndex shows the error returned for a duplicate unique key.
func Example_uniqueIndex() {
	ctx := context.Background()
	db, cleanup := exampleDB()
	defer cleanup()

	posts, _ := db.Store("posts")
	_, _ = posts.Add(ctx, lexkv.Record{"slug": "hello", "title": "Hello"})
	_, err := posts.Add(ctx, lexkv.Record{"slug": "hello", "title": "Hello again"})

	var ce *lexkv.ConstraintError
	fmt.Println(errors.Is(err, lexkv.ErrConstraint), errors.As(err, &ce) && ce.Index == "slug")
	// Output: true true
}

// Example_update groups writes in one transaction and scans them back.
func Example_update() {
	ctx := context.Background()
	db, cleanup := exampleDB()
	defer cleanup()

	err := db.Update(ctx, []string{"posts"}, func(tx *lexkv.Tx) error {
		st, err := tx.Store("posts")
		if err != nil {
			return err
		}
		for _, slug := range []string{"c", "a", "b"} {
			if _, err := st.Add(lexkv.Record{"slug": slug, "title": "post " + slug}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	posts, _ := db.Store("posts")
	r, _ := keyrange.Bound(key.Int(2), key.Int(3), false, false)
	_ = posts.Scan(ctx, r, lexkv.Prev, func(e lexkv.Entry) bool {
		fmt.Println(e.Key, e.Record["slug"])
		return true
	})
	// Output:
	// 3 b
	// 2 a
}
