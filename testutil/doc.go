// Package testutil provides testing utilities for lexkv.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random keys and documents and for
// computing the exact set of documents a term matches.
//
// # Random Data
//
//	rng := testutil.NewRNG(seed)
//	text := rng.Text(5)            // five words from Vocabulary
//	k := rng.Key()                 // number, string or array key
//	docs := rng.Posts(100, 3, 20)  // records with title and body
//
// # Ground Truth
//
//	keys := testutil.Matching(model, "rust")
package testutil
