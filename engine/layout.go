package engine

import (
	"encoding/binary"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/hupe1980/lexkv/backend"
	"github.com/hupe1980/lexkv/schema"
)

// Bucket layout on the host engine:
//
//	s/<store>            records, keyed by enc(primaryKey)
//	i/<store>/<index>    index entries, keyed by enc(indexKey)||enc(primaryKey)
//	__meta__             version, codec, store states, generations
//	__fulltext__         full-text snapshots, keyed by store name
const (
	metaBucket     = "__meta__"
	reservedBucket = "__fulltext__"

	metaVersion = "version"
	metaCodec   = "codec"
	statePrefix = "store/"
	genPrefix   = "gen/"
)

// Index entries carry no value.
var emptyValue = []byte{}

func storeBucket(store string) string { return "s/" + store }

func indexBucket(store, index string) string { return "i/" + store + "/" + index }

func indexBucketPrefix(store string) string { return "i/" + store + "/" }

func putUint64(b backend.Bucket, k string, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return b.Put([]byte(k), buf[:])
}

func getUint64(b backend.Bucket, k string) (uint64, error) {
	v, err := b.Get([]byte(k))
	if err != nil || len(v) != 8 {
		return 0, err
	}
	return binary.BigEndian.Uint64(v), nil
}

// storedStores loads every persisted store configuration.
func storedStores(meta backend.Bucket) (schema.Schema, error) {
	out := schema.Schema{}
	c := meta.Cursor()
	for k, v := c.Seek([]byte(statePrefix)); k != nil && strings.HasPrefix(string(k), statePrefix); k, v = c.Next() {
		var cfg schema.StoreConfig
		if err := gojson.Unmarshal(v, &cfg); err != nil {
			return nil, storageErr("decode store state", err)
		}
		out[strings.TrimPrefix(string(k), statePrefix)] = cfg
	}
	if err := c.Err(); err != nil {
		return nil, storageErr("read store states", err)
	}
	return out, nil
}

func putStoreState(meta backend.Bucket, name string, cfg schema.StoreConfig) error {
	b, err := gojson.Marshal(cfg)
	if err != nil {
		return err
	}
	return meta.Put([]byte(statePrefix+name), b)
}
