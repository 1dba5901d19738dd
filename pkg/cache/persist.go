package cache

import (
	"bytes"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"

	"github.com/mihasm/news-globe/pkg/api"
)

var clusterPrefix = []byte("cluster/")

// SnapshotDB persists the last fetched cluster set so a restart starts
// stale-but-available instead of empty until the first poll completes.
type SnapshotDB struct {
	db *badger.DB
}

func OpenSnapshotDB(dir string) (*SnapshotDB, error) {
	opts := badger.DefaultOptions(filepath.Join(dir, "snapshot"))
	// Decrease logging verbosity
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &SnapshotDB{db: db}, nil
}

func (s *SnapshotDB) Close() error {
	return s.db.Close()
}

// SaveSnapshot replaces the stored set with clusters: every cluster is
// written under its id and any id absent from the new set is deleted,
// mirroring the wholesale-replacement contract of the backend.
func (s *SnapshotDB) SaveSnapshot(clusters []api.Cluster) error {
	keep := make(map[string]struct{}, len(clusters))
	for i := range clusters {
		keep[clusters[i].ClusterID] = struct{}{}
	}

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: clusterPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			id := string(bytes.TrimPrefix(key, clusterPrefix))
			if _, ok := keep[id]; !ok {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for i := range clusters {
		data, err := json.Marshal(&clusters[i])
		if err != nil {
			return err
		}
		if err := wb.Set(append(append([]byte{}, clusterPrefix...), clusters[i].ClusterID...), data); err != nil {
			return err
		}
	}
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// LoadSnapshot reads back every stored cluster. Undecodable entries are
// skipped rather than failing the whole load.
func (s *SnapshotDB) LoadSnapshot() ([]api.Cluster, error) {
	var clusters []api.Cluster
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: clusterPrefix, PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var c api.Cluster
				if err := json.Unmarshal(val, &c); err != nil {
					return nil
				}
				if c.ClusterID != "" {
					clusters = append(clusters, c)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return clusters, nil
}
