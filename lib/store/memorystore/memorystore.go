// Package memorystore is the ephemeral store.Backend, backed by
// github.com/dgraph-io/badger/v4 opened with Options.WithInMemory(true).
// Nothing survives process restart, matching spec.md's "ephemeral
// in-memory" backend exactly.
package memorystore

import (
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"github.com/HORNET-Storage/hornet-messaging/lib/errs"
	"github.com/HORNET-Storage/hornet-messaging/lib/store"
)

const (
	prefixGroup        = "group:"
	prefixMessage      = "message:"
	prefixInvite       = "invite:"
	prefixKeyPackage   = "keypkg:"
	prefixContact      = "contact:"
	prefixEpochSecret  = "epochsecret:"
)

// Store is the in-memory Backend implementation.
type Store struct {
	db *badger.DB
}

// Open starts a fresh, empty in-memory badger instance.
func Open() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errs.Wrap(errs.StorageBackend, "open in-memory store", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errs.Wrap(errs.StorageBackend, "close in-memory store", err)
	}
	return nil
}

func put(db *badger.DB, key string, v interface{}) error {
	enc, err := cbor.Marshal(v)
	if err != nil {
		return errs.Wrap(errs.StorageBackend, "encode value", err)
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), enc)
	})
}

func get(db *badger.DB, key string, out interface{}) error {
	return db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, out)
		})
	})
}

func deleteKey(db *badger.DB, key string) error {
	return db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func scan(db *badger.DB, prefix string, fn func(val []byte) error) error {
	return db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			if err := item.Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) PutGroup(g store.Group) error {
	return put(s.db, prefixGroup+g.MLSGroupID, g)
}

func (s *Store) GetGroup(mlsGroupID string) (store.Group, error) {
	var g store.Group
	if err := get(s.db, prefixGroup+mlsGroupID, &g); err != nil {
		if err == badger.ErrKeyNotFound {
			return store.Group{}, errs.New(errs.NotFound, "group not found: "+mlsGroupID)
		}
		return store.Group{}, errs.Wrap(errs.StorageBackend, "get group", err)
	}
	return g, nil
}

func (s *Store) ListGroups() ([]store.Group, error) {
	var out []store.Group
	err := scan(s.db, prefixGroup, func(val []byte) error {
		var g store.Group
		if err := cbor.Unmarshal(val, &g); err != nil {
			return err
		}
		out = append(out, g)
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.StorageBackend, "list groups", err)
	}
	return out, nil
}

func (s *Store) DeleteGroup(mlsGroupID string) error {
	if err := deleteKey(s.db, prefixGroup+mlsGroupID); err != nil {
		return errs.Wrap(errs.StorageBackend, "delete group", err)
	}
	return nil
}

func (s *Store) PutMessage(m store.Message) error {
	return put(s.db, prefixMessage+m.GroupID+":"+m.EventID, m)
}

func (s *Store) ListMessages(groupID string) ([]store.Message, error) {
	var out []store.Message
	err := scan(s.db, prefixMessage+groupID+":", func(val []byte) error {
		var m store.Message
		if err := cbor.Unmarshal(val, &m); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.StorageBackend, "list messages", err)
	}
	// badger's key order (by event id alone) isn't the wire-ordering
	// contract; sort by relay time with event id as the tie-break.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RelayTime.Equal(out[j].RelayTime) {
			return out[i].RelayTime.Before(out[j].RelayTime)
		}
		return out[i].EventID < out[j].EventID
	})
	return out, nil
}

func (s *Store) ListAllMessageEventIDs() ([]string, error) {
	var ids []string
	err := scan(s.db, prefixMessage, func(val []byte) error {
		var m store.Message
		if err := cbor.Unmarshal(val, &m); err != nil {
			return err
		}
		ids = append(ids, m.EventID)
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.StorageBackend, "list message event ids", err)
	}
	return ids, nil
}

func (s *Store) PutPendingInvite(p store.PendingInvite) error {
	return put(s.db, prefixInvite+p.WelcomeEventID, p)
}

func (s *Store) ListPendingInvites() ([]store.PendingInvite, error) {
	var out []store.PendingInvite
	err := scan(s.db, prefixInvite, func(val []byte) error {
		var p store.PendingInvite
		if err := cbor.Unmarshal(val, &p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.StorageBackend, "list pending invites", err)
	}
	return out, nil
}

func (s *Store) DeletePendingInvite(welcomeEventID string) error {
	if err := deleteKey(s.db, prefixInvite+welcomeEventID); err != nil {
		return errs.Wrap(errs.StorageBackend, "delete pending invite", err)
	}
	return nil
}

func (s *Store) PutKeyPackageRecord(k store.KeyPackageRecord) error {
	return put(s.db, prefixKeyPackage+k.EventID, k)
}

func (s *Store) ListKeyPackageRecords() ([]store.KeyPackageRecord, error) {
	var out []store.KeyPackageRecord
	err := scan(s.db, prefixKeyPackage, func(val []byte) error {
		var k store.KeyPackageRecord
		if err := cbor.Unmarshal(val, &k); err != nil {
			return err
		}
		out = append(out, k)
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.StorageBackend, "list key package records", err)
	}
	return out, nil
}

func (s *Store) PutContact(c store.Contact) error {
	return put(s.db, prefixContact+c.PublicIdentifier, c)
}

func (s *Store) ListContacts() ([]store.Contact, error) {
	var out []store.Contact
	err := scan(s.db, prefixContact, func(val []byte) error {
		var c store.Contact
		if err := cbor.Unmarshal(val, &c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.StorageBackend, "list contacts", err)
	}
	return out, nil
}

func (s *Store) DeleteContact(publicIdentifier string) error {
	if err := deleteKey(s.db, prefixContact+publicIdentifier); err != nil {
		return errs.Wrap(errs.StorageBackend, "delete contact", err)
	}
	return nil
}

func (s *Store) PutEpochSecret(groupID string, epoch uint64, secret []byte) error {
	return put(s.db, fmt.Sprintf("%s%s:%d", prefixEpochSecret, groupID, epoch), secret)
}

func (s *Store) ListEpochSecrets(groupID string) (map[uint64][]byte, error) {
	out := map[uint64][]byte{}
	prefix := prefixEpochSecret + groupID + ":"
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			key := string(item.Key())
			var epoch uint64
			if _, err := fmt.Sscanf(key[len(prefix):], "%d", &epoch); err != nil {
				continue
			}
			if err := item.Value(func(val []byte) error {
				var secret []byte
				if err := cbor.Unmarshal(val, &secret); err != nil {
					return err
				}
				out[epoch] = secret
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.StorageBackend, "list epoch secrets", err)
	}
	return out, nil
}

var _ store.Backend = (*Store)(nil)

func init() {
	// guard against prefix collisions being introduced without notice
	prefixes := []string{prefixGroup, prefixMessage, prefixInvite, prefixKeyPackage, prefixContact, prefixEpochSecret}
	seen := map[string]bool{}
	for _, p := range prefixes {
		if seen[p] {
			panic(fmt.Sprintf("memorystore: duplicate key prefix %q", p))
		}
		seen[p] = true
	}
}
