package note

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	leveldbutil "github.com/syndtr/goleveldb/leveldb/util"

	"github.com/veilprotocol/veil/crypto"
	"github.com/veilprotocol/veil/utils"
)

// Store is the injectable persistence boundary for notes. The records it
// holds are the only unrecoverable client state.
type Store interface {
	Put(n *Note) error
	Get(commitment []byte) (*Note, bool, error)
	List() ([]*Note, error)
	MarkSpent(commitment []byte) error
	Close() error
}

var notePrefix = []byte("note/")

// LevelStore persists notes in LevelDB, keyed by commitment.
// Thread-safe: LevelDB handles its own synchronization.
type LevelStore struct {
	db *leveldb.DB
}

// NewLevelStore opens or creates a note database at path. An empty path
// uses in-memory storage, for tests.
func NewLevelStore(path string) (*LevelStore, error) {
	var db *leveldb.DB
	var err error

	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open note store at %q: %w", path, err)
	}
	return &LevelStore{db: db}, nil
}

func noteKey(commitment []byte) []byte {
	return append(notePrefix, commitment...)
}

func (s *LevelStore) Put(n *Note) error {
	bz, err := encodeRecord(n)
	if err != nil {
		return err
	}
	return s.db.Put(noteKey(n.Commitment()), bz, nil)
}

func (s *LevelStore) Get(commitment []byte) (*Note, bool, error) {
	bz, err := s.db.Get(noteKey(commitment), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get note %x: %w", commitment, err)
	}
	n, err := decodeRecord(bz)
	if err != nil {
		return nil, false, err
	}
	return n, true, nil
}

func (s *LevelStore) List() ([]*Note, error) {
	var notes []*Note
	iter := s.db.NewIterator(leveldbutil.BytesPrefix(notePrefix), nil)
	defer iter.Release()
	for iter.Next() {
		n, err := decodeRecord(iter.Value())
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, iter.Error()
}

// MarkSpent flags a note whose nullifier the pool has recorded spent. The
// record is kept, not deleted: spent notes remain useful for audit.
func (s *LevelStore) MarkSpent(commitment []byte) error {
	n, ok, err := s.Get(commitment)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("unknown note %x", commitment)
	}
	n.Spent = true
	return s.Put(n)
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}

// noteRecord is the durable wire form of a Note. Balance-style fields go
// through *big.Int, which rlp supports natively.
type noteRecord struct {
	Nullifier     []byte
	Secret        []byte
	Denomination  *big.Int
	LeafIndex     uint32
	DepositTxHash common.Hash
	CreatedAt     uint64
	Spent         bool
}

func toRecord(n *Note) *noteRecord {
	return &noteRecord{
		Nullifier:     n.Nullifier,
		Secret:        n.Secret,
		Denomination:  n.Denomination.ToBig(),
		LeafIndex:     n.LeafIndex,
		DepositTxHash: n.DepositTxHash,
		CreatedAt:     uint64(n.CreatedAt.Unix()),
		Spent:         n.Spent,
	}
}

func fromRecord(rec *noteRecord) (*Note, error) {
	denom, overflow := uint256.FromBig(rec.Denomination)
	if overflow {
		return nil, fmt.Errorf("denomination overflows uint256")
	}
	return &Note{
		Nullifier:     rec.Nullifier,
		Secret:        rec.Secret,
		Denomination:  denom,
		LeafIndex:     rec.LeafIndex,
		DepositTxHash: rec.DepositTxHash,
		CreatedAt:     time.Unix(int64(rec.CreatedAt), 0).UTC(),
		Spent:         rec.Spent,
	}, nil
}

func encodeRecord(n *Note) ([]byte, error) {
	bz, err := rlp.EncodeToBytes(toRecord(n))
	if err != nil {
		return nil, fmt.Errorf("failed to RLP encode note: %w", err)
	}
	return bz, nil
}

func decodeRecord(bz []byte) (*Note, error) {
	var rec noteRecord
	if err := rlp.DecodeBytes(bz, &rec); err != nil {
		return nil, fmt.Errorf("failed to RLP decode note: %w", err)
	}
	return fromRecord(&rec)
}

// ExportEncrypted serializes every stored note and seals the backup with
// ChaCha20-Poly1305 under key. Output layout: nonce ‖ ciphertext.
func ExportEncrypted(s Store, key [32]byte) ([]byte, error) {
	notes, err := s.List()
	if err != nil {
		return nil, err
	}
	records := make([]*noteRecord, 0, len(notes))
	for _, n := range notes {
		records = append(records, toRecord(n))
	}
	plaintext, err := rlp.EncodeToBytes(records)
	if err != nil {
		return nil, fmt.Errorf("failed to RLP encode note backup: %w", err)
	}

	nonce := utils.RandBytes(12)
	sealed, err := crypto.EncryptNotes(key[:], nonce, plaintext, nil)
	if err != nil {
		return nil, err
	}
	return append(nonce, sealed...), nil
}

// ImportEncrypted restores a backup produced by ExportEncrypted into s.
// Existing records with the same commitment are overwritten.
func ImportEncrypted(s Store, key [32]byte, backup []byte) (int, error) {
	if len(backup) < 12 {
		return 0, fmt.Errorf("backup too short")
	}
	plaintext, err := crypto.DecryptNotes(key[:], backup[:12], backup[12:], nil)
	if err != nil {
		return 0, err
	}
	var records []*noteRecord
	if err := rlp.DecodeBytes(plaintext, &records); err != nil {
		return 0, fmt.Errorf("failed to RLP decode note backup: %w", err)
	}
	for _, rec := range records {
		n, err := fromRecord(rec)
		if err != nil {
			return 0, err
		}
		if err := s.Put(n); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}
