package cas

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/klauspost/compress/zstd"
	"github.com/multiformats/go-multihash"
)

// Key prefixes shared by everything stored in the pathkeeper pebble instance.
const (
	PrefixCAS  = "cas:"
	PrefixLog  = "log:"
	PrefixMeta = "meta:"
)

const compressionMagic = "PKZ1"

// ErrNotFound is returned by Get for unknown CIDs.
var ErrNotFound = errors.New("cid not found")

// Store is a content-addressable object store on top of pebble.
type Store struct {
	db       *pebble.DB
	hashAlgo string
}

// NewStore binds a store to db. hashAlgo is "sha256" or "blake3".
func NewStore(db *pebble.DB, hashAlgo string) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble database is not initialized")
	}
	switch hashAlgo {
	case "sha256", "blake3":
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", hashAlgo)
	}
	return &Store{db: db, hashAlgo: hashAlgo}, nil
}

// CID computes the content identifier of data as a base58 multihash.
func (s *Store) CID(data []byte) (string, error) {
	hashType := uint64(multihash.SHA2_256)
	if s.hashAlgo == "blake3" {
		hashType = multihash.BLAKE3
	}

	mh, err := multihash.Sum(data, hashType, -1)
	if err != nil {
		return "", fmt.Errorf("compute multihash: %w", err)
	}
	return mh.B58String(), nil
}

// Put stores data and returns its CID together with the number of bytes
// written. Content that is already present is not written again and reports
// zero bytes.
func (s *Store) Put(data []byte) (string, int, error) {
	cid, err := s.CID(data)
	if err != nil {
		return "", 0, err
	}

	exists, err := s.Has(cid)
	if err != nil {
		return "", 0, err
	}
	if exists {
		return cid, 0, nil
	}

	compressed, err := compress(data)
	if err != nil {
		return "", 0, fmt.Errorf("compress object: %w", err)
	}

	if err := s.db.Set(objectKey(cid), compressed, pebble.Sync); err != nil {
		return "", 0, fmt.Errorf("store object %s: %w", cid, err)
	}
	return cid, len(compressed), nil
}

// Get returns the content stored under cid.
func (s *Store) Get(cid string) ([]byte, error) {
	val, closer, err := s.db.Get(objectKey(cid))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", cid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load object %s: %w", cid, err)
	}
	defer closer.Close()

	data, err := decompress(val)
	if err != nil {
		return nil, fmt.Errorf("decompress object %s: %w", cid, err)
	}
	return data, nil
}

// Has reports whether cid is stored.
func (s *Store) Has(cid string) (bool, error) {
	_, closer, err := s.db.Get(objectKey(cid))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

func objectKey(cid string) []byte {
	return []byte(PrefixCAS + cid)
}

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return encoder, decoder, codecErr
}

func compress(data []byte) ([]byte, error) {
	enc, _, err := codecs()
	if err != nil {
		return nil, err
	}
	return append([]byte(compressionMagic), enc.EncodeAll(data, nil)...), nil
}

// decompress accepts values without the magic prefix as stored verbatim.
func decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, []byte(compressionMagic)) {
		return append([]byte(nil), data...), nil
	}
	_, dec, err := codecs()
	if err != nil {
		return nil, err
	}
	return dec.DecodeAll(data[len(compressionMagic):], nil)
}
