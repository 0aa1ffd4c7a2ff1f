package storage

import (
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

const (
	boltBucket    = "eeprom"
	boltRegionKey = "region"
	boltTimeout   = 2 * time.Second
)

// Bolt stores the region as a single value in a bbolt database. Each write
// runs in its own update transaction, which is the commit step.
type Bolt struct {
	db   *bolt.DB
	size int
}

var _ Backend = &Bolt{}

// OpenBolt opens the database at path and makes sure the region exists with
// the requested size, padding with erased bytes or truncating as needed.
func OpenBolt(path string, size int) (*Bolt, error) {
	if path == "" {
		return nil, errors.New("bolt storage requires a path")
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: boltTimeout})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open bolt storage %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		if err != nil {
			return err
		}

		current := bucket.Get([]byte(boltRegionKey))
		if len(current) == size {
			return nil
		}

		region := erased(size)
		copy(region, current)
		return bucket.Put([]byte(boltRegionKey), region)
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize bolt storage region")
	}

	return &Bolt{db: db, size: size}, nil
}

func (b *Bolt) Size() int {
	return b.size
}

func (b *Bolt) Read(offset uint16, buf []byte) error {
	if err := checkBounds(b.size, offset, len(buf)); err != nil {
		return err
	}

	return b.db.View(func(tx *bolt.Tx) error {
		region := tx.Bucket([]byte(boltBucket)).Get([]byte(boltRegionKey))
		copy(buf, region[offset:])
		return nil
	})
}

func (b *Bolt) Write(offset uint16, buf []byte) error {
	if err := checkBounds(b.size, offset, len(buf)); err != nil {
		return err
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltBucket))

		// Values returned by Get are only valid inside the transaction and
		// must not be modified.
		region := make([]byte, b.size)
		copy(region, bucket.Get([]byte(boltRegionKey)))
		copy(region[offset:], buf)

		return bucket.Put([]byte(boltRegionKey), region)
	})
	return errors.Wrapf(err, "failed to write %d bytes at %d", len(buf), offset)
}

func (b *Bolt) IsUsed(offset uint16, length int) bool {
	if checkBounds(b.size, offset, length) != nil {
		return false
	}

	buf := make([]byte, length)
	if err := b.Read(offset, buf); err != nil {
		return false
	}
	return anyUsed(buf)
}

func (b *Bolt) Clear(offset uint16, length int) error {
	if err := checkBounds(b.size, offset, length); err != nil {
		return err
	}
	return b.Write(offset, erased(length))
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
