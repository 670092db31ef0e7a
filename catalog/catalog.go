package catalog

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/creativeprojects/mailfolder/lib"
	"github.com/creativeprojects/mailfolder/mailbox"
	bolt "go.etcd.io/bbolt"
)

const (
	metadataBucket  = "metadata"
	mailboxBucket   = "mailbox"
	infoKey         = "info"
	versionKey      = "version"
	boltFileVersion = 1
)

var ErrVersionMismatch = errors.New("unsupported catalog version")

// Catalog keeps the UID state of each folder: UIDVALIDITY and the last UID given.
type Catalog struct {
	db  *bolt.DB
	log lib.Logger
}

func Open(filename string) (*Catalog, error) {
	return OpenWithLogger(filename, nil)
}

func OpenWithLogger(filename string, logger lib.Logger) (*Catalog, error) {
	if logger == nil {
		logger = &lib.NoLog{}
	}
	options := *bolt.DefaultOptions
	options.Timeout = 10 * time.Second

	db, err := bolt.Open(filename, 0o600, &options)
	if err != nil {
		return nil, fmt.Errorf("cannot open %q: %w", filename, err)
	}

	return &Catalog{
		db:  db,
		log: logger,
	}, nil
}

// Init creates the buckets and checks the file version
func (c *Catalog) Init() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if data := bucket.Get([]byte(versionKey)); data != nil {
			version, err := deserializeInt(data)
			if err != nil {
				return err
			}
			if version != boltFileVersion {
				return fmt.Errorf("%w: %d", ErrVersionMismatch, version)
			}
		} else {
			version, err := serializeInt(boltFileVersion)
			if err != nil {
				return err
			}
			err = bucket.Put([]byte(versionKey), version)
			if err != nil {
				return err
			}
		}
		_, err = tx.CreateBucketIfNotExists([]byte(mailboxBucket))
		return err
	})
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Info returns the catalog entry of the folder, creating it with a new UIDVALIDITY if needed
func (c *Catalog) Info(name string) (mailbox.Info, error) {
	var info *mailbox.Info
	err := c.db.Update(func(tx *bolt.Tx) error {
		var err error
		bucket, err := folderBucket(tx, name)
		if err != nil {
			return err
		}
		info, err = getInfo(bucket, name)
		return err
	})
	if err != nil {
		return mailbox.Info{}, err
	}
	return *info, nil
}

// UIDValidity of the folder
func (c *Catalog) UIDValidity(name string) (uint32, error) {
	info, err := c.Info(name)
	if err != nil {
		return 0, err
	}
	return info.UidValidity, nil
}

// NextUID returns a new UID for a message appended to the folder
func (c *Catalog) NextUID(name string) (uint32, error) {
	var uid uint64
	err := c.db.Update(func(tx *bolt.Tx) error {
		bucket, err := folderBucket(tx, name)
		if err != nil {
			return err
		}
		_, err = getInfo(bucket, name)
		if err != nil {
			return err
		}
		uid, err = bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("cannot get next UID: %w", err)
		}
		if uid > math.MaxUint32 {
			return fmt.Errorf("no more UID available in mailbox %q", name)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint32(uid), nil
}

// Delete removes the folder from the catalog. A new folder with the same name gets a new UIDVALIDITY.
func (c *Catalog) Delete(name string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(mailboxBucket))
		if bucket == nil {
			return nil
		}
		err := bucket.DeleteBucket([]byte(name))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		if err == nil {
			c.log.Printf("catalog: removed UIDs of %q", name)
		}
		return err
	})
}

// List returns the folders known to the catalog, sorted by name
func (c *Catalog) List() ([]mailbox.Info, error) {
	list := make([]mailbox.Info, 0)
	err := c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(mailboxBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			if v != nil {
				return nil
			}
			entry := bucket.Bucket(k)
			if entry == nil {
				return nil
			}
			data := entry.Get([]byte(infoKey))
			if data == nil {
				return nil
			}
			info, err := deserializeObject[mailbox.Info](data)
			if err != nil {
				return err
			}
			list = append(list, *info)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list, nil
}

// Backup writes a consistent copy of the catalog into filename
func (c *Catalog) Backup(filename string) error {
	return c.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(filename, 0o600)
	})
}

func folderBucket(tx *bolt.Tx, name string) (*bolt.Bucket, error) {
	if name == "" {
		return nil, lib.ErrInvalidName
	}
	root, err := tx.CreateBucketIfNotExists([]byte(mailboxBucket))
	if err != nil {
		return nil, err
	}
	return root.CreateBucketIfNotExists([]byte(name))
}

// getInfo reads the entry of the folder, creating it when missing
func getInfo(bucket *bolt.Bucket, name string) (*mailbox.Info, error) {
	data := bucket.Get([]byte(infoKey))
	if data != nil {
		return deserializeObject[mailbox.Info](data)
	}
	validity, err := newUIDValidity()
	if err != nil {
		return nil, err
	}
	info := &mailbox.Info{
		Name:        name,
		UidValidity: validity,
		Created:     time.Now(),
	}
	data, err = serializeObject(info)
	if err != nil {
		return nil, err
	}
	err = bucket.Put([]byte(infoKey), data)
	if err != nil {
		return nil, err
	}
	return info, nil
}

func newUIDValidity() (uint32, error) {
	buffer := make([]byte, 4)
	_, err := rand.Read(buffer)
	if err != nil {
		return 0, fmt.Errorf("cannot generate UIDVALIDITY: %w", err)
	}
	validity := binary.LittleEndian.Uint32(buffer)
	if validity == 0 {
		validity = 1
	}
	return validity, nil
}
