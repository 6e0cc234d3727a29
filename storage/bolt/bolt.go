// Package bolt stores blobs, queues and tables in a bbolt database.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/jobhost/bindings/blobpath"
	"github.com/jobhost/bindings/codec"
	"github.com/jobhost/bindings/storage"
	bolt "go.etcd.io/bbolt"
)

type (
	// Storage implements every storage capability over one database.
	Storage struct {
		Log      logr.Logger
		filename string
		db       *bolt.DB
		now      func() time.Time
	}

	blobRecord struct {
		Modified codec.Time
		Data     []byte
	}

	leaseRecord struct {
		Id      string
		Expires codec.Time
	}

	messageRecord struct {
		Id           string
		Payload      []byte
		InsertedAt   codec.Time
		DequeueCount int
	}

	entityRecord struct {
		PartitionKey string
		RowKey       string
		Timestamp    codec.Time
		Properties   map[string]any
	}

	blobWriter struct {
		bytes.Buffer
		ctx    context.Context
		s      *Storage
		path   blobpath.Path
		closed bool
	}
)

var (
	blobsBucket  = []byte("blobs")
	leasesBucket = []byte("leases")
	queuesBucket = []byte("queues")
	tablesBucket = []byte("tables")
)

func NewStorage(filename string) *Storage {
	return &Storage{
		Log:      logr.Discard(),
		filename: filename,
		now:      time.Now,
	}
}

func (s *Storage) Open() error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}
	db, err := bolt.Open(s.filename, 0644, opts)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Account exposes the storage as every capability of an account.
func (s *Storage) Account() *storage.Account {
	return &storage.Account{Blobs: s, Queues: s, Tables: s}
}

func (s *Storage) Exists(ctx context.Context, path blobpath.Path) (bool, error) {
	record, err := s.readBlob(ctx, path)
	return record != nil, err
}

func (s *Storage) ReadText(ctx context.Context, path blobpath.Path) (string, bool, error) {
	record, err := s.readBlob(ctx, path)
	if record == nil || err != nil {
		return "", false, err
	}
	return string(record.Data), true, nil
}

func (s *Storage) OpenRead(ctx context.Context, path blobpath.Path) (io.ReadCloser, error) {
	record, err := s.readBlob(ctx, path)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("blob %s: %w", path, storage.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(record.Data)), nil
}

// OpenWrite buffers the blob and stores it when the writer closes.
func (s *Storage) OpenWrite(ctx context.Context, path blobpath.Path) (io.WriteCloser, error) {
	if err := storage.ValidateBlobPath(path); err != nil {
		return nil, err
	}
	return &blobWriter{ctx: ctx, s: s, path: path}, nil
}

func (s *Storage) LastModified(ctx context.Context, path blobpath.Path) (time.Time, bool, error) {
	record, err := s.readBlob(ctx, path)
	if record == nil || err != nil {
		return time.Time{}, false, err
	}
	return record.Modified.Time, true, nil
}

func (s *Storage) readBlob(ctx context.Context, path blobpath.Path) (*blobRecord, error) {
	if err := storage.ValidateBlobPath(path); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var record *blobRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := bucket(tx, blobsBucket, path.Container)
		if b == nil {
			return nil
		}
		bs := b.Get([]byte(path.Blob))
		if bs == nil {
			return nil
		}
		record = new(blobRecord)
		return codec.Unmarshal(bs, record)
	})
	return record, err
}

func (s *Storage) writeBlob(ctx context.Context, path blobpath.Path, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	js, err := codec.Marshal(blobRecord{codec.At(s.now()), data})
	if err != nil {
		return err
	}
	s.Log.V(1).Info("WriteBlob", "path", path.String(), "bytes", len(data))
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := createBucket(tx, blobsBucket, path.Container)
		if err != nil {
			return err
		}
		return b.Put([]byte(path.Blob), js)
	})
}

func (w *blobWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.s.writeBlob(w.ctx, w.path, w.Bytes())
}

// AcquireLease takes the lease on path.  The blob need not exist.
// An unexpired lease held by anyone fails with storage.ErrLeaseAlreadyHeld.
func (s *Storage) AcquireLease(ctx context.Context, path blobpath.Path, duration time.Duration) (string, error) {
	if err := storage.ValidateBlobPath(path); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := s.now()
	lease := leaseRecord{Id: uuid.NewString()}
	if duration > 0 {
		lease.Expires = codec.At(now.Add(duration))
	}
	js, err := codec.Marshal(lease)
	if err != nil {
		return "", err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := createBucket(tx, leasesBucket, path.Container)
		if err != nil {
			return err
		}
		if bs := b.Get([]byte(path.Blob)); bs != nil {
			var held leaseRecord
			if err := codec.Unmarshal(bs, &held); err != nil {
				return err
			}
			if held.Expires.IsZero() || now.Before(held.Expires.Time) {
				return fmt.Errorf("blob %s: %w", path, storage.ErrLeaseAlreadyHeld)
			}
		}
		return b.Put([]byte(path.Blob), js)
	})
	if err != nil {
		return "", err
	}
	s.Log.V(1).Info("AcquireLease", "path", path.String(), "lease", lease.Id)
	return lease.Id, nil
}

// ReleaseLease gives up the lease on path.  Releasing a lease that
// expired or was taken by another holder fails with storage.ErrLeaseNotHeld.
func (s *Storage) ReleaseLease(ctx context.Context, path blobpath.Path, leaseId string) error {
	if err := storage.ValidateBlobPath(path); err != nil {
		return err
	}
	s.Log.V(1).Info("ReleaseLease", "path", path.String(), "lease", leaseId)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := bucket(tx, leasesBucket, path.Container)
		if b == nil {
			return fmt.Errorf("blob %s: %w", path, storage.ErrLeaseNotHeld)
		}
		bs := b.Get([]byte(path.Blob))
		if bs == nil {
			return fmt.Errorf("blob %s: %w", path, storage.ErrLeaseNotHeld)
		}
		var held leaseRecord
		if err := codec.Unmarshal(bs, &held); err != nil {
			return err
		}
		if held.Id != leaseId {
			return fmt.Errorf("blob %s: %w", path, storage.ErrLeaseNotHeld)
		}
		return b.Delete([]byte(path.Blob))
	})
}

func (s *Storage) Enqueue(ctx context.Context, queue string, payload []byte) (*storage.Message, error) {
	if err := storage.ValidateQueueName(queue); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg := &storage.Message{
		Id:         uuid.NewString(),
		Payload:    payload,
		InsertedAt: s.now().UTC(),
	}
	js, err := codec.Marshal(messageRecord{msg.Id, payload, codec.At(msg.InsertedAt), 0})
	if err != nil {
		return nil, err
	}
	s.Log.V(1).Info("Enqueue", "queue", queue, "id", msg.Id)
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := createBucket(tx, queuesBucket, queue)
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(sequenceKey(seq), js)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Dequeue removes the oldest message of queue.
func (s *Storage) Dequeue(ctx context.Context, queue string) (*storage.Message, bool, error) {
	if err := storage.ValidateQueueName(queue); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var msg *storage.Message
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := bucket(tx, queuesBucket, queue)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		key, bs := c.First()
		if key == nil {
			return nil
		}
		var record messageRecord
		if err := codec.Unmarshal(bs, &record); err != nil {
			return err
		}
		msg = &storage.Message{
			Id:           record.Id,
			Payload:      record.Payload,
			InsertedAt:   record.InsertedAt.Time,
			DequeueCount: record.DequeueCount + 1,
		}
		return c.Delete()
	})
	if err != nil || msg == nil {
		return nil, false, err
	}
	s.Log.V(1).Info("Dequeue", "queue", queue, "id", msg.Id)
	return msg, true, nil
}

func (s *Storage) Get(ctx context.Context, table, partitionKey, rowKey string) (*storage.Entity, bool, error) {
	if err := validateEntity(table, partitionKey, rowKey); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var entity *storage.Entity
	err := s.db.View(func(tx *bolt.Tx) error {
		b := bucket(tx, tablesBucket, strings.ToLower(table))
		if b == nil {
			return nil
		}
		bs := b.Get(entityKey(partitionKey, rowKey))
		if bs == nil {
			return nil
		}
		var err error
		entity, err = decodeEntity(bs)
		return err
	})
	return entity, entity != nil, err
}

// Upsert stores entity replacing any entity with the same keys.
// The entity's timestamp is updated.
func (s *Storage) Upsert(ctx context.Context, table string, entity *storage.Entity) error {
	if err := validateEntity(table, entity.PartitionKey, entity.RowKey); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	entity.Timestamp = s.now().UTC()
	js, err := codec.Marshal(entityRecord{
		entity.PartitionKey, entity.RowKey, codec.At(entity.Timestamp), entity.Properties,
	})
	if err != nil {
		return err
	}
	s.Log.V(1).Info("Upsert", "table", table,
		"partitionKey", entity.PartitionKey, "rowKey", entity.RowKey)
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := createBucket(tx, tablesBucket, strings.ToLower(table))
		if err != nil {
			return err
		}
		return b.Put(entityKey(entity.PartitionKey, entity.RowKey), js)
	})
}

// Query returns the entities of table satisfying predicate
// ordered by partition and row key.  A nil predicate matches all.
func (s *Storage) Query(
	ctx       context.Context,
	table     string,
	predicate func(*storage.Entity) bool,
) ([]*storage.Entity, error) {
	if err := storage.ValidateTableName(table); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entities []*storage.Entity
	err := s.db.View(func(tx *bolt.Tx) error {
		b := bucket(tx, tablesBucket, strings.ToLower(table))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, bs []byte) error {
			entity, err := decodeEntity(bs)
			if err != nil {
				return err
			}
			if predicate == nil || predicate(entity) {
				entities = append(entities, entity)
			}
			return nil
		})
	})
	return entities, err
}

func decodeEntity(bs []byte) (*storage.Entity, error) {
	var record entityRecord
	if err := codec.Unmarshal(bs, &record); err != nil {
		return nil, err
	}
	return &storage.Entity{
		PartitionKey: record.PartitionKey,
		RowKey:       record.RowKey,
		Timestamp:    record.Timestamp.Time,
		Properties:   record.Properties,
	}, nil
}

func validateEntity(table, partitionKey, rowKey string) error {
	if err := storage.ValidateTableName(table); err != nil {
		return err
	}
	if err := storage.ValidateEntityKey(partitionKey); err != nil {
		return err
	}
	return storage.ValidateEntityKey(rowKey)
}

func bucket(tx *bolt.Tx, root []byte, name string) *bolt.Bucket {
	b := tx.Bucket(root)
	if b == nil {
		return nil
	}
	return b.Bucket([]byte(name))
}

func createBucket(tx *bolt.Tx, root []byte, name string) (*bolt.Bucket, error) {
	b, err := tx.CreateBucketIfNotExists(root)
	if err != nil {
		return nil, err
	}
	return b.CreateBucketIfNotExists([]byte(name))
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func entityKey(partitionKey, rowKey string) []byte {
	return []byte(partitionKey + "\x00" + rowKey)
}
