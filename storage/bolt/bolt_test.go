package bolt_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/jobhost/bindings/blobpath"
	"github.com/jobhost/bindings/storage"
	"github.com/jobhost/bindings/storage/bolt"
	"github.com/stretchr/testify/suite"
)

var (
	_ storage.Blobs  = (*bolt.Storage)(nil)
	_ storage.Queues = (*bolt.Storage)(nil)
	_ storage.Tables = (*bolt.Storage)(nil)
	_ storage.Leaser = (*bolt.Storage)(nil)
)

type BoltTestSuite struct {
	suite.Suite
	ctx     context.Context
	storage *bolt.Storage
}

func (suite *BoltTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.storage = bolt.NewStorage(filepath.Join(suite.T().TempDir(), "storage.db"))
	suite.Require().Nil(suite.storage.Open())
}

func (suite *BoltTestSuite) TearDownTest() {
	suite.Nil(suite.storage.Close())
}

func (suite *BoltTestSuite) TestBlobs() {
	path := blobpath.Path{Container: "input", Blob: "orders/1.json"}

	suite.Run("Missing", func() {
		found, err := suite.storage.Exists(suite.ctx, path)
		suite.Nil(err)
		suite.False(found)
		_, found, err = suite.storage.ReadText(suite.ctx, path)
		suite.Nil(err)
		suite.False(found)
		_, err = suite.storage.OpenRead(suite.ctx, path)
		suite.True(errors.Is(err, storage.ErrNotFound))
	})

	suite.Run("WriteRead", func() {
		w, err := suite.storage.OpenWrite(suite.ctx, path)
		suite.Require().Nil(err)
		_, err = io.WriteString(w, `{"id":1}`)
		suite.Nil(err)
		found, _ := suite.storage.Exists(suite.ctx, path)
		suite.False(found)
		suite.Nil(w.Close())

		text, found, err := suite.storage.ReadText(suite.ctx, path)
		suite.Nil(err)
		suite.True(found)
		suite.Equal(`{"id":1}`, text)

		r, err := suite.storage.OpenRead(suite.ctx, path)
		suite.Require().Nil(err)
		data, _ := io.ReadAll(r)
		suite.Equal(`{"id":1}`, string(data))
		suite.Nil(r.Close())

		modified, found, err := suite.storage.LastModified(suite.ctx, path)
		suite.Nil(err)
		suite.True(found)
		suite.False(modified.IsZero())
	})

	suite.Run("InvalidContainer", func() {
		_, err := suite.storage.OpenWrite(suite.ctx, blobpath.Path{Container: "Bad_Name", Blob: "x"})
		suite.True(errors.Is(err, blobpath.ErrInvalidContainerName))
	})

	suite.Run("Canceled", func() {
		ctx, cancel := context.WithCancel(suite.ctx)
		cancel()
		_, err := suite.storage.Exists(ctx, path)
		suite.True(errors.Is(err, context.Canceled))
	})
}

func (suite *BoltTestSuite) TestLeases() {
	path := blobpath.Path{Container: "output", Blob: "report.txt"}

	suite.Run("Exclusive", func() {
		lease, err := suite.storage.AcquireLease(suite.ctx, path, 0)
		suite.Require().Nil(err)
		suite.NotEmpty(lease)
		_, err = suite.storage.AcquireLease(suite.ctx, path, time.Minute)
		suite.True(errors.Is(err, storage.ErrLeaseAlreadyHeld))
		suite.False(errors.Is(err, storage.ErrNotFound))
		suite.Nil(suite.storage.ReleaseLease(suite.ctx, path, lease))
		again, err := suite.storage.AcquireLease(suite.ctx, path, time.Minute)
		suite.Nil(err)
		suite.NotEqual(lease, again)
		suite.Nil(suite.storage.ReleaseLease(suite.ctx, path, again))
	})

	suite.Run("Expired", func() {
		_, err := suite.storage.AcquireLease(suite.ctx, path, time.Millisecond)
		suite.Require().Nil(err)
		time.Sleep(5 * time.Millisecond)
		lease, err := suite.storage.AcquireLease(suite.ctx, path, 0)
		suite.Nil(err)
		suite.Nil(suite.storage.ReleaseLease(suite.ctx, path, lease))
	})

	suite.Run("ReleaseNotHeld", func() {
		err := suite.storage.ReleaseLease(suite.ctx, path, "nobody")
		suite.True(errors.Is(err, storage.ErrLeaseNotHeld))
		lease, err := suite.storage.AcquireLease(suite.ctx, path, 0)
		suite.Require().Nil(err)
		err = suite.storage.ReleaseLease(suite.ctx, path, "nobody")
		suite.True(errors.Is(err, storage.ErrLeaseNotHeld))
		suite.Nil(suite.storage.ReleaseLease(suite.ctx, path, lease))
	})
}

func (suite *BoltTestSuite) TestQueues() {
	suite.Run("Order", func() {
		first, err := suite.storage.Enqueue(suite.ctx, "orders", []byte("one"))
		suite.Nil(err)
		suite.NotEmpty(first.Id)
		_, err = suite.storage.Enqueue(suite.ctx, "orders", []byte("two"))
		suite.Nil(err)

		msg, ok, err := suite.storage.Dequeue(suite.ctx, "orders")
		suite.Nil(err)
		suite.True(ok)
		suite.Equal(first.Id, msg.Id)
		suite.Equal("one", string(msg.Payload))
		suite.Equal(1, msg.DequeueCount)
		suite.Equal(first.InsertedAt.Unix(), msg.InsertedAt.Unix())

		msg, ok, _ = suite.storage.Dequeue(suite.ctx, "orders")
		suite.True(ok)
		suite.Equal("two", string(msg.Payload))

		_, ok, err = suite.storage.Dequeue(suite.ctx, "orders")
		suite.Nil(err)
		suite.False(ok)
	})

	suite.Run("Empty", func() {
		_, ok, err := suite.storage.Dequeue(suite.ctx, "unknown")
		suite.Nil(err)
		suite.False(ok)
	})

	suite.Run("InvalidName", func() {
		_, err := suite.storage.Enqueue(suite.ctx, "Orders", nil)
		suite.True(errors.Is(err, storage.ErrInvalidQueueName))
	})
}

func (suite *BoltTestSuite) TestTables() {
	upsert := func(pk, rk string, total float64) {
		suite.Require().Nil(suite.storage.Upsert(suite.ctx, "Orders", &storage.Entity{
			PartitionKey: pk,
			RowKey:       rk,
			Properties:   map[string]any{"Total": total},
		}))
	}

	suite.Run("GetUpsert", func() {
		upsert("acme", "1", 10)
		upsert("acme", "1", 12)
		entity, found, err := suite.storage.Get(suite.ctx, "orders", "acme", "1")
		suite.Nil(err)
		suite.True(found)
		suite.Equal(12.0, entity.Properties["Total"])
		suite.False(entity.Timestamp.IsZero())

		_, found, err = suite.storage.Get(suite.ctx, "Orders", "acme", "2")
		suite.Nil(err)
		suite.False(found)
	})

	suite.Run("Query", func() {
		upsert("acme", "1", 10)
		upsert("acme", "2", 20)
		upsert("zeta", "1", 30)
		entities, err := suite.storage.Query(suite.ctx, "Orders", func(e *storage.Entity) bool {
			return e.Properties["Total"].(float64) >= 20
		})
		suite.Nil(err)
		suite.Len(entities, 2)
		suite.Equal("acme", entities[0].PartitionKey)
		suite.Equal("zeta", entities[1].PartitionKey)

		all, err := suite.storage.Query(suite.ctx, "Orders", nil)
		suite.Nil(err)
		suite.Len(all, 3)
	})

	suite.Run("InvalidKey", func() {
		err := suite.storage.Upsert(suite.ctx, "Orders", &storage.Entity{PartitionKey: "a/b", RowKey: "1"})
		suite.True(errors.Is(err, storage.ErrInvalidEntityKey))
	})
}

func TestBoltTestSuite(t *testing.T) {
	suite.Run(t, new(BoltTestSuite))
}
