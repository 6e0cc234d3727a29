package storage_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/jobhost/bindings/blobpath"
	"github.com/jobhost/bindings/storage"
	"github.com/stretchr/testify/suite"
)

type StorageTestSuite struct {
	suite.Suite
}

func (suite *StorageTestSuite) TestAccounts() {
	account := &storage.Account{}
	accounts := storage.Accounts{"": account, "Archive": {}}

	suite.Run("Default", func() {
		a, err := accounts.Account("")
		suite.Nil(err)
		suite.Same(account, a)
	})

	suite.Run("IgnoreCase", func() {
		_, err := accounts.Account("archive")
		suite.Nil(err)
	})

	suite.Run("Missing", func() {
		_, err := accounts.Account("other")
		suite.True(errors.Is(err, storage.ErrNoAccount))
		suite.ErrorContains(err, `"other"`)
	})

	suite.Run("NoCapability", func() {
		_, err := accounts.Blobs("")
		suite.True(errors.Is(err, storage.ErrNoCapability))
		_, err = accounts.Queues("")
		suite.True(errors.Is(err, storage.ErrNoCapability))
		_, err = accounts.Tables("")
		suite.True(errors.Is(err, storage.ErrNoCapability))
	})
}

func (suite *StorageTestSuite) TestNames() {
	suite.Run("Queue", func() {
		suite.Nil(storage.ValidateQueueName("orders-2024"))
		for _, name := range []string{"ab", "-orders", "orders-", "or--ders", "Orders", strings.Repeat("a", 64)} {
			err := storage.ValidateQueueName(name)
			suite.True(errors.Is(err, storage.ErrInvalidQueueName), name)
		}
	})

	suite.Run("Table", func() {
		suite.Nil(storage.ValidateTableName("Orders2024"))
		for _, name := range []string{"ab", "1orders", "or-ders"} {
			err := storage.ValidateTableName(name)
			suite.True(errors.Is(err, storage.ErrInvalidTableName), name)
		}
	})

	suite.Run("EntityKey", func() {
		suite.Nil(storage.ValidateEntityKey(""))
		suite.Nil(storage.ValidateEntityKey("acme 1"))
		for _, key := range []string{"a/b", `a\b`, "a#b", "a?b", "a\tb", strings.Repeat("k", 1025)} {
			err := storage.ValidateEntityKey(key)
			suite.True(errors.Is(err, storage.ErrInvalidEntityKey), key)
		}
		var ne *storage.NameError
		suite.True(errors.As(storage.ValidateEntityKey("a/b"), &ne))
		suite.Equal("a/b", ne.Name)
	})

	suite.Run("BlobPath", func() {
		suite.Nil(storage.ValidateBlobPath(blobpath.Path{Container: "input", Blob: "a.txt"}))
		err := storage.ValidateBlobPath(blobpath.Path{Container: "IN", Blob: "a.txt"})
		suite.True(errors.Is(err, blobpath.ErrInvalidContainerName))
		err = storage.ValidateBlobPath(blobpath.Path{Container: "input", Blob: "a."})
		suite.True(errors.Is(err, blobpath.ErrInvalidBlobName))
	})
}

func TestStorageTestSuite(t *testing.T) {
	suite.Run(t, new(StorageTestSuite))
}
