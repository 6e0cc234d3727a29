// Package storage declares the storage capabilities bindings consume.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jobhost/bindings/blobpath"
)

type (
	// Blobs reads and writes blobs.
	Blobs interface {
		Exists(ctx context.Context, path blobpath.Path) (bool, error)
		ReadText(ctx context.Context, path blobpath.Path) (string, bool, error)
		OpenRead(ctx context.Context, path blobpath.Path) (io.ReadCloser, error)
		OpenWrite(ctx context.Context, path blobpath.Path) (io.WriteCloser, error)
		LastModified(ctx context.Context, path blobpath.Path) (time.Time, bool, error)
	}

	// Leaser grants exclusive leases on blobs.  A lease without
	// a positive duration is held until released.
	Leaser interface {
		AcquireLease(ctx context.Context, path blobpath.Path, duration time.Duration) (string, error)
		ReleaseLease(ctx context.Context, path blobpath.Path, leaseId string) error
	}

	// Message is a queue message.
	Message struct {
		Id           string
		Payload      []byte
		InsertedAt   time.Time
		DequeueCount int
	}

	// Queues enqueues and dequeues messages.
	Queues interface {
		Enqueue(ctx context.Context, queue string, payload []byte) (*Message, error)
		Dequeue(ctx context.Context, queue string) (*Message, bool, error)
	}

	// Entity is a table row.
	Entity struct {
		PartitionKey string
		RowKey       string
		Timestamp    time.Time
		Properties   map[string]any
	}

	// Tables reads and writes table entities.
	Tables interface {
		Get(ctx context.Context, table, partitionKey, rowKey string) (*Entity, bool, error)
		Upsert(ctx context.Context, table string, entity *Entity) error
		Query(ctx context.Context, table string, predicate func(*Entity) bool) ([]*Entity, error)
	}

	// Account groups the capabilities of one storage account.
	// Any capability may be nil.
	Account struct {
		Blobs  Blobs
		Queues Queues
		Tables Tables
	}

	// Accounts maps connection names to accounts.
	// The empty name is the default account.
	Accounts map[string]*Account
)

var (
	ErrNotFound         = errors.New("not found")
	ErrNoAccount        = errors.New("no storage account")
	ErrNoCapability     = errors.New("storage capability not configured")
	ErrInvalidQueueName = errors.New("invalid queue name")
	ErrInvalidTableName = errors.New("invalid table name")
	ErrInvalidEntityKey = errors.New("invalid entity key")
	ErrLeaseAlreadyHeld = errors.New("lease already held")
	ErrLeaseNotHeld     = errors.New("lease not held")
)

// Account returns the account for a connection name.
func (a Accounts) Account(connection string) (*Account, error) {
	if account, ok := a[connection]; ok && account != nil {
		return account, nil
	}
	for name, account := range a {
		if account != nil && strings.EqualFold(name, connection) {
			return account, nil
		}
	}
	if connection == "" {
		return nil, ErrNoAccount
	}
	return nil, fmt.Errorf("%w %q", ErrNoAccount, connection)
}

// Blobs returns the blob capability of an account.
func (a Accounts) Blobs(connection string) (Blobs, error) {
	account, err := a.Account(connection)
	if err != nil {
		return nil, err
	}
	if account.Blobs == nil {
		return nil, fmt.Errorf("blobs: %w", ErrNoCapability)
	}
	return account.Blobs, nil
}

// Queues returns the queue capability of an account.
func (a Accounts) Queues(connection string) (Queues, error) {
	account, err := a.Account(connection)
	if err != nil {
		return nil, err
	}
	if account.Queues == nil {
		return nil, fmt.Errorf("queues: %w", ErrNoCapability)
	}
	return account.Queues, nil
}

// Tables returns the table capability of an account.
func (a Accounts) Tables(connection string) (Tables, error) {
	account, err := a.Account(connection)
	if err != nil {
		return nil, err
	}
	if account.Tables == nil {
		return nil, fmt.Errorf("tables: %w", ErrNoCapability)
	}
	return account.Tables, nil
}

// ValidateQueueName checks a queue name: 3-63 lowercase letters,
// digits and dashes, starting and ending with a letter or digit,
// without consecutive dashes.
func ValidateQueueName(name string) error {
	if len(name) < 3 || len(name) > 63 {
		return invalid(ErrInvalidQueueName, name, "must be 3-63 characters")
	}
	for i, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-':
			if i == 0 || i == len(name)-1 {
				return invalid(ErrInvalidQueueName, name, "must start and end with a letter or digit")
			}
			if name[i-1] == '-' {
				return invalid(ErrInvalidQueueName, name, "consecutive dashes")
			}
		default:
			return invalid(ErrInvalidQueueName, name, "only lowercase letters, digits and dashes")
		}
	}
	return nil
}

// ValidateTableName checks a table name: 3-63 letters and digits,
// not starting with a digit.
func ValidateTableName(name string) error {
	if len(name) < 3 || len(name) > 63 {
		return invalid(ErrInvalidTableName, name, "must be 3-63 characters")
	}
	for i, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
			if i == 0 {
				return invalid(ErrInvalidTableName, name, "must start with a letter")
			}
		default:
			return invalid(ErrInvalidTableName, name, "only letters and digits")
		}
	}
	return nil
}

// ValidateEntityKey checks a partition or row key.
func ValidateEntityKey(key string) error {
	if len(key) > 1024 {
		return invalid(ErrInvalidEntityKey, key, "must not exceed 1024 characters")
	}
	for _, c := range key {
		switch {
		case c == '/', c == '\\', c == '#', c == '?':
			return invalid(ErrInvalidEntityKey, key, "must not contain / \\ # or ?")
		case c < 0x20 || (c >= 0x7f && c <= 0x9f):
			return invalid(ErrInvalidEntityKey, key, "must not contain control characters")
		}
	}
	return nil
}

func invalid(kind error, name, reason string) error {
	return &NameError{Kind: kind, Name: name, Reason: reason}
}

// NameError reports an invalid storage name.
type NameError struct {
	Kind   error
	Name   string
	Reason string
}

func (e *NameError) Error() string {
	return e.Kind.Error() + " '" + e.Name + "': " + e.Reason
}

func (e *NameError) Unwrap() error {
	return e.Kind
}

// ValidateBlobPath checks the container and blob names of path.
func ValidateBlobPath(path blobpath.Path) error {
	if err := blobpath.ValidateContainerName(path.Container); err != nil {
		return err
	}
	return blobpath.ValidateBlobName(path.Blob)
}
