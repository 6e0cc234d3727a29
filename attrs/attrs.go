// Package attrs declares the attributes that describe how a function
// parameter binds.  The set is closed: each kind of binding has exactly
// one attribute type.
package attrs

import (
	"fmt"
	"strings"
)

type (
	// Attribute is implemented only by the attributes of this package.
	Attribute interface {
		fmt.Stringer
		attribute()
	}

	// Access describes the direction of a blob binding.
	Access uint8

	// Blob binds a parameter to a blob read or written by the function.
	Blob struct {
		Path       string `validate:"required"`
		Access     Access
		Connection string
	}

	// BlobTrigger binds the blob that triggered the function.
	BlobTrigger struct {
		Path       string `validate:"required"`
		Connection string
	}

	// Queue binds a parameter to a queue the function writes to.
	Queue struct {
		QueueName  string `validate:"required"`
		Connection string
	}

	// QueueTrigger binds the message that triggered the function.
	QueueTrigger struct {
		QueueName  string `validate:"required"`
		Connection string
	}

	// Table binds a parameter to a table or, given a RowKey,
	// to a single entity of a table.
	Table struct {
		TableName    string `validate:"required"`
		PartitionKey string `validate:"required_with=RowKey"`
		RowKey       string
		Connection   string
	}

	// TimerTrigger binds the timer schedule that triggered the function.
	TimerTrigger struct {
		Schedule     string `validate:"required"`
		RunOnStartup bool
	}

	// Binder binds a runtime binder that lets the function request
	// more bindings while it runs.
	Binder struct{}
)

const (
	AccessRead Access = iota
	AccessWrite
	AccessReadWrite
)

// Kinds lists the type names of every attribute in this package.
var Kinds = []string{
	"Blob", "BlobTrigger", "Queue", "QueueTrigger", "Table", "TimerTrigger", "Binder",
}

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "Read"
	case AccessWrite:
		return "Write"
	case AccessReadWrite:
		return "ReadWrite"
	}
	return fmt.Sprintf("Access(%d)", uint8(a))
}

func (a Access) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Access) UnmarshalText(text []byte) error {
	access, err := ParseAccess(string(text))
	if err == nil {
		*a = access
	}
	return err
}

// ParseAccess parses an Access name or a direction (in, out, inout).
func ParseAccess(s string) (Access, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read", "in", "":
		return AccessRead, nil
	case "write", "out":
		return AccessWrite, nil
	case "readwrite", "inout":
		return AccessReadWrite, nil
	}
	return 0, fmt.Errorf("attrs: unknown access %q", s)
}

func (a Blob) String() string {
	return fmt.Sprintf("Blob(%s, %s)", a.Path, a.Access)
}

func (a BlobTrigger) String() string {
	return fmt.Sprintf("BlobTrigger(%s)", a.Path)
}

func (a Queue) String() string {
	return fmt.Sprintf("Queue(%s)", a.QueueName)
}

func (a QueueTrigger) String() string {
	return fmt.Sprintf("QueueTrigger(%s)", a.QueueName)
}

func (a Table) String() string {
	if a.RowKey != "" {
		return fmt.Sprintf("Table(%s, %s, %s)", a.TableName, a.PartitionKey, a.RowKey)
	}
	return fmt.Sprintf("Table(%s)", a.TableName)
}

func (a TimerTrigger) String() string {
	return fmt.Sprintf("TimerTrigger(%s)", a.Schedule)
}

func (Binder) String() string {
	return "Binder"
}

func (Blob) attribute()         {}
func (BlobTrigger) attribute()  {}
func (Queue) attribute()        {}
func (QueueTrigger) attribute() {}
func (Table) attribute()        {}
func (TimerTrigger) attribute() {}
func (Binder) attribute()       {}
