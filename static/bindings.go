package static

import (
	"fmt"
	"reflect"
	"time"

	"github.com/jobhost/bindings/bindingdata"
	"github.com/jobhost/bindings/pattern"
)

// AsTrigger returns b as a Trigger when b starts its function.
func AsTrigger(b Binding) (Trigger, bool) {
	switch t := b.(type) {
	case *Blob:
		return t, t.Trigger
	case *Queue:
		return t, t.Trigger
	case *Timer:
		return t, true
	}
	return nil, false
}

func (b *Blob) Parameter() string { return b.Param }

func (b *Blob) ProducedRouteParameters() []string {
	if !b.Trigger {
		return nil
	}
	return append(b.Pattern.ParameterNames(), BlobTriggerData)
}

func (b *Blob) RequiredRouteParameters() []string {
	if b.Trigger {
		return nil
	}
	return b.Pattern.ParameterNames()
}

// Contract is the binding data of a blob trigger: every placeholder
// captured from the blob path plus the path itself.
func (b *Blob) Contract() bindingdata.Contract {
	if !b.Trigger {
		return nil
	}
	contract := bindingdata.Contract{BlobTriggerData: stringType}
	for _, name := range b.Pattern.ParameterNames() {
		contract[name] = stringType
	}
	return contract
}

func (b *Blob) String() string {
	if b.Trigger {
		return fmt.Sprintf("BlobTrigger(%s)", b.Path)
	}
	return fmt.Sprintf("Blob(%s, %s)", b.Path, b.Access)
}

func (q *Queue) Parameter() string { return q.Param }

func (q *Queue) ProducedRouteParameters() []string {
	if !q.Trigger {
		return nil
	}
	return q.Contract().Names()
}

func (q *Queue) RequiredRouteParameters() []string {
	if q.Trigger {
		return nil
	}
	return q.Pattern.ParameterNames()
}

// Contract is the binding data of a queue trigger: the message
// properties and the string convertible fields of the message type.
// A field named like a message property takes precedence.
func (q *Queue) Contract() bindingdata.Contract {
	if !q.Trigger {
		return nil
	}
	return queueContract.With(bindingdata.DeriveContract(q.Message))
}

func (q *Queue) String() string {
	if q.Trigger {
		return fmt.Sprintf("QueueTrigger(%s)", q.QueueName)
	}
	return fmt.Sprintf("Queue(%s)", q.QueueName)
}

func (t *Table) Parameter() string                 { return t.Param }
func (t *Table) ProducedRouteParameters() []string { return nil }
func (t *Table) RequiredRouteParameters() []string { return nil }
func (t *Table) String() string                    { return fmt.Sprintf("Table(%s)", t.TableName) }

func (t *TableEntity) Parameter() string                 { return t.Param }
func (t *TableEntity) ProducedRouteParameters() []string { return nil }

func (t *TableEntity) RequiredRouteParameters() []string {
	return append(t.PartitionKey.ParameterNames(), t.RowKey.ParameterNames()...)
}

func (t *TableEntity) String() string {
	return fmt.Sprintf("Table(%s, %s, %s)", t.TableName, t.PartitionKey, t.RowKey)
}

func (t *Timer) Parameter() string                 { return t.Param }
func (t *Timer) ProducedRouteParameters() []string { return nil }
func (t *Timer) RequiredRouteParameters() []string { return nil }
func (t *Timer) Contract() bindingdata.Contract    { return nil }
func (t *Timer) String() string                    { return fmt.Sprintf("TimerTrigger(%s)", t.Schedule) }

func (n *Name) Parameter() string                 { return n.Param }
func (n *Name) ProducedRouteParameters() []string { return nil }

func (n *Name) RequiredRouteParameters() []string {
	if n.Route {
		return []string{n.Param}
	}
	return nil
}

func (n *Name) String() string {
	if n.Route {
		return fmt.Sprintf("Name(%s)", pattern.Parameter(n.Param))
	}
	return fmt.Sprintf("Name(%s)", n.Param)
}

func (b *Binder) Parameter() string                 { return b.Param }
func (b *Binder) ProducedRouteParameters() []string { return nil }
func (b *Binder) RequiredRouteParameters() []string { return nil }
func (b *Binder) String() string                    { return "Binder" }

func (*Blob) static()        {}
func (*Queue) static()       {}
func (*Table) static()       {}
func (*TableEntity) static() {}
func (*Timer) static()       {}
func (*Name) static()        {}
func (*Binder) static()      {}

var (
	stringType = reflect.TypeOf("")

	queueContract = bindingdata.Contract{
		"QueueTrigger":  stringType,
		"DequeueCount":  reflect.TypeOf(0),
		"Id":            stringType,
		"InsertionTime": reflect.TypeOf(time.Time{}),
	}
)
