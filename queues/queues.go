// Package queues binds parameters to queue messages.
package queues

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/jobhost/bindings"
	"github.com/jobhost/bindings/bindingdata"
	"github.com/jobhost/bindings/codec"
	"github.com/jobhost/bindings/metadata"
	"github.com/jobhost/bindings/static"
	"github.com/jobhost/bindings/storage"
	"github.com/tidwall/gjson"
)

type (
	// Provider creates the runtime bindings of queues.
	Provider struct {
		Codec codec.Options
	}

	// Collector gathers messages a function sends to a queue.
	// The messages are enqueued once the function succeeds.
	Collector struct {
		lock     sync.Mutex
		codec    codec.Options
		parent   uuid.UUID
		payloads [][]byte
	}

	binding struct {
		static *static.Queue
		typ    reflect.Type
		codec  codec.Options
	}

	messageProvider struct {
		typ   reflect.Type
		msg   *storage.Message
		value any
	}

	outProvider struct {
		binding *binding
		inv     *bindings.Invocation
		queues  storage.Queues
		queue   string
		value   any
	}
)

// ParentIdField holds the id of the function instance that
// enqueued a message.
const ParentIdField = "$AzureWebJobsParentId"

func (p *Provider) Create(param metadata.Parameter, sb static.Binding) (bindings.Binding, error) {
	queue, ok := sb.(*static.Queue)
	if !ok {
		return nil, nil
	}
	typ := param.Type
	if typ == nil {
		typ = stringType
	}
	if !queue.Trigger && typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("queue output %q must be a pointer, got %v", param.Name, typ)
	}
	return &binding{queue, typ, p.Codec}, nil
}

func (b *binding) Static() static.Binding {
	return b.static
}

// Bind binds a supplied message.  Outputs cannot be supplied.
func (b *binding) Bind(ctx context.Context, inv *bindings.Invocation, value any) (bindings.ValueProvider, error) {
	if !b.static.Trigger {
		return nil, fmt.Errorf("queue output %s cannot be supplied", b.static.QueueName)
	}
	provider, _, err := b.BindTrigger(ctx, inv, value)
	return provider, err
}

func (b *binding) BindFromData(_ context.Context, inv *bindings.Invocation) (bindings.ValueProvider, error) {
	if b.static.Trigger {
		return nil, bindings.ErrNoTriggerValue
	}
	queues, err := inv.Accounts.Queues(b.static.Connection)
	if err != nil {
		return nil, err
	}
	resolved, err := b.static.Pattern.Resolve(inv.Data)
	if err != nil {
		return nil, err
	}
	name := static.NormalizeQueueName(resolved)
	if err := storage.ValidateQueueName(name); err != nil {
		return nil, err
	}
	out := &outProvider{binding: b, inv: inv, queues: queues, queue: name}
	if b.typ == collectorType {
		out.value = &Collector{codec: b.codec, parent: inv.Id}
	} else {
		out.value = reflect.New(b.typ.Elem()).Interface()
	}
	return out, nil
}

// BindTrigger binds the message that started the function.  Its binding
// data holds the message properties and the scalar members of a json
// payload matching the message type.  Payload members replace message
// properties of the same name.
func (b *binding) BindTrigger(
	_     context.Context,
	inv   *bindings.Invocation,
	value any,
) (bindings.ValueProvider, bindingdata.Data, error) {
	msg, err := messageOf(value)
	if err != nil {
		return nil, nil, err
	}
	converted, err := b.convert(msg)
	if err != nil {
		return nil, nil, err
	}
	text := string(msg.Payload)
	data, err := bindingdata.Merge(bindingdata.New(map[string]any{
		"QueueTrigger":  text,
		"DequeueCount":  msg.DequeueCount,
		"Id":            msg.Id,
		"InsertionTime": msg.InsertedAt,
	}), bindingdata.ExtractJSON(text, bindingdata.DeriveContract(b.static.Message)))
	if err != nil {
		return nil, nil, err
	}
	if parent, ok := ParentId(msg.Payload); ok {
		inv.Logger().V(1).Info("message caused by function instance",
			"queue", b.static.QueueName, "id", msg.Id, "parent", parent)
	}
	return &messageProvider{b.typ, msg, converted}, data, nil
}

func (b *binding) convert(msg *storage.Message) (any, error) {
	switch {
	case b.typ == messageType:
		return msg, nil
	case b.typ == bytesType:
		return msg.Payload, nil
	case b.typ.Kind() == reflect.String:
		return bindingdata.ChangeType(string(msg.Payload), b.typ)
	}
	target := b.typ
	if target.Kind() == reflect.Ptr {
		target = target.Elem()
	}
	v := reflect.New(target)
	if err := codec.Unmarshal(msg.Payload, v.Interface(), b.codec); err != nil {
		return nil, fmt.Errorf("message %s: %w", msg.Id, err)
	}
	if b.typ.Kind() == reflect.Ptr {
		return v.Interface(), nil
	}
	return v.Elem().Interface(), nil
}

func (p *messageProvider) Type() reflect.Type                { return p.typ }
func (p *messageProvider) Value() (any, error)               { return p.value, nil }
func (p *messageProvider) InvokeString() string              { return string(p.msg.Payload) }
func (p *messageProvider) Capabilities() bindings.Capability { return bindings.CanRead }

func (p *outProvider) Type() reflect.Type                { return p.binding.typ }
func (p *outProvider) Value() (any, error)               { return p.value, nil }
func (p *outProvider) InvokeString() string              { return p.queue }
func (p *outProvider) Capabilities() bindings.Capability { return bindings.CanWrite }

// SetValue enqueues the message the function left in its argument.
// A nil or empty value sends nothing.
func (p *outProvider) SetValue(ctx context.Context, value any) error {
	if collector, ok := value.(*Collector); ok {
		return collector.flush(ctx, p.queues, p.queue)
	}
	rv := reflect.ValueOf(value)
	if value == nil || rv.Kind() != reflect.Ptr || rv.IsNil() {
		return nil
	}
	payload, err := encode(rv.Elem().Interface(), p.binding.codec, p.inv.Id)
	if err != nil || payload == nil {
		return err
	}
	_, err = p.queues.Enqueue(ctx, p.queue, payload)
	return err
}

// Add encodes message for sending.
func (c *Collector) Add(message any) error {
	payload, err := encode(message, c.codec, c.parent)
	if err != nil {
		return err
	}
	if payload == nil {
		return fmt.Errorf("cannot send an empty %T", message)
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	c.payloads = append(c.payloads, payload)
	return nil
}

// Len returns the number of pending messages.
func (c *Collector) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.payloads)
}

func (c *Collector) flush(ctx context.Context, queues storage.Queues, queue string) error {
	c.lock.Lock()
	payloads := c.payloads
	c.payloads = nil
	c.lock.Unlock()
	for _, payload := range payloads {
		if _, err := queues.Enqueue(ctx, queue, payload); err != nil {
			return err
		}
	}
	return nil
}

// ParentId returns the function instance stamped on payload.
func ParentId(payload []byte) (uuid.UUID, bool) {
	id := gjson.GetBytes(payload, gjson.Escape(ParentIdField))
	if id.Type != gjson.String {
		return uuid.Nil, false
	}
	parent, err := uuid.Parse(id.String())
	return parent, err == nil
}

func encode(message any, options codec.Options, parent uuid.UUID) ([]byte, error) {
	switch m := message.(type) {
	case nil:
		return nil, nil
	case string:
		if m == "" {
			return nil, nil
		}
		return []byte(m), nil
	case []byte:
		if len(m) == 0 {
			return nil, nil
		}
		return m, nil
	}
	payload, err := codec.Marshal(message, options)
	if err != nil {
		return nil, err
	}
	return stamp(payload, parent), nil
}

// stamp records parent as the first member of a json object.
func stamp(payload []byte, parent uuid.UUID) []byte {
	trimmed := bytes.TrimSpace(payload)
	if parent == uuid.Nil || !gjson.ValidBytes(trimmed) || !gjson.ParseBytes(trimmed).IsObject() {
		return payload
	}
	var b bytes.Buffer
	b.WriteString(`{"` + ParentIdField + `":"` + parent.String() + `"`)
	if rest := bytes.TrimSpace(trimmed[1:]); len(rest) > 0 && rest[0] != '}' {
		b.WriteByte(',')
	}
	b.Write(trimmed[1:])
	return b.Bytes()
}

func messageOf(value any) (*storage.Message, error) {
	switch v := value.(type) {
	case *storage.Message:
		if v != nil {
			return v, nil
		}
	case storage.Message:
		return &v, nil
	case string:
		return &storage.Message{Payload: []byte(v)}, nil
	case []byte:
		return &storage.Message{Payload: v}, nil
	}
	return nil, fmt.Errorf("expected a queue message, got %T", value)
}

var (
	stringType    = reflect.TypeFor[string]()
	bytesType     = reflect.TypeFor[[]byte]()
	messageType   = reflect.TypeFor[*storage.Message]()
	collectorType = reflect.TypeFor[*Collector]()
)
