// Package tables binds parameters to tables and table entities.
package tables

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/jobhost/bindings"
	"github.com/jobhost/bindings/codec"
	"github.com/jobhost/bindings/metadata"
	"github.com/jobhost/bindings/static"
	"github.com/jobhost/bindings/storage"
)

type (
	// Provider creates the runtime bindings of tables.
	Provider struct {
		Codec codec.Options
	}

	// Table is a handle to a table bound to a parameter.
	Table struct {
		Name   string
		tables storage.Tables
	}

	tableBinding struct {
		static *static.Table
	}

	entityBinding struct {
		static *static.TableEntity
		typ    reflect.Type
		codec  codec.Options
	}

	tableProvider struct {
		table *Table
	}

	entityProvider struct {
		binding      *entityBinding
		tables       storage.Tables
		partitionKey string
		rowKey       string
		value        any
		original     []byte
	}
)

const (
	partitionKeyField = "PartitionKey"
	rowKeyField       = "RowKey"
	timestampField    = "Timestamp"
)

func (p *Provider) Create(param metadata.Parameter, sb static.Binding) (bindings.Binding, error) {
	switch b := sb.(type) {
	case *static.Table:
		if param.Type != nil && param.Type != TableType {
			return nil, fmt.Errorf("table %s must bind to %v, not %v", b.TableName, TableType, param.Type)
		}
		return &tableBinding{b}, nil
	case *static.TableEntity:
		typ := param.Type
		if typ == nil {
			typ = entityType
		}
		if !isEntityType(typ) {
			return nil, fmt.Errorf("table entity %s cannot bind to %v", b, typ)
		}
		return &entityBinding{b, typ, p.Codec}, nil
	}
	return nil, nil
}

func isEntityType(typ reflect.Type) bool {
	if typ == entityType || typ == propertiesType {
		return true
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return typ.Kind() == reflect.Struct
}

// Get returns the entity with the given keys.
func (t *Table) Get(ctx context.Context, partitionKey, rowKey string) (*storage.Entity, bool, error) {
	return t.tables.Get(ctx, t.Name, partitionKey, rowKey)
}

// Upsert stores entity.
func (t *Table) Upsert(ctx context.Context, entity *storage.Entity) error {
	return t.tables.Upsert(ctx, t.Name, entity)
}

// Query returns the entities satisfying predicate.
func (t *Table) Query(ctx context.Context, predicate func(*storage.Entity) bool) ([]*storage.Entity, error) {
	return t.tables.Query(ctx, t.Name, predicate)
}

// Partition returns the entities of one partition.
func (t *Table) Partition(ctx context.Context, partitionKey string) ([]*storage.Entity, error) {
	return t.Query(ctx, func(e *storage.Entity) bool {
		return e.PartitionKey == partitionKey
	})
}

func (b *tableBinding) Static() static.Binding {
	return b.static
}

func (b *tableBinding) Bind(_ context.Context, _ *bindings.Invocation, value any) (bindings.ValueProvider, error) {
	table, ok := value.(*Table)
	if !ok || table == nil {
		return nil, fmt.Errorf("expected %v, got %T", TableType, value)
	}
	return &tableProvider{table}, nil
}

func (b *tableBinding) BindFromData(_ context.Context, inv *bindings.Invocation) (bindings.ValueProvider, error) {
	tables, err := inv.Accounts.Tables(b.static.Connection)
	if err != nil {
		return nil, err
	}
	return &tableProvider{&Table{b.static.TableName, tables}}, nil
}

func (p *tableProvider) Type() reflect.Type                { return TableType }
func (p *tableProvider) Value() (any, error)               { return p.table, nil }
func (p *tableProvider) InvokeString() string              { return p.table.Name }
func (p *tableProvider) Capabilities() bindings.Capability { return bindings.CanRead }

func (b *entityBinding) Static() static.Binding {
	return b.static
}

// Bind binds the entity whose keys are supplied as "pk/rk".
func (b *entityBinding) Bind(ctx context.Context, inv *bindings.Invocation, value any) (bindings.ValueProvider, error) {
	keys, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected partition and row key, got %T", value)
	}
	if partitionKey, rowKey, found := strings.Cut(keys, "/"); found {
		return b.bind(ctx, inv, partitionKey, rowKey)
	}
	return nil, fmt.Errorf("expected partition and row key separated by '/', got %q", keys)
}

// BindFromData binds the entity whose keys resolve from binding data.
func (b *entityBinding) BindFromData(ctx context.Context, inv *bindings.Invocation) (bindings.ValueProvider, error) {
	partitionKey, err := b.static.PartitionKey.Resolve(inv.Data)
	if err != nil {
		return nil, err
	}
	rowKey, err := b.static.RowKey.Resolve(inv.Data)
	if err != nil {
		return nil, err
	}
	return b.bind(ctx, inv, partitionKey, rowKey)
}

func (b *entityBinding) bind(
	ctx          context.Context,
	inv          *bindings.Invocation,
	partitionKey string,
	rowKey       string,
) (bindings.ValueProvider, error) {
	for _, key := range []string{partitionKey, rowKey} {
		if err := storage.ValidateEntityKey(key); err != nil {
			return nil, err
		}
	}
	tables, err := inv.Accounts.Tables(b.static.Connection)
	if err != nil {
		return nil, err
	}
	entity, found, err := tables.Get(ctx, b.static.TableName, partitionKey, rowKey)
	if err != nil {
		return nil, err
	}
	p := &entityProvider{binding: b, tables: tables, partitionKey: partitionKey, rowKey: rowKey}
	if !found {
		if b.typ.Kind() == reflect.Ptr && b.typ != entityType {
			p.value = reflect.New(b.typ.Elem()).Interface()
		}
		return p, nil
	}
	if p.value, err = b.fromEntity(entity); err != nil {
		return nil, err
	}
	p.original, err = codec.Marshal(entity.Properties)
	return p, err
}

func (b *entityBinding) fromEntity(entity *storage.Entity) (any, error) {
	switch b.typ {
	case entityType:
		return entity, nil
	case propertiesType:
		return entity.Properties, nil
	}
	fields := make(map[string]any, len(entity.Properties)+3)
	for name, value := range entity.Properties {
		fields[name] = value
	}
	fields[partitionKeyField] = entity.PartitionKey
	fields[rowKeyField] = entity.RowKey
	fields[timestampField] = codec.At(entity.Timestamp)
	data, err := codec.Marshal(fields)
	if err != nil {
		return nil, err
	}
	target := b.typ
	if target.Kind() == reflect.Ptr {
		target = target.Elem()
	}
	v := reflect.New(target)
	if err := codec.Unmarshal(data, v.Interface(), b.codec); err != nil {
		return nil, err
	}
	if b.typ.Kind() == reflect.Ptr {
		return v.Interface(), nil
	}
	return v.Elem().Interface(), nil
}

func (p *entityProvider) Type() reflect.Type   { return p.binding.typ }
func (p *entityProvider) Value() (any, error)  { return p.value, nil }
func (p *entityProvider) InvokeString() string { return p.partitionKey + "/" + p.rowKey }

func (p *entityProvider) Capabilities() bindings.Capability {
	if p.binding.typ.Kind() == reflect.Ptr || p.binding.typ == propertiesType {
		return bindings.CanRead | bindings.CanWrite
	}
	return bindings.CanRead
}

// SetValue stores the entity when its properties changed.
// The keys of the binding always win over keys in the value.
func (p *entityProvider) SetValue(ctx context.Context, value any) error {
	properties, err := p.properties(value)
	if err != nil || properties == nil {
		return err
	}
	encoded, err := codec.Marshal(properties)
	if err != nil {
		return err
	}
	if p.original != nil && bytes.Equal(encoded, p.original) {
		return nil
	}
	return p.tables.Upsert(ctx, p.binding.static.TableName, &storage.Entity{
		PartitionKey: p.partitionKey,
		RowKey:       p.rowKey,
		Properties:   properties,
	})
}

func (p *entityProvider) properties(value any) (map[string]any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *storage.Entity:
		if v == nil {
			return nil, nil
		}
		return v.Properties, nil
	case map[string]any:
		return v, nil
	}
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Ptr && rv.IsNil() {
		return nil, nil
	}
	data, err := codec.Marshal(value, p.binding.codec)
	if err != nil {
		return nil, err
	}
	var properties map[string]any
	if err := codec.Unmarshal(data, &properties, p.binding.codec); err != nil {
		return nil, err
	}
	for name := range properties {
		if reserved(name) {
			delete(properties, name)
		}
	}
	return properties, nil
}

// reserved reports the entity system fields in any key casing.
func reserved(name string) bool {
	return strings.EqualFold(name, partitionKeyField) ||
		strings.EqualFold(name, rowKeyField) ||
		strings.EqualFold(name, timestampField)
}

var (
	// TableType is the parameter type bound to a whole table.
	TableType = reflect.TypeFor[*Table]()

	entityType     = reflect.TypeFor[*storage.Entity]()
	propertiesType = reflect.TypeFor[map[string]any]()
)
