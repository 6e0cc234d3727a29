// Package blobs binds parameters to blobs.
package blobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jobhost/bindings"
	"github.com/jobhost/bindings/attrs"
	"github.com/jobhost/bindings/bindingdata"
	"github.com/jobhost/bindings/blobpath"
	"github.com/jobhost/bindings/codec"
	"github.com/jobhost/bindings/metadata"
	"github.com/jobhost/bindings/static"
	"github.com/jobhost/bindings/storage"
)

type (
	// Provider creates the runtime bindings of blobs.
	// Written blobs are leased for LeaseDuration, or until the
	// invocation ends when it is not positive.
	Provider struct {
		Codec         codec.Options
		LeaseDuration time.Duration
	}

	// ModeError reports a parameter type the blob access cannot bind.
	ModeError struct {
		Type   reflect.Type
		Access attrs.Access
	}

	mode uint8

	binding struct {
		static *static.Blob
		typ    reflect.Type
		mode   mode
		codec  codec.Options
		lease  time.Duration
	}

	lease struct {
		ctx    context.Context
		leaser storage.Leaser
		path   blobpath.Path
		id     string
	}

	valueProvider struct {
		typ   reflect.Type
		path  blobpath.Path
		value any
	}

	readerProvider struct {
		inv    *bindings.Invocation
		path   blobpath.Path
		reader *Reader
	}

	writerProvider struct {
		path   blobpath.Path
		writer *Writer
		lease  *lease
	}

	outProvider struct {
		binding *binding
		inv     *bindings.Invocation
		blobs   storage.Blobs
		path    blobpath.Path
		value   any
		lease   *lease
	}
)

const (
	modeText mode = iota
	modeBytes
	modeReader
	modeWriter
	modeObject
	modeOut
)

// ErrNoMatch reports a blob that does not match the trigger path.
var ErrNoMatch = errors.New("blob does not match the trigger path")

func (e *ModeError) Error() string {
	return fmt.Sprintf("cannot bind %v to a blob with %s access", e.Type, e.Access)
}

func (p *Provider) Create(param metadata.Parameter, sb static.Binding) (bindings.Binding, error) {
	blob, ok := sb.(*static.Blob)
	if !ok {
		return nil, nil
	}
	typ := param.Type
	if typ == nil {
		typ = stringType
	}
	m, err := modeOf(typ, blob.Access)
	if err != nil {
		return nil, err
	}
	if blob.Trigger && (m == modeWriter || m == modeOut) {
		return nil, &ModeError{typ, blob.Access}
	}
	return &binding{blob, typ, m, p.Codec, p.LeaseDuration}, nil
}

func modeOf(typ reflect.Type, access attrs.Access) (mode, error) {
	write := access != attrs.AccessRead
	switch {
	case typ == readerType || typ == readCloserType:
		if access == attrs.AccessRead {
			return modeReader, nil
		}
	case typ == writerType || typ == writeCloserType:
		if write {
			return modeWriter, nil
		}
	case typ.Kind() == reflect.Ptr:
		if write {
			return modeOut, nil
		}
		return modeObject, nil
	case access == attrs.AccessRead:
		switch {
		case typ.Kind() == reflect.String:
			return modeText, nil
		case typ == bytesType:
			return modeBytes, nil
		case typ.Kind() == reflect.Interface && typ.NumMethod() > 0:
		default:
			return modeObject, nil
		}
	}
	return 0, &ModeError{typ, access}
}

func (b *binding) Static() static.Binding {
	return b.static
}

// Bind binds the blob at the supplied path.
func (b *binding) Bind(ctx context.Context, inv *bindings.Invocation, value any) (bindings.ValueProvider, error) {
	path, err := pathOf(value)
	if err != nil {
		return nil, err
	}
	return b.bind(ctx, inv, path)
}

// BindFromData binds the blob at the path resolved from binding data.
func (b *binding) BindFromData(ctx context.Context, inv *bindings.Invocation) (bindings.ValueProvider, error) {
	path, err := b.static.Path.Apply(inv.Data)
	if err != nil {
		return nil, err
	}
	return b.bind(ctx, inv, path)
}

// BindTrigger binds the blob that started the function and captures
// the placeholders of the trigger path as binding data.
func (b *binding) BindTrigger(
	ctx   context.Context,
	inv   *bindings.Invocation,
	value any,
) (bindings.ValueProvider, bindingdata.Data, error) {
	path, err := pathOf(value)
	if err != nil {
		return nil, nil, err
	}
	values, ok := b.static.Pattern.Match(path.String())
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s, %s", ErrNoMatch, path, b.static.Path)
	}
	entries := make(map[string]any, len(values)+1)
	for name, v := range values {
		entries[name] = v
	}
	entries[static.BlobTriggerData] = path.String()
	provider, err := b.bind(ctx, inv, path)
	if err != nil {
		return nil, nil, err
	}
	return provider, bindingdata.New(entries), nil
}

func (b *binding) bind(ctx context.Context, inv *bindings.Invocation, path blobpath.Path) (bindings.ValueProvider, error) {
	blobs, err := inv.Accounts.Blobs(b.static.Connection)
	if err != nil {
		return nil, err
	}
	switch b.mode {
	case modeText:
		text, found, err := blobs.ReadText(ctx, path)
		if err != nil || !found {
			return &valueProvider{b.typ, path, nil}, err
		}
		value, err := bindingdata.ChangeType(text, b.typ)
		if err != nil {
			return nil, err
		}
		return &valueProvider{b.typ, path, value}, nil
	case modeBytes:
		data, found, err := readAll(ctx, blobs, path)
		if err != nil || !found {
			return &valueProvider{b.typ, path, nil}, err
		}
		inv.Observer().Transferred("read", int64(len(data)))
		return &valueProvider{b.typ, path, data}, nil
	case modeObject:
		value, err := b.decode(ctx, blobs, path)
		if err != nil {
			return nil, err
		}
		return &valueProvider{b.typ, path, value}, nil
	case modeReader:
		r, err := blobs.OpenRead(ctx, path)
		if errors.Is(err, storage.ErrNotFound) {
			return &readerProvider{inv, path, nil}, nil
		}
		if err != nil {
			return nil, err
		}
		return &readerProvider{inv, path, newReader(r)}, nil
	case modeWriter:
		l, err := acquire(ctx, blobs, path, b.lease)
		if err != nil {
			return nil, err
		}
		w, err := blobs.OpenWrite(ctx, path)
		if err != nil {
			return nil, l.abandon(err)
		}
		return &writerProvider{path, newWriter(ctx, inv, path, w), l}, nil
	case modeOut:
		l, err := acquire(ctx, blobs, path, b.lease)
		if err != nil {
			return nil, err
		}
		out := &outProvider{b, inv, blobs, path, reflect.New(b.typ.Elem()).Interface(), l}
		if b.static.Access == attrs.AccessReadWrite {
			if err := out.load(ctx); err != nil {
				return nil, l.abandon(err)
			}
		}
		return out, nil
	}
	return nil, &ModeError{b.typ, b.static.Access}
}

func (b *binding) decode(ctx context.Context, blobs storage.Blobs, path blobpath.Path) (any, error) {
	data, found, err := readAll(ctx, blobs, path)
	if err != nil || !found {
		return nil, err
	}
	target := b.typ
	if target.Kind() == reflect.Ptr {
		target = target.Elem()
	}
	v := reflect.New(target)
	if err := codec.Unmarshal(data, v.Interface(), b.codec); err != nil {
		return nil, fmt.Errorf("blob %s: %w", path, err)
	}
	if b.typ.Kind() == reflect.Ptr {
		return v.Interface(), nil
	}
	return v.Elem().Interface(), nil
}

func (p *valueProvider) Type() reflect.Type                { return p.typ }
func (p *valueProvider) Value() (any, error)               { return p.value, nil }
func (p *valueProvider) InvokeString() string              { return p.path.String() }
func (p *valueProvider) Capabilities() bindings.Capability { return bindings.CanRead }

func (p *readerProvider) Type() reflect.Type {
	return readerType
}

func (p *readerProvider) Value() (any, error) {
	if p.reader == nil {
		return nil, nil
	}
	return p.reader, nil
}

func (p *readerProvider) InvokeString() string {
	return p.path.String()
}

func (p *readerProvider) Capabilities() bindings.Capability {
	if p.reader == nil {
		return bindings.CanRead
	}
	return bindings.CanRead | bindings.CanDispose | bindings.CanWatch
}

func (p *readerProvider) Watcher() bindings.Watcher {
	return p.reader.Counter()
}

func (p *readerProvider) Dispose() error {
	p.inv.Observer().Transferred("read", p.reader.Counter().Bytes())
	return p.reader.Close()
}

func (p *writerProvider) Type() reflect.Type        { return writerType }
func (p *writerProvider) Value() (any, error)       { return p.writer, nil }
func (p *writerProvider) InvokeString() string      { return p.path.String() }
func (p *writerProvider) Watcher() bindings.Watcher { return p.writer.Counter() }

func (p *writerProvider) Capabilities() bindings.Capability {
	return bindings.CanRead | bindings.CanDispose | bindings.CanWatch
}

// Dispose commits the blob and then releases its lease.
func (p *writerProvider) Dispose() error {
	var result *multierror.Error
	if err := p.writer.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := p.lease.release(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (p *outProvider) Type() reflect.Type   { return p.binding.typ }
func (p *outProvider) Value() (any, error)  { return p.value, nil }
func (p *outProvider) InvokeString() string { return p.path.String() }

func (p *outProvider) Capabilities() bindings.Capability {
	caps := bindings.CanWrite
	if p.binding.static.Access == attrs.AccessReadWrite {
		caps |= bindings.CanRead
	}
	if p.lease != nil {
		caps |= bindings.CanDispose
	}
	return caps
}

func (p *outProvider) Dispose() error {
	return p.lease.release()
}

// SetValue writes the value the function left in its argument.
// A nil value writes nothing.
func (p *outProvider) SetValue(ctx context.Context, value any) error {
	rv := reflect.ValueOf(value)
	if value == nil || (rv.Kind() == reflect.Ptr && rv.IsNil()) {
		return nil
	}
	if rv.Kind() != reflect.Ptr {
		return fmt.Errorf("expected %v, got %T", p.binding.typ, value)
	}
	var data []byte
	switch v := rv.Elem().Interface().(type) {
	case string:
		data = []byte(v)
	case []byte:
		if v == nil {
			return nil
		}
		data = v
	default:
		encoded, err := codec.Marshal(v, p.binding.codec)
		if err != nil {
			return err
		}
		data = encoded
	}
	w, err := p.blobs.OpenWrite(ctx, p.path)
	if err != nil {
		return err
	}
	writer := newWriter(ctx, p.inv, p.path, w)
	if _, err = writer.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return writer.Close()
}

func (p *outProvider) load(ctx context.Context) error {
	data, found, err := readAll(ctx, p.blobs, p.path)
	if err != nil || !found {
		return err
	}
	target := reflect.ValueOf(p.value)
	switch target.Elem().Kind() {
	case reflect.String:
		target.Elem().SetString(string(data))
	case reflect.Slice:
		if target.Elem().Type() == bytesType {
			target.Elem().SetBytes(data)
			return nil
		}
		fallthrough
	default:
		return codec.Unmarshal(data, p.value, p.binding.codec)
	}
	return nil
}

// acquire leases path when the blob store supports leases.
// Another holder fails the binding with storage.ErrLeaseAlreadyHeld.
func acquire(ctx context.Context, blobs storage.Blobs, path blobpath.Path, duration time.Duration) (*lease, error) {
	leaser, ok := blobs.(storage.Leaser)
	if !ok {
		return nil, nil
	}
	id, err := leaser.AcquireLease(ctx, path, duration)
	if err != nil {
		return nil, err
	}
	return &lease{context.WithoutCancel(ctx), leaser, path, id}, nil
}

func (l *lease) release() error {
	if l == nil {
		return nil
	}
	return l.leaser.ReleaseLease(l.ctx, l.path, l.id)
}

// abandon releases the lease of a binding that failed with err.
func (l *lease) abandon(err error) error {
	if rerr := l.release(); rerr != nil {
		return multierror.Append(err, rerr)
	}
	return err
}

func pathOf(value any) (blobpath.Path, error) {
	switch v := value.(type) {
	case blobpath.Path:
		return v, nil
	case *blobpath.Path:
		if v != nil {
			return *v, nil
		}
	case string:
		return blobpath.Parse(v)
	}
	return blobpath.Path{}, fmt.Errorf("expected a blob path, got %T", value)
}

func readAll(ctx context.Context, blobs storage.Blobs, path blobpath.Path) ([]byte, bool, error) {
	r, err := blobs.OpenRead(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer r.Close()
	var b bytes.Buffer
	if _, err := io.Copy(&b, r); err != nil {
		return nil, false, err
	}
	return b.Bytes(), true, nil
}

var (
	stringType      = reflect.TypeFor[string]()
	bytesType       = reflect.TypeFor[[]byte]()
	readerType      = reflect.TypeFor[io.Reader]()
	readCloserType  = reflect.TypeFor[io.ReadCloser]()
	writerType      = reflect.TypeFor[io.Writer]()
	writeCloserType = reflect.TypeFor[io.WriteCloser]()
)
