package config

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entrans "github.com/go-playground/validator/v10/translations/en"
)

type (
	// Factory of configurations using assigned Provider.
	// Configurations are cached by type and path.
	Factory struct {
		Provider
		lock  sync.Mutex
		cache atomic.Pointer[map[loadKey]any]
	}

	loadKey struct {
		typ  reflect.Type
		path string
		flat bool
	}
)

var validate, translator = newValidator()

func newValidator() (*validator.Validate, ut.Translator) {
	v := validator.New()
	english := en.New()
	trans, _ := ut.New(english, english).GetTranslator("en")
	if err := entrans.RegisterDefaultTranslations(v, trans); err != nil {
		panic(err)
	}
	return v, trans
}

// translate renders validation errors as english sentences.
func translate(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}
	messages := make([]string, 0, len(errs))
	for _, fe := range errs {
		messages = append(messages, fe.Translate(translator))
	}
	return errors.New(strings.Join(messages, "; "))
}

// NewFactory creates a Factory over provider.
func NewFactory(provider Provider) *Factory {
	if provider == nil {
		panic("provider cannot be nil")
	}
	return &Factory{Provider: provider}
}

// NewConfiguration returns a configuration of typ populated from
// path of the Provider.  A configuration with a Defaults method has
// its defaults applied.  It is then validated by its struct tags and
// by its Validate method, if any.
func (f *Factory) NewConfiguration(typ reflect.Type, path string, flat bool) (any, error) {
	// Check cache first
	key := loadKey{typ: typ, path: path, flat: flat}
	if cache := f.cache.Load(); cache != nil {
		if o, ok := (*cache)[key]; ok {
			return o, nil
		}
	}

	// Use copy-on-write idiom since reads should be more frequent than writes.
	f.lock.Lock()
	defer f.lock.Unlock()

	var cc map[loadKey]any
	cache := f.cache.Load()
	if cache != nil {
		if o, ok := (*cache)[key]; ok {
			return o, nil
		}
		cc = maps.Clone(*cache)
	} else {
		cc = make(map[loadKey]any, 1)
	}

	ptr := typ.Kind() == reflect.Ptr
	var out any
	if ptr {
		out = reflect.New(typ.Elem()).Interface()
	} else {
		out = reflect.New(typ).Interface()
	}
	if err := f.Unmarshal(path, flat, out); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if d, ok := out.(interface {
		Defaults() error
	}); ok {
		if err := d.Defaults(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if reflect.TypeOf(out).Elem().Kind() == reflect.Struct {
		if err := validate.Struct(out); err != nil {
			return nil, fmt.Errorf("config: %w", translate(err))
		}
	}
	if v, ok := out.(interface {
		Validate() error
	}); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if !ptr {
		out = reflect.ValueOf(out).Elem().Interface()
	}

	cc[key] = out
	f.cache.Store(&cc)
	return out, nil
}

// Get returns the configuration of type T at path.
func Get[T any](f *Factory, path string) (T, error) {
	var zero T
	out, err := f.NewConfiguration(reflect.TypeFor[T](), path, false)
	if err != nil {
		return zero, err
	}
	return out.(T), nil
}
