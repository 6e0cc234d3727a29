package bindings

import (
	"sync"

	"github.com/hashicorp/go-multierror"
)

type (
	// Disposable releases resources held during an invocation.
	Disposable interface {
		Dispose() error
	}
	DisposableFunc func() error

	// Scope owns the disposables of one invocation.
	Scope struct {
		lock        sync.Mutex
		disposables []Disposable
		disposed    bool
	}
)

func (f DisposableFunc) Dispose() error {
	return f()
}

// Add registers d for disposal.  Adding to a disposed scope
// disposes d immediately.
func (s *Scope) Add(d Disposable) error {
	if d == nil {
		return nil
	}
	s.lock.Lock()
	if s.disposed {
		s.lock.Unlock()
		return d.Dispose()
	}
	s.disposables = append(s.disposables, d)
	s.lock.Unlock()
	return nil
}

// Len returns the number of pending disposables.
func (s *Scope) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.disposables)
}

// Dispose disposes every member in reverse order of registration.
// All members are disposed even when some fail.
func (s *Scope) Dispose() error {
	s.lock.Lock()
	disposables := s.disposables
	s.disposables = nil
	s.disposed = true
	s.lock.Unlock()

	var errs *multierror.Error
	for i := len(disposables) - 1; i >= 0; i-- {
		if err := dispose(disposables[i]); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func dispose(d Disposable) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{r}
		}
	}()
	return d.Dispose()
}
