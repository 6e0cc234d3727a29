// Package timers binds the timer trigger.
package timers

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/jobhost/bindings"
	"github.com/jobhost/bindings/bindingdata"
	"github.com/jobhost/bindings/metadata"
	"github.com/jobhost/bindings/static"
)

type (
	// Provider creates timer trigger bindings.
	Provider struct {
		// Upcoming is the number of next occurrences reported.
		// It defaults to 5.
		Upcoming int
	}

	// TimerInfo describes the timer tick that started a function.
	TimerInfo struct {
		Schedule  static.Schedule
		Fired     time.Time
		Next      []time.Time
		IsPastDue bool
	}

	// Tick is the trigger value of a timer.
	Tick struct {
		Scheduled time.Time
		Fired     time.Time
	}

	binding struct {
		static   *static.Timer
		typ      reflect.Type
		upcoming int
	}
)

// TimerInfoType is the parameter type bound to a timer trigger.
var TimerInfoType = reflect.TypeFor[*TimerInfo]()

func (p *Provider) Create(param metadata.Parameter, sb static.Binding) (bindings.Binding, error) {
	timer, ok := sb.(*static.Timer)
	if !ok {
		return nil, nil
	}
	typ := param.Type
	if typ == nil {
		typ = TimerInfoType
	}
	if typ != TimerInfoType && typ != timeType {
		return nil, fmt.Errorf("timer %s cannot bind to %v", timer, typ)
	}
	upcoming := p.Upcoming
	if upcoming <= 0 {
		upcoming = 5
	}
	return &binding{timer, typ, upcoming}, nil
}

// FormatNext describes the upcoming occurrences one per line.
func (t *TimerInfo) FormatNext() string {
	var b strings.Builder
	b.WriteString("The next occurrences of the schedule will be:")
	for _, next := range t.Next {
		b.WriteByte('\n')
		b.WriteString(next.Format(time.RFC3339))
	}
	return b.String()
}

func (b *binding) Static() static.Binding {
	return b.static
}

func (b *binding) Bind(ctx context.Context, inv *bindings.Invocation, value any) (bindings.ValueProvider, error) {
	provider, _, err := b.BindTrigger(ctx, inv, value)
	return provider, err
}

func (b *binding) BindFromData(context.Context, *bindings.Invocation) (bindings.ValueProvider, error) {
	return nil, bindings.ErrNoTriggerValue
}

// BindTrigger binds a Tick or the time the timer fired.
// A tick fired after its next scheduled occurrence is past due.
func (b *binding) BindTrigger(
	_     context.Context,
	_     *bindings.Invocation,
	value any,
) (bindings.ValueProvider, bindingdata.Data, error) {
	var tick Tick
	switch v := value.(type) {
	case Tick:
		tick = v
	case *Tick:
		if v == nil {
			return nil, nil, fmt.Errorf("expected a timer tick, got %T", value)
		}
		tick = *v
	case time.Time:
		tick = Tick{Fired: v}
	default:
		return nil, nil, fmt.Errorf("expected a timer tick, got %T", value)
	}
	if tick.Fired.IsZero() {
		tick.Fired = time.Now()
	}
	info := &TimerInfo{
		Schedule: b.static.Schedule,
		Fired:    tick.Fired,
		Next:     static.Occurrences(b.static.Schedule, tick.Fired, b.upcoming),
	}
	if !tick.Scheduled.IsZero() {
		next := b.static.Schedule.Next(tick.Scheduled)
		info.IsPastDue = !next.IsZero() && tick.Fired.After(next)
	}
	var v any = info
	if b.typ == timeType {
		v = info.Fired
	}
	invoke := fmt.Sprintf("Timer fired at %s", info.Fired.Format(time.RFC3339))
	return &bindings.Constant{Typ: b.typ, Val: v, Invoke: invoke}, nil, nil
}

var timeType = reflect.TypeFor[time.Time]()
