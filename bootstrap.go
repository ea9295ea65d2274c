package amd

import (
	"context"
	"fmt"
	"reflect"

	"github.com/golobby/cast"
	"github.com/golobby/config/v3"
)

// Bootstrap is the initialization document: a configuration for the
// default context and the main module to require.
type Bootstrap struct {
	Config ConfigDocument `json:"config" yaml:"config" toml:"config"`
	Main   string         `json:"main" yaml:"main" toml:"main" env:"MAIN"`
	Order  string         `json:"order" yaml:"order" toml:"order" env:"ORDER" default:"fifo"`
}

// LoadBootstrap feeds a Bootstrap from feeders, in order, so later
// feeders override earlier ones. Defaults apply to fields left empty.
func LoadBootstrap(feeders ...config.Feeder) (Bootstrap, error) {
	var b Bootstrap
	c := config.New()
	c.AddFeeder(feeders...)
	c.AddStruct(&b)
	if err := c.Feed(); err != nil {
		return Bootstrap{}, fmt.Errorf("failed to feed bootstrap: %w", err)
	}
	if err := applyDefaults(&b); err != nil {
		return Bootstrap{}, err
	}
	return b, nil
}

// applyDefaults sets `default`-tagged fields that are still zero.
func applyDefaults(target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("defaults: expected a pointer to struct, got %T", target)
	}
	return structDefaults(v.Elem())
}

func structDefaults(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct {
			if err := structDefaults(field); err != nil {
				return err
			}
			continue
		}
		def, ok := t.Field(i).Tag.Lookup("default")
		if !ok || !field.IsZero() {
			continue
		}
		converted, err := cast.FromType(def, field.Type())
		if err != nil {
			return fmt.Errorf("failed to set default value for %s: %w", t.Field(i).Name, err)
		}
		field.Set(reflect.ValueOf(converted).Convert(field.Type()))
	}
	return nil
}

// Boot configures the default context from b and requires its main
// module. It must be called on the scheduler thread.
func (l *Loader) Boot(b Bootstrap, onLoad func(main any), onError func(error)) error {
	if b.Main == "" {
		return ErrMissingMain
	}
	order, err := ParseDequeueOrder(b.Order)
	if err != nil {
		return err
	}
	l.queue.order = order
	l.defaultCtx.Configure(NewConfig(b.Config))

	l.logger.Info("Bootstrapping", "main", b.Main, "baseUrl", l.defaultCtx.config.BaseURL, "order", order)
	l.emit(EventTypeLoaderBootstrap, l.defaultCtx, b.Main, "", nil)

	return l.defaultCtx.Require().Load([]string{b.Main}, func(args ...any) {
		if onLoad != nil {
			onLoad(args[0])
		}
	}, onError)
}

// Run boots b and waits for the main module's value. It must not be
// called from the scheduler thread.
func (l *Loader) Run(ctx context.Context, b Bootstrap) (any, error) {
	type result struct {
		value any
		err   error
	}
	ch := make(chan result, 1)
	send := func(r result) {
		select {
		case ch <- r:
		default:
		}
	}

	if err := l.Do(ctx, func() {
		err := l.Boot(b, func(v any) {
			send(result{value: v})
		}, func(err error) {
			send(result{err: err})
		})
		if err != nil {
			send(result{err: err})
		}
	}); err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("boot %s: %w", b.Main, ctx.Err())
	}
}
