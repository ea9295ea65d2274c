package feeders

import (
	"encoding"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/golobby/cast"
)

// EnvFeeder fills `env`-tagged fields from environment variables named
// PREFIX_TAG_SUFFIX. Nested structs are walked with the same affixes.
type EnvFeeder struct {
	Prefix string
	Suffix string
}

// NewEnvFeeder creates an EnvFeeder for the given affixes.
func NewEnvFeeder(prefix, suffix string) EnvFeeder {
	return EnvFeeder{Prefix: prefix, Suffix: suffix}
}

// Feed implements Feeder.
func (f EnvFeeder) Feed(structure any) error {
	t := reflect.TypeOf(structure)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return ErrEnvInvalidStructure
	}
	if f.Prefix == "" && f.Suffix == "" {
		return ErrEnvEmptyPrefixAndSuffix
	}
	return f.fillStruct(reflect.ValueOf(structure).Elem())
}

func (f EnvFeeder) fillStruct(rv reflect.Value) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)
		if !fieldType.IsExported() {
			continue
		}

		if tag, ok := fieldType.Tag.Lookup("env"); ok {
			if err := f.setFromEnv(field, tag); err != nil {
				return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
			}
			continue
		}

		switch {
		case field.Kind() == reflect.Struct:
			if err := f.fillStruct(field); err != nil {
				return err
			}
		case field.Kind() == reflect.Pointer && !field.IsNil() && field.Elem().Kind() == reflect.Struct:
			if err := f.fillStruct(field.Elem()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f EnvFeeder) envName(tag string) string {
	name := strings.ToUpper(tag)
	if f.Prefix != "" {
		name = strings.ToUpper(f.Prefix) + "_" + name
	}
	if f.Suffix != "" {
		name = name + "_" + strings.ToUpper(f.Suffix)
	}
	return name
}

func (f EnvFeeder) setFromEnv(field reflect.Value, tag string) error {
	name := f.envName(tag)
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return nil
	}
	if err := setFieldValue(field, value); err != nil {
		return wrapEnvConvertError(name, err)
	}
	return nil
}

// setFieldValue prefers encoding.TextUnmarshaler and falls back to
// github.com/golobby/cast for the field's underlying kind.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return ErrEnvFieldCannotBeSet
	}
	if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return u.UnmarshalText([]byte(value))
	}

	converted, err := cast.FromType(value, field.Type())
	if err != nil {
		return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
	}
	v := reflect.ValueOf(converted)
	if !v.Type().AssignableTo(field.Type()) {
		if !v.Type().ConvertibleTo(field.Type()) {
			return fmt.Errorf("cannot assign %v to %v", v.Type(), field.Type())
		}
		v = v.Convert(field.Type())
	}
	field.Set(v)
	return nil
}
