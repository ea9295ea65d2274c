package feeders

import (
	"errors"
	"fmt"
)

// Env feeder errors
var (
	ErrEnvInvalidStructure     = errors.New("env: invalid structure")
	ErrEnvEmptyPrefixAndSuffix = errors.New("env: prefix or suffix cannot be empty")
	ErrEnvFieldCannotBeSet     = errors.New("env: field cannot be set")
)

// File feeder errors
var (
	ErrUnsupportedFormat = errors.New("unsupported configuration file format")
	ErrKeyNotTable       = errors.New("configuration key is not a table")
)

func wrapEnvConvertError(name string, err error) error {
	return fmt.Errorf("env %s: %w", name, err)
}
