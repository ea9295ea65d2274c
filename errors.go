package amd

import (
	"errors"
)

// Loader errors
var (
	// Definition errors
	ErrInvalidIdentifier      = errors.New("invalid module identifier")
	ErrDuplicateDefinition    = errors.New("module has already been defined")
	ErrUnrecognizedDependency = errors.New("unrecognized dependency")
	ErrInvalidFactory         = errors.New("invalid module factory")
	ErrNoDefinition           = errors.New("script did not define a module")

	// Import errors
	ErrFetchFailed    = errors.New("failed to load script")
	ErrFetchTimeout   = errors.New("script load timed out")
	ErrFactoryFault   = errors.New("module factory failed")
	ErrNotExported    = errors.New("module has not been exported into context")
	ErrScriptNotFound = errors.New("script not found")

	// Resource errors
	ErrInvalidResource = errors.New("expected a resource of the form 'module-id.extension'")
	ErrInvalidDocument = errors.New("invalid module document")

	// Signal errors
	ErrDoubleResolution = errors.New("cannot resolve a signal that is already resolved")

	// Loader lifecycle errors
	ErrLoaderClosed = errors.New("loader is closed")
	ErrMissingMain  = errors.New("bootstrap document does not name a main module")
)
