// Package backend provides the public API for embedding the prediction backend.
// This is the stable API for external consumers.
package backend

import (
	"github.com/payallenka/isl/internal/runtime"
)

// Backend is the main entry point for running the prediction backend.
// See internal/runtime.Backend for full documentation.
type Backend = runtime.Backend

// Option is a functional option for configuring a Backend.
type Option = runtime.Option

// New creates a new Backend with the given options.
// Example:
//
//	b, err := backend.New(
//	    backend.WithFileConfig("config.yaml"),
//	    backend.WithSQLite("./data/isl.db"),
//	)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithFileConfig = runtime.WithFileConfig

	// Storage
	WithSQLite        = runtime.WithSQLite
	WithPostgres      = runtime.WithPostgres
	WithMemoryStorage = runtime.WithMemoryStorage

	// Advanced options
	WithLogger          = runtime.WithLogger
	WithConfigProvider  = runtime.WithConfigProvider
	WithStorageProvider = runtime.WithStorageProvider
)
