// Package testhelpers provides shared test utilities.
package testhelpers

import (
	"github.com/jonesrussell/curation-engine/internal/logger"
)

// NewTestLogger creates a logger suitable for testing. Output is discarded so
// test runs stay quiet.
func NewTestLogger() logger.Logger {
	return logger.Nop()
}
