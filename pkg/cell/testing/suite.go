package testing

import (
	"context"
	"testing"

	"github.com/marmos91/cellfs/pkg/cell"
)

// BackendTestSuite is a comprehensive test suite for cell.Backend
// implementations. It tests the interface contract, not implementation
// details, making it reusable across memory, badger and s3 backends.
//
// Usage:
//
//	func TestMyBackend(t *testing.T) {
//	    suite := &celltesting.BackendTestSuite{
//	        NewBackend: func(t *testing.T) cell.Backend {
//	            return mybackend.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type BackendTestSuite struct {
	// NewBackend creates a fresh, empty backend for each test. The suite
	// closes it when the test finishes.
	NewBackend func(t *testing.T) cell.Backend
}

// Run executes all tests in the suite.
func (suite *BackendTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("Atomicity", suite.RunAtomicityTests)
	t.Run("Range", suite.RunRangeTests)
}

func (suite *BackendTestSuite) newBackend(t *testing.T) cell.Backend {
	t.Helper()
	b := suite.NewBackend(t)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}

// addr builds a deterministic test address whose last byte is n.
func addr(n byte) cell.Address {
	var a cell.Address
	a[0] = 0xce
	a[cell.WordSize-1] = n
	return a
}

// word builds a test word filled with b.
func word(b byte) cell.Word {
	var w cell.Word
	for i := range w {
		w[i] = b
	}
	return w
}
