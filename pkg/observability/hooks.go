// Package observability provides hooks for metrics, tracing, and logging.
//
// Instrumentation is optional and carries no backend dependency. Consumers
// register hooks at startup and the conversion pipeline reports to them.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetPipelineHooks(&myPipelineHooks{})
//	    observability.SetOutputHooks(&myOutputHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Pipeline().OnReadStart(ctx, path)
//	// ... read the lock file ...
//	observability.Pipeline().OnReadComplete(ctx, path, packageCount, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Pipeline Hooks
// =============================================================================

// PipelineHooks receives events from the lock-to-sources pipeline.
type PipelineHooks interface {
	// Read events
	OnReadStart(ctx context.Context, path string)
	OnReadComplete(ctx context.Context, path string, packageCount int, duration time.Duration, err error)

	// Classify events
	OnClassifyStart(ctx context.Context, packageCount, jobs int)
	OnClassifyComplete(ctx context.Context, sourceCount int, duration time.Duration, err error)
}

// =============================================================================
// Output Hooks
// =============================================================================

// OutputHooks receives events when a source manifest is written.
type OutputHooks interface {
	// OnWrite records a written manifest.
	OnWrite(ctx context.Context, format string, size int)

	// OnUnchanged records a --check run whose output matched the file on disk.
	OnUnchanged(ctx context.Context, path string)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopPipelineHooks is a no-op implementation of PipelineHooks.
type NoopPipelineHooks struct{}

func (NoopPipelineHooks) OnReadStart(context.Context, string) {}
func (NoopPipelineHooks) OnReadComplete(context.Context, string, int, time.Duration, error) {
}
func (NoopPipelineHooks) OnClassifyStart(context.Context, int, int)                     {}
func (NoopPipelineHooks) OnClassifyComplete(context.Context, int, time.Duration, error) {}

// NoopOutputHooks is a no-op implementation of OutputHooks.
type NoopOutputHooks struct{}

func (NoopOutputHooks) OnWrite(context.Context, string, int) {}
func (NoopOutputHooks) OnUnchanged(context.Context, string)  {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	pipelineHooks PipelineHooks = NoopPipelineHooks{}
	outputHooks   OutputHooks   = NoopOutputHooks{}
	hooksMu       sync.RWMutex
)

// SetPipelineHooks registers custom pipeline hooks.
// This should be called once at application startup before any conversion.
func SetPipelineHooks(h PipelineHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		pipelineHooks = h
	}
}

// SetOutputHooks registers custom output hooks.
func SetOutputHooks(h OutputHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		outputHooks = h
	}
}

// Pipeline returns the registered pipeline hooks.
func Pipeline() PipelineHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return pipelineHooks
}

// Output returns the registered output hooks.
func Output() OutputHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return outputHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	pipelineHooks = NoopPipelineHooks{}
	outputHooks = NoopOutputHooks{}
}
