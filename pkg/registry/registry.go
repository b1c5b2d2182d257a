// Package registry resolves module names to addresses so cross-module
// references stay current without redeploying. The upstream resolver is
// optional and may be unavailable at any time; resolution then falls back
// to the last known address and never blocks.
package registry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// ErrModuleNotFound indicates a module with no known address.
var ErrModuleNotFound = errors.New("module not found")

// Resolver is the upstream service registry collaborator.
type Resolver interface {
	Resolve(module string) (string, error)
}

// Registry caches module addresses, preferring fresh answers from the
// upstream resolver and falling back to the last known address when the
// upstream fails or is not configured.
type Registry struct {
	mutex    sync.RWMutex
	upstream Resolver // nil when no upstream is configured
	known    map[string]string
	logger   *slog.Logger
}

// NewRegistry creates a registry seeded with the given static addresses.
// upstream may be nil.
func NewRegistry(upstream Resolver, static map[string]string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	known := make(map[string]string, len(static))
	for module, address := range static {
		known[module] = address
	}
	return &Registry{
		upstream: upstream,
		known:    known,
		logger:   logger,
	}
}

// Resolve returns the address for a module. A fresh upstream answer
// refreshes the cache; an upstream failure falls back to the last known
// address.
func (r *Registry) Resolve(module string) (string, error) {
	if r.upstream != nil {
		if address, err := r.upstream.Resolve(module); err == nil && address != "" {
			r.mutex.Lock()
			r.known[module] = address
			r.mutex.Unlock()
			return address, nil
		} else if err != nil {
			r.logger.Warn("upstream resolve failed, using last known address",
				"module", module, "error", err)
		}
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if address, exists := r.known[module]; exists {
		return address, nil
	}
	return "", fmt.Errorf("%w: %s", ErrModuleNotFound, module)
}

// Register records a module address directly.
func (r *Registry) Register(module, address string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.known[module] = address
}

// Known returns a snapshot of the known module addresses.
func (r *Registry) Known() map[string]string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make(map[string]string, len(r.known))
	for module, address := range r.known {
		out[module] = address
	}
	return out
}
