// Package errors - build hooks
package errors

import (
	"sync"
	"sync/atomic"
)

// Hook receives every EnhancedError built while it is registered.
// Hooks must be fast and must not build new enhanced errors.
type Hook func(ee *EnhancedError)

type registeredHook struct {
	id   uint64
	hook Hook
}

var (
	hooksMu     sync.RWMutex
	errorHooks  []registeredHook
	nextHookID  uint64
	hookPresent atomic.Bool
)

// AddErrorHook registers a hook that is invoked from Build and returns a
// function that unregisters exactly that hook. The returned function is
// safe to call more than once.
// Metrics collectors use this to count errors by category.
func AddErrorHook(hook Hook) (remove func()) {
	if hook == nil {
		return func() {}
	}
	hooksMu.Lock()
	defer hooksMu.Unlock()
	nextHookID++
	id := nextHookID
	errorHooks = append(errorHooks, registeredHook{id: id, hook: hook})
	hookPresent.Store(true)

	var once sync.Once
	return func() {
		once.Do(func() { removeErrorHook(id) })
	}
}

func removeErrorHook(id uint64) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	kept := errorHooks[:0:0]
	for _, h := range errorHooks {
		if h.id != id {
			kept = append(kept, h)
		}
	}
	errorHooks = kept
	hookPresent.Store(len(errorHooks) > 0)
}

func hasHooks() bool {
	return hookPresent.Load()
}

func runHooks(ee *EnhancedError) {
	hooksMu.RLock()
	hooks := make([]Hook, len(errorHooks))
	for i, h := range errorHooks {
		hooks[i] = h.hook
	}
	hooksMu.RUnlock()

	for _, hook := range hooks {
		hook(ee)
	}
}
