package tracer

import "sync"

var global struct {
	mu        sync.Mutex
	tracer    *Tracer
	callbacks []func(t *Tracer)
}

// Install registers the process wide tracer, only the first call succeeds.
func Install(t *Tracer) bool {

	if t == nil {
		return false
	}

	global.mu.Lock()
	if global.tracer != nil {
		global.mu.Unlock()
		return false
	}
	global.tracer = t
	callbacks := global.callbacks
	global.callbacks = nil
	global.mu.Unlock()

	for _, cb := range callbacks {
		cb(t)
	}
	return true
}

// OnInstall runs cb once a tracer is installed, right away when it already is.
func OnInstall(cb func(t *Tracer)) {

	if cb == nil {
		return
	}

	global.mu.Lock()
	t := global.tracer
	if t == nil {
		global.callbacks = append(global.callbacks, cb)
	}
	global.mu.Unlock()

	if t != nil {
		cb(t)
	}
}

func Global() *Tracer {

	global.mu.Lock()
	defer global.mu.Unlock()
	return global.tracer
}
