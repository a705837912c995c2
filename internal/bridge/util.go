package bridge

import "sync/atomic"

// boolFlag is a cross-goroutine-visible boolean signal. It is used for the
// overlay flag, which is set by the mutation thread handling ui_overlay
// and read through Dispatcher.Overlay from any goroutine.
type boolFlag struct {
	v atomic.Bool
}

func (f *boolFlag) set(val bool) { f.v.Store(val) }
func (f *boolFlag) get() bool    { return f.v.Load() }
