// Copyright (c) Microsoft Corporation. All rights reserved.

package concurrency

import (
	"sync"
)

// OnceValue is a single-fire, write-once signal carrying a value of type T.
// Exactly one goroutine may fire it; any number of goroutines can observe it,
// either by blocking on Done() or by polling TryResult().
// Observers must tolerate the signal never firing: Done() simply never closes.
type OnceValue[T any] struct {
	lock  sync.Mutex
	done  chan struct{}
	fired bool
	value T
}

func NewOnceValue[T any]() *OnceValue[T] {
	return &OnceValue[T]{
		done: make(chan struct{}),
	}
}

// Fires the signal with the given value. Firing more than once is a programming
// error and panics.
func (ov *OnceValue[T]) Fire(val T) {
	ov.lock.Lock()
	defer ov.lock.Unlock()

	if ov.fired {
		panic("OnceValue fired more than once")
	}

	ov.fired = true
	ov.value = val
	close(ov.done)
}

// Returns the channel that will be closed when the signal fires.
func (ov *OnceValue[T]) Done() <-chan struct{} {
	return ov.done
}

// Waits for the signal to fire and returns the value.
func (ov *OnceValue[T]) Result() T {
	<-ov.done // Channel read establishes happens-before relationship for value read.
	return ov.value
}

// Returns the value and true if the signal has fired, otherwise the zero value and false.
// Never blocks.
func (ov *OnceValue[T]) TryResult() (T, bool) {
	ov.lock.Lock()
	defer ov.lock.Unlock()

	return ov.value, ov.fired
}

// Returns true if the signal has fired, otherwise false.
func (ov *OnceValue[T]) Fired() bool {
	ov.lock.Lock()
	defer ov.lock.Unlock()

	return ov.fired
}
