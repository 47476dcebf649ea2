/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"fmt"
	"sync"
)

type loadCall[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// loadGroup lets only one load per key run at a time; the other callers wait for its result.
type loadGroup[K comparable, V any] struct {
	mu    sync.Mutex
	calls map[K]*loadCall[V]
}

func (g *loadGroup[K, V]) do(key K, fn func() (V, error)) (V, error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[K]*loadCall[V])
	}
	if call, ok := g.calls[key]; ok {
		g.mu.Unlock()
		<-call.done
		return call.val, call.err
	}
	call := &loadCall[V]{done: make(chan struct{})}
	g.calls[key] = call
	g.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			call.err = fmt.Errorf("load panicked: %v", p)
			g.finish(key, call)
			panic(p)
		}
		g.finish(key, call)
	}()
	call.val, call.err = fn()
	return call.val, call.err
}

func (g *loadGroup[K, V]) finish(key K, call *loadCall[V]) {
	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
	close(call.done)
}
