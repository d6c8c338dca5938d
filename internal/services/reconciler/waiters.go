package reconciler

import (
	"context"
	"sync"
)

type waiter struct {
	ctx context.Context
}

// waiters tracks the callers blocked on each in-flight reconciliation. A flight
// runs detached from any single caller and is aborted only once every caller
// waiting on it has gone.
type waiters struct {
	mu     sync.Mutex
	byKey  map[string][]*waiter
	aborts map[string]context.CancelFunc
}

func newWaiters() *waiters {
	return &waiters{
		byKey:  make(map[string][]*waiter),
		aborts: make(map[string]context.CancelFunc),
	}
}

// join registers ctx as waiting on key. The returned func must be called once
// the caller has its result.
func (w *waiters) join(key string, ctx context.Context) (leave func()) {
	me := &waiter{ctx: ctx}

	w.mu.Lock()
	w.byKey[key] = append(w.byKey[key], me)
	w.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { w.abortIfAbandoned(key) })
	return func() {
		stop()
		w.mu.Lock()
		defer w.mu.Unlock()
		list := w.byKey[key]
		for i, x := range list {
			if x == me {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(w.byKey, key)
			return
		}
		w.byKey[key] = list
	}
}

// start binds the flight's cancel func to key. The flight is cancelled right
// away when its callers are already gone.
func (w *waiters) start(key string, cancel context.CancelFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.aborts[key] = cancel
	if w.abandonedLocked(key) != nil {
		cancel()
	}
}

func (w *waiters) finish(key string) {
	w.mu.Lock()
	delete(w.aborts, key)
	w.mu.Unlock()
}

// abandoned returns the error of the last waiting caller when every caller
// waiting on key is done, nil otherwise.
func (w *waiters) abandoned(key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.abandonedLocked(key)
}

func (w *waiters) abandonedLocked(key string) error {
	list := w.byKey[key]
	if len(list) == 0 {
		return nil
	}
	var err error
	for _, x := range list {
		if err = x.ctx.Err(); err == nil {
			return nil
		}
	}
	return err
}

func (w *waiters) abortIfAbandoned(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cancel, ok := w.aborts[key]; ok && w.abandonedLocked(key) != nil {
		cancel()
	}
}
