package meshsync

import (
	"sync"
)

// SendResult describes a completed background send.
type SendResult struct {
	Context *Context
	Seq     uint64
	Err     error
}

type DeletedEventData struct {
	Context *Context
	Path    string
}

var Event_SendCompleted = &Event[SendResult]{}
var Event_EntityDeleted = &Event[DeletedEventData]{}

type EventData interface {
}

type eventHandler[T EventData] struct {
	owner       interface{}
	handlerFunc func(data T)
	triggerOnce bool
}

type Event[T EventData] struct {
	handlersLock sync.RWMutex
	handlers     []*eventHandler[T]
}

func (e *Event[T]) Listen(handlerFunc func(data T)) {
	e.ListenFor(nil, handlerFunc)
}

func (e *Event[T]) ListenOnce(handlerFunc func(data T)) {
	e.handlersLock.Lock()
	defer e.handlersLock.Unlock()
	e.handlers = append(e.handlers, &eventHandler[T]{nil, handlerFunc, true})
}

func (e *Event[T]) ListenFor(owner interface{}, handlerFunc func(data T)) {
	e.handlersLock.Lock()
	defer e.handlersLock.Unlock()
	e.handlers = append(e.handlers, &eventHandler[T]{owner, handlerFunc, false})
}

func (e *Event[T]) UnlistenFor(owner interface{}) {
	e.handlersLock.Lock()
	defer e.handlersLock.Unlock()
	kept := e.handlers[:0]
	for _, handler := range e.handlers {
		if handler.owner != owner {
			kept = append(kept, handler)
		}
	}
	e.handlers = kept
}

func (e *Event[T]) Wait() chan T {
	ch := make(chan T, 1)
	e.ListenOnce(func(data T) {
		ch <- data
	})
	return ch
}

func (e *Event[T]) Broadcast(data T) {
	e.handlersLock.Lock()
	handlers := make([]*eventHandler[T], len(e.handlers))
	copy(handlers, e.handlers)
	kept := e.handlers[:0]
	for _, handler := range e.handlers {
		if !handler.triggerOnce {
			kept = append(kept, handler)
		}
	}
	e.handlers = kept
	e.handlersLock.Unlock()

	// Handlers run outside the lock so they may listen or unlisten.
	for _, handler := range handlers {
		handler.handlerFunc(data)
	}
}
