package start_status

import (
	"sync"
	"sync/atomic"

	"casa-relay/lib/utils"

	"github.com/chebyrash/promise"
)

// startStatus lets a plugin whose Start blocks for its whole lifetime (a
// listening server) report separately that it is up and serving.
type startStatus struct {
	started atomic.Bool
	err     atomic.Pointer[error]
	once    sync.Once

	startPromise *promise.Promise[any]

	resolvePromise func(any)
	rejectPromise  func(error)
	ready          chan struct{}
}

type StartStatus = *startStatus

type Starter interface {
	Started() *promise.Promise[any]
}

var _ Starter = &startStatus{}

func New() StartStatus {
	s := &startStatus{ready: make(chan struct{})}
	s.startPromise = promise.New(func(resolve func(any), reject func(error)) {
		s.resolvePromise = resolve
		s.rejectPromise = reject
		close(s.ready)
	})
	<-s.ready
	return s
}

// TriggerStart marks the plugin as serving. Only the first trigger counts.
func (s *startStatus) TriggerStart() {
	s.once.Do(func() {
		s.started.Store(true)
		s.resolvePromise(nil)
	})
}

func (s *startStatus) TriggerStartFailure(err error) {
	s.once.Do(func() {
		s.err.Store(&err)
		s.rejectPromise(err)
	})
}

func (s *startStatus) Started() *promise.Promise[any] {
	if s.started.Load() {
		return utils.PromiseResolve[any](nil)
	}
	if err := s.err.Load(); err != nil {
		return utils.PromiseReject[any](*err)
	}
	return s.startPromise
}
