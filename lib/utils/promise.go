package utils

import (
	"fmt"
	"runtime/debug"

	"github.com/chebyrash/promise"
)

func PromiseResolve[T any](val T) *promise.Promise[T] {
	return promise.New(func(resolve func(T), reject func(error)) {
		resolve(val)
	})
}

func PromiseReject[T any](err error) *promise.Promise[T] {
	return promise.New(func(resolve func(T), reject func(error)) {
		reject(err)
	})
}

// Go runs task in its own goroutine. A panic inside task rejects the
// returned promise instead of crashing the process.
func Go[T any](task func() (T, error)) *promise.Promise[T] {
	return promise.New(func(resolve func(T), reject func(error)) {
		defer func() {
			if r := recover(); r != nil {
				reject(&PanicError{Value: r, Stack: debug.Stack()})
			}
		}()

		res, err := task()
		if err != nil {
			reject(err)
			return
		}
		resolve(res)
	})
}

type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
