package config

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path"
	"reflect"
	"sync"

	"casa-relay/lib/utils"
	a "casa-relay/modules/aggregate"

	"github.com/chebyrash/promise"
)

const DEFAULT_DATA_DIR = "data"

// Config is a JSON document persisted under <dataDir>/config/<TypeName>.json.
// The first Init writes the default value, later runs read the file back.
type Config[T any] struct {
	defaultValue T
	dataDir      string

	mu     sync.RWMutex
	loaded bool
	value  T
}

var _ a.Plugin = &Config[struct{}]{}

func New[T any](defaultValue T, dataDir *string) *Config[T] {
	dir := DEFAULT_DATA_DIR
	if dataDir != nil && *dataDir != "" {
		dir = *dataDir
	}
	return &Config[T]{defaultValue: defaultValue, dataDir: dir, value: defaultValue}
}

func (c *Config[T]) FilePath() string {
	name := reflect.TypeFor[T]().Name()
	return path.Join(c.dataDir, "config", name+".json")
}

func (c *Config[T]) Init() error {
	f, err := os.Open(c.FilePath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		err = c.Update(func(t *T) {
			*t = c.defaultValue
		})
		if err != nil {
			return err
		}
	} else {
		defer f.Close()
		b, err := io.ReadAll(f)
		if err != nil {
			return err
		}
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		c.mu.Lock()
		c.value = v
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()
	return nil
}

func (c *Config[T]) Start() *promise.Promise[any] {
	return utils.PromiseResolve[any](nil)
}

func (c *Config[T]) Stop() error {
	return nil
}

func (c *Config[T]) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func (c *Config[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Update applies updater to a copy of the current value and persists it.
// The in-memory value only changes once the file write succeeded.
func (c *Config[T]) Update(updater func(*T)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	temp := c.value
	updater(&temp)
	b, err := json.MarshalIndent(temp, "", "  ")
	if err != nil {
		return err
	}
	err = os.MkdirAll(path.Dir(c.FilePath()), 0755)
	if err != nil {
		return err
	}
	err = os.WriteFile(c.FilePath(), b, 0644)
	if err != nil {
		return err
	}
	c.value = temp
	return nil
}

// Override changes the in-memory value without touching the file. Used for
// values that come from the environment and must never be written to disk.
func (c *Config[T]) Override(updater func(*T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	updater(&c.value)
}
