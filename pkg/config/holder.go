package config

import (
	"fmt"
	"sync/atomic"
)

// Holder owns the running configuration. Readers take a snapshot with
// Current; writers swap a whole new *Config in, never mutating the old one.
type Holder struct {
	path string
	ptr  atomic.Pointer[Config]
}

// NewHolder wraps an already loaded config. path is used by Reload.
func NewHolder(path string, c *Config) *Holder {
	h := &Holder{path: path}
	h.ptr.Store(c)
	return h
}

// Path returns the file the config was loaded from.
func (h *Holder) Path() string { return h.path }

// Current returns the active snapshot. Callers must treat it as read-only.
func (h *Holder) Current() *Config { return h.ptr.Load() }

// Replace installs c as the active snapshot.
func (h *Holder) Replace(c *Config) {
	if c != nil {
		h.ptr.Store(c)
	}
}

// Reload re-reads the config file and installs it when it validates.
// On error the previous snapshot stays active.
func (h *Holder) Reload() (*Config, error) {
	if h.path == "" {
		return nil, fmt.Errorf("reload config: no path")
	}
	c, err := LoadWithEnv(h.path)
	if err != nil {
		return nil, fmt.Errorf("reload config: %w", err)
	}
	h.ptr.Store(c)
	return c, nil
}
