// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"log"
	"sync"
)

// Preferences persists settings changed at runtime back to the config
// file. Each write rereads the file so hand edits are not lost, and
// environment overrides are never written out.
type Preferences struct {
	mu   sync.Mutex
	path string
}

// NewPreferences returns a Preferences writing to the config file at path.
func NewPreferences(path string) *Preferences {
	return &Preferences{path: path}
}

// Path returns the config file path.
func (p *Preferences) Path() string {
	return p.path
}

// SetAPIURL stores the API base URL.
func (p *Preferences) SetAPIURL(apiURL string) error {
	if err := ValidateAPIURL(apiURL); err != nil {
		return fmt.Errorf("api_url: %w", err)
	}
	return p.update(func(c *Config) (bool, error) {
		if c.APIURL == apiURL {
			return false, nil
		}
		c.APIURL = apiURL
		return true, nil
	})
}

// SetDefaultModel stores the model used for new chats.
func (p *Preferences) SetDefaultModel(model string) error {
	return p.update(func(c *Config) (bool, error) {
		if c.DefaultModel == model {
			return false, nil
		}
		c.DefaultModel = model
		return true, nil
	})
}

// Set stores one dotted key. The resulting file must validate.
func (p *Preferences) Set(key, value string) error {
	return p.update(func(c *Config) (bool, error) {
		before, err := c.Get(key)
		if err != nil {
			return false, err
		}
		if err := c.Set(key, value); err != nil {
			return false, err
		}
		c.Migrate()
		if err := c.Validate(); err != nil {
			return false, err
		}
		after, _ := c.Get(key)
		return before != after, nil
	})
}

// update applies fn to the file contents and saves when fn reports a change.
func (p *Preferences) update(fn func(*Config) (bool, error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg, err := LoadFile(p.path)
	if err != nil {
		return err
	}

	changed, err := fn(cfg)
	if err != nil || !changed {
		return err
	}
	if err := SaveTOML(cfg, p.path); err != nil {
		return err
	}
	log.Printf("CONFIG | saved preferences path=%s", p.path)
	return nil
}
