package config

import (
	"fmt"
	"net"

	"github.com/pixil98/go-errors"
)

// DefaultListenAddress is used when the listener section is left empty.
const DefaultListenAddress = ":8080"

// ListenerConfig configures the HTTP listener serving the websocket feed.
type ListenerConfig struct {
	Address string `json:"address"`
}

func (c *ListenerConfig) Validate() error {
	el := errors.NewErrorList()

	if c.Address != "" {
		if _, _, err := net.SplitHostPort(c.Address); err != nil {
			el.Add(fmt.Errorf("parsing listener address: %w", err))
		}
	}

	return el.Err()
}

// Addr returns the configured address or the default when unset.
func (c *ListenerConfig) Addr() string {
	if c.Address == "" {
		return DefaultListenAddress
	}
	return c.Address
}
