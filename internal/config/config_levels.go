package config

import (
	"fmt"
	"net/url"

	"github.com/pixil98/go-errors"

	"gridrun/server/internal/fetch"
	"gridrun/server/levels/catalog"
)

// LevelsConfig lists the redundant sources the bootstrap fetcher races for
// the level definitions payload. An empty list falls back to the default
// catalog paths.
type LevelsConfig struct {
	Sources []LevelSourceConfig `json:"sources"`
}

// LevelSourceConfig names one copy of the definitions payload. Exactly one
// of Path and URL must be set.
type LevelSourceConfig struct {
	Path string `json:"path,omitempty"`
	URL  string `json:"url,omitempty"`
}

func (c *LevelsConfig) Validate() error {
	el := errors.NewErrorList()

	for i, s := range c.Sources {
		if err := s.Validate(); err != nil {
			el.Add(fmt.Errorf("source %d: %w", i, err))
		}
	}

	return el.Err()
}

// NewSources builds the fetch sources for every configured entry.
func (c *LevelsConfig) NewSources() ([]fetch.Source, error) {
	if len(c.Sources) == 0 {
		defaults := catalog.DefaultPaths()
		sources := make([]fetch.Source, 0, len(defaults))
		for _, path := range defaults {
			sources = append(sources, fetch.FileSource{Path: path})
		}
		return sources, nil
	}

	sources := make([]fetch.Source, 0, len(c.Sources))
	for i, s := range c.Sources {
		src, err := s.NewSource()
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func (c *LevelSourceConfig) Validate() error {
	el := errors.NewErrorList()

	switch {
	case c.Path == "" && c.URL == "":
		el.Add(fmt.Errorf("source needs a path or a url"))
	case c.Path != "" && c.URL != "":
		el.Add(fmt.Errorf("source must set only one of path and url"))
	}
	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil {
			el.Add(fmt.Errorf("parsing url: %w", err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			el.Add(fmt.Errorf("url scheme %q not supported", u.Scheme))
		}
	}

	return el.Err()
}

// NewSource builds the fetch source described by this entry.
func (c *LevelSourceConfig) NewSource() (fetch.Source, error) {
	switch {
	case c.Path != "" && c.URL == "":
		return fetch.FileSource{Path: c.Path}, nil
	case c.URL != "" && c.Path == "":
		return fetch.HTTPSource{URL: c.URL}, nil
	default:
		return nil, fmt.Errorf("source needs exactly one of path and url")
	}
}
