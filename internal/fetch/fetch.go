// Package fetch loads bootstrap payloads from redundant sources.
//
// A payload such as the level definitions file may live on local disk and on
// one or more mirrors. Race asks every source at once and keeps whichever
// answers first, so an unreachable mirror never stalls startup while another
// copy remains healthy.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pixil98/go-errors"
)

// Source supplies one copy of a payload.
type Source interface {
	// Name identifies the source in logs and error messages.
	Name() string

	// Load returns the payload. Implementations must honor ctx so a lost
	// race releases its resources promptly.
	Load(ctx context.Context) ([]byte, error)
}

// Result carries a fetched payload and the name of the source that won.
type Result struct {
	Source string
	Data   []byte
}

// Race loads from every source concurrently and returns the first success,
// cancelling the loads still in flight. When every source fails the
// individual failures are collected into a single error.
func Race(ctx context.Context, sources ...Source) (Result, error) {
	if len(sources) == 0 {
		return Result{}, fmt.Errorf("no sources configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type attempt struct {
		result Result
		err    error
	}
	attempts := make(chan attempt, len(sources))
	for _, src := range sources {
		go func(src Source) {
			data, err := src.Load(ctx)
			if err != nil {
				attempts <- attempt{err: fmt.Errorf("%s: %w", src.Name(), err)}
				return
			}
			attempts <- attempt{result: Result{Source: src.Name(), Data: data}}
		}(src)
	}

	el := errors.NewErrorList()
	for range sources {
		a := <-attempts
		if a.err == nil {
			return a.result, nil
		}
		el.Add(a.err)
	}
	return Result{}, el.Err()
}

// FileSource reads a payload from the local filesystem.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file:" + s.Path }

func (s FileSource) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(s.Path)
}

// HTTPSource reads a payload from a URL. A nil Client uses a default with a
// ten second timeout.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (s HTTPSource) Name() string { return s.URL }

func (s HTTPSource) Load(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
