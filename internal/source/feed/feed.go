// Package feed implements a RecordSource that pulls paginated JSON record
// feeds over HTTP using gocolly.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/patrondata/importar/internal/importop"
	"github.com/patrondata/importar/internal/record"
)

// Waiter gates page fetches, typically a per-host rate limiter.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxPages bounds pagination so a misbehaving feed cannot loop forever.
	MaxPages int
	// Limiter, when set, paces page fetches.
	Limiter Waiter
}

const (
	defaultTimeout  = 15 * time.Second
	defaultMaxPages = 1000
)

// wirePage is one page of the producer feed.
type wirePage struct {
	Records []wireRecord `json:"records"`
	Next    string       `json:"next"`
}

// wireRecord mirrors record.Record on the wire. A null data field marks the
// record as deleted upstream.
type wireRecord struct {
	IDs  []wireID        `json:"ids"`
	Data json.RawMessage `json:"data"`
}

type wireID struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Source pulls records page by page from a paginated JSON feed. It implements
// importop.RecordSource; pages are fetched lazily as records are consumed.
type Source struct {
	cfg           Config
	baseCollector *colly.Collector

	nextURL string
	buffer  []record.Record
	pages   int
	done    bool
}

// New builds a Source starting at the given feed URL.
func New(url string, cfg Config) (*Source, error) {
	if url == "" {
		return nil, fmt.Errorf("feed url is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)

	return &Source{
		cfg:           cfg,
		baseCollector: c,
		nextURL:       url,
	}, nil
}

// Next returns the next record in the feed, fetching further pages on demand.
// It returns importop.ErrEndOfFeed once the final page is drained.
func (s *Source) Next(ctx context.Context) (record.Record, error) {
	for len(s.buffer) == 0 {
		if s.done || s.nextURL == "" {
			return record.Record{}, importop.ErrEndOfFeed
		}
		if err := s.fetchPage(ctx); err != nil {
			return record.Record{}, err
		}
	}
	rec := s.buffer[0]
	s.buffer = s.buffer[1:]
	return rec, nil
}

func (s *Source) fetchPage(ctx context.Context) error {
	if s.pages >= s.cfg.MaxPages {
		return fmt.Errorf("feed exceeded %d pages", s.cfg.MaxPages)
	}
	s.pages++

	if s.cfg.Limiter != nil {
		if err := s.cfg.Limiter.Wait(ctx, s.nextURL); err != nil {
			return err
		}
	}

	body, err := s.fetch(ctx, s.nextURL)
	if err != nil {
		return err
	}

	var page wirePage
	if err := json.Unmarshal(body, &page); err != nil {
		return fmt.Errorf("decode feed page: %w", err)
	}

	for _, wire := range page.Records {
		ids := make([]record.ID, len(wire.IDs))
		for i, id := range wire.IDs {
			ids[i] = record.ID{Type: id.Type, Value: id.Value}
		}
		var data []byte
		if len(wire.Data) > 0 && string(wire.Data) != "null" {
			data = append([]byte(nil), wire.Data...)
		}
		s.buffer = append(s.buffer, record.New(ids, data))
	}

	s.nextURL = page.Next
	if s.nextURL == "" {
		s.done = true
	}
	return nil
}

// fetch executes a single HTTP GET using Colly.
func (s *Source) fetch(ctx context.Context, url string) ([]byte, error) {
	var (
		body     []byte
		fetchErr error
	)
	collector := s.baseCollector.Clone()

	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("feed fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("feed visit failed: %w", err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("feed request failed: %w", fetchErr)
		}
		return body, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
