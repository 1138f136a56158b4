package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/patrondata/importar/internal/importop"
	"github.com/patrondata/importar/internal/record"
)

// TestSourcePaginates walks a two-page feed and drains every record,
// including a deletion marked by a null data field.
func TestSourcePaginates(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{
				"records": [
					{"ids": [{"type": "barcode", "value": "b-9"}], "data": {"name": "grace"}}
				],
				"next": ""
			}`)
			return
		}
		fmt.Fprintf(w, `{
			"records": [
				{"ids": [{"type": "crsid", "value": "abc1"}], "data": {"name": "ada"}},
				{"ids": [{"type": "crsid", "value": "abc2"}], "data": null}
			],
			"next": %q
		}`, server.URL+"/feed?page=2")
	}))
	defer server.Close()

	src, err := New(server.URL+"/feed", Config{UserAgent: "importar-test", Timeout: 2 * time.Second})
	require.NoError(t, err)

	ctx := context.Background()

	first, err := src.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, []record.ID{{Type: "crsid", Value: "abc1"}}, first.IDs())
	require.False(t, first.IsDeleted())
	require.JSONEq(t, `{"name":"ada"}`, string(first.Data()))

	second, err := src.Next(ctx)
	require.NoError(t, err)
	require.True(t, second.IsDeleted())

	third, err := src.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, []record.ID{{Type: "barcode", Value: "b-9"}}, third.IDs())

	_, err = src.Next(ctx)
	require.ErrorIs(t, err, importop.ErrEndOfFeed)

	// The source stays drained on repeated calls.
	_, err = src.Next(ctx)
	require.ErrorIs(t, err, importop.ErrEndOfFeed)
}

// countingWaiter records every URL it was asked to gate, optionally failing.
type countingWaiter struct {
	urls []string
	err  error
}

func (w *countingWaiter) Wait(_ context.Context, url string) error {
	w.urls = append(w.urls, url)
	return w.err
}

// TestSourceWaitsBeforeEachPage verifies the configured limiter gates every
// page fetch and that a limiter error aborts the feed.
func TestSourceWaitsBeforeEachPage(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"records": [{"ids": [{"type": "crsid", "value": "abc2"}], "data": {}}], "next": ""}`)
			return
		}
		fmt.Fprintf(w, `{"records": [{"ids": [{"type": "crsid", "value": "abc1"}], "data": {}}], "next": %q}`,
			server.URL+"/feed?page=2")
	}))
	defer server.Close()

	waiter := &countingWaiter{}
	src, err := New(server.URL+"/feed", Config{Timeout: 2 * time.Second, Limiter: waiter})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := src.Next(ctx)
		require.NoError(t, err)
	}
	_, err = src.Next(ctx)
	require.ErrorIs(t, err, importop.ErrEndOfFeed)
	require.Len(t, waiter.urls, 2)
	require.Equal(t, server.URL+"/feed", waiter.urls[0])
	require.Equal(t, server.URL+"/feed?page=2", waiter.urls[1])

	blocked, err := New(server.URL+"/feed", Config{
		Timeout: 2 * time.Second,
		Limiter: &countingWaiter{err: errors.New("rate limit wait")},
	})
	require.NoError(t, err)
	_, err = blocked.Next(ctx)
	require.ErrorContains(t, err, "rate limit wait")
}

// TestSourceServerError surfaces HTTP failures to the caller.
func TestSourceServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	src, err := New(server.URL, Config{Timeout: 2 * time.Second})
	require.NoError(t, err)

	_, err = src.Next(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, importop.ErrEndOfFeed)
}

// TestSourceBadJSON rejects pages that do not decode.
func TestSourceBadJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "not json")
	}))
	defer server.Close()

	src, err := New(server.URL, Config{Timeout: 2 * time.Second})
	require.NoError(t, err)

	_, err = src.Next(context.Background())
	require.Error(t, err)
}

// TestSourceMaxPages stops a feed that never terminates.
func TestSourceMaxPages(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Every page points back at itself and yields no records.
		fmt.Fprintf(w, `{"records": [], "next": %q}`, server.URL)
	}))
	defer server.Close()

	src, err := New(server.URL, Config{Timeout: 2 * time.Second, MaxPages: 3})
	require.NoError(t, err)

	_, err = src.Next(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeded 3 pages")
}

// TestSourceRequiresURL validates constructor arguments.
func TestSourceRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := New("", Config{})
	require.Error(t, err)
	require.False(t, errors.Is(err, importop.ErrEndOfFeed))
}
