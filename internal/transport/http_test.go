package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadURLHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "application/x-msgpack")
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	res, err := LoadURL(context.Background(), srv.URL, URLOptions{})
	require.NoError(t, err)
	require.Equal(t, "payload", string(res.Body))
	require.Equal(t, `"v1"`, res.ETag)
	require.True(t, ContentTypeOK(res.ContentType))
}

func TestLoadURLFollowsRedirects(t *testing.T) {
	var final *httptest.Server
	final = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer final.Close()

	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusFound)
	}))
	defer redirector.Close()

	res, err := LoadURL(context.Background(), redirector.URL, URLOptions{})
	require.NoError(t, err)
	require.Equal(t, "ok", string(res.Body))
}

func TestLoadURLTooManyRedirects(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL, http.StatusFound)
	}))
	defer srv.Close()

	_, err := LoadURL(context.Background(), srv.URL, URLOptions{})
	require.Error(t, err)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	require.Equal(t, CodeTooManyRedirects, terr.Code)
}

func TestLoadURLNonTwoXX(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := LoadURL(context.Background(), srv.URL, URLOptions{})
	require.Error(t, err)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	require.Equal(t, CodeTransportFailed, terr.Code)
}

func TestLoadURLNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	res, err := LoadURL(context.Background(), srv.URL, URLOptions{IfNoneMatch: `"v1"`})
	require.NoError(t, err)
	require.True(t, res.NotModified)
}

func TestLoadURLRejectsUnsupportedScheme(t *testing.T) {
	_, err := LoadURL(context.Background(), "ftp://example.com/artifact", URLOptions{})
	require.Error(t, err)
}

func TestLoadURLTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	_, err := LoadURL(context.Background(), srv.URL, URLOptions{Timeout: 5 * time.Millisecond})
	require.Error(t, err)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	require.Equal(t, CodeTimeout, terr.Code)
}
