// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransport_Defaults(t *testing.T) {
	tr := NewTransport(0)
	assert.Equal(t, defaultMaxIdleConns, tr.MaxIdleConns)
	assert.Equal(t, defaultMaxIdleConnsPerHost, tr.MaxIdleConnsPerHost)
	assert.Equal(t, defaultIdleConnTimeout, tr.IdleConnTimeout)
	assert.Equal(t, defaultDialTimeout, tr.TLSHandshakeTimeout)
}

func TestNewTransport_CapsToRequestTimeout(t *testing.T) {
	tr := NewTransport(30 * time.Second)
	assert.Equal(t, defaultDialTimeout, tr.TLSHandshakeTimeout)
	assert.Equal(t, defaultResponseHeaderTimeout, tr.ResponseHeaderTimeout)

	short := 1500 * time.Millisecond
	tr = NewTransport(short)
	assert.Equal(t, short, tr.TLSHandshakeTimeout)
	assert.Equal(t, short, tr.ResponseHeaderTimeout)
}

func TestNewClient(t *testing.T) {
	assert.Equal(t, defaultClientTimeout, NewClient(0).Timeout)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	resp, err := NewClient(time.Second).Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
