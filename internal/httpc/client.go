// Package httpc provides the HTTP clients used for remote API calls.
// Use these instead of http.DefaultClient to ensure timeouts are set.
package httpc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// Client is a shared HTTP client with production-ready defaults.
var Client = NewClient(DefaultTimeout)

// NewClient creates a new HTTP client with the specified overall timeout.
func NewClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   DefaultConnectTimeout,
		KeepAlive: DefaultKeepAlive,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(dialer.DialContext),
	}
}

// NewSocksClient routes every request through a SOCKS5 proxy at addr.
func NewSocksClient(addr string, timeout time.Duration) (*http.Client, error) {
	base := &net.Dialer{
		Timeout:   DefaultConnectTimeout,
		KeepAlive: DefaultKeepAlive,
	}
	d, err := proxy.SOCKS5("tcp", addr, nil, base)
	if err != nil {
		return nil, fmt.Errorf("socks5 %s: %w", addr, err)
	}

	dial := func(ctx context.Context, network, address string) (net.Conn, error) {
		if cd, ok := d.(proxy.ContextDialer); ok {
			return cd.DialContext(ctx, network, address)
		}
		return d.Dial(network, address)
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(dial),
	}, nil
}

// ForProxy returns a SOCKS client when addr is set, otherwise a plain client.
func ForProxy(addr string, timeout time.Duration) (*http.Client, error) {
	if addr == "" {
		return NewClient(timeout), nil
	}
	return NewSocksClient(addr, timeout)
}

func newTransport(dial func(ctx context.Context, network, addr string) (net.Conn, error)) *http.Transport {
	return &http.Transport{
		DialContext:           dial,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
