// Package httpclient configures the HTTP clients used to call upstream services.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

func transport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewOutbound creates the client for small upstream calls (catalog fetches).
func NewOutbound() *http.Client {
	return &http.Client{
		Transport: transport(),
		Timeout:   30 * time.Second,
	}
}

// NewDownload creates the client for day-file downloads; a full day of block
// events runs to hundreds of megabytes.
func NewDownload() *http.Client {
	return &http.Client{
		Transport: transport(),
		Timeout:   5 * time.Minute,
	}
}
