package internal

import (
	"crypto/tls"
	"net/http"
	"time"
)

// streamHTTPClient is used for Bedrock streaming calls. No overall timeout:
// streams stay open until the model finishes or the request is aborted.
var streamHTTPClient = &http.Client{
	Transport: &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// apiHTTPClient is used for short-lived calls such as the update check.
var apiHTTPClient = &http.Client{
	Timeout: 15 * time.Second,
	Transport: &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}
