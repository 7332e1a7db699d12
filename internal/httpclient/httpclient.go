// Package httpclient holds the process-wide HTTP agent. Configuration is
// mutable under a read-write lock so the CLI can inject authentication
// headers before a long operation.
package httpclient

import (
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Config is the mutable agent configuration.
type Config struct {
	UserAgent string
	Headers   map[string]string
	Proxy     string
	Timeout   time.Duration
}

var (
	mu     sync.RWMutex
	cfg    = Config{UserAgent: "soar", Timeout: 0}
	client = &http.Client{Transport: &http.Transport{
		MaxIdleConnsPerHost: 10,
		DisableCompression:  true,
		Proxy:               proxyFunc,
	}}
)

func proxyFunc(req *http.Request) (*url.URL, error) {
	mu.RLock()
	p := cfg.Proxy
	mu.RUnlock()
	if p == "" {
		return http.ProxyFromEnvironment(req)
	}
	return url.Parse(p)
}

// Configure replaces the agent configuration.
func Configure(c Config) {
	mu.Lock()
	defer mu.Unlock()
	if c.UserAgent == "" {
		c.UserAgent = "soar"
	}
	cfg = c
	client.Timeout = c.Timeout
}

// SetHeader adds one header to every subsequent request.
func SetHeader(key, value string) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	cfg.Headers[key] = value
}

// Do applies the configured user-agent and headers, then issues the
// request on the shared client.
func Do(req *http.Request) (*http.Response, error) {
	mu.RLock()
	req.Header.Set("User-Agent", cfg.UserAgent)
	for k, v := range cfg.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	mu.RUnlock()
	return client.Do(req)
}

// Client exposes the shared client for libraries that need one (OCI,
// release APIs).
func Client() *http.Client { return client }
