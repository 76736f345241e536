package main

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Client is an HTTP client for the dealership API. The session token travels
// in the session cookie, as a browser would send it.
type Client struct {
	addr   string
	token  string
	cookie string
	http   *http.Client
}

// apiError is a failed response. Violations are set on 422.
type apiError struct {
	Status     int
	Messages   []string
	Violations []violation
}

type violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *apiError) Error() string {
	switch {
	case len(e.Violations) > 0:
		parts := make([]string, len(e.Violations))
		for i, v := range e.Violations {
			parts[i] = v.Field + ": " + v.Reason
		}
		return "validation failed:\n  " + strings.Join(parts, "\n  ")
	case len(e.Messages) > 0:
		return strings.Join(e.Messages, "; ")
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// newClient creates a Client for the effective profile.
func newClient() *Client {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CACert != "" {
		data, err := os.ReadFile(cfg.CACert)
		if err == nil {
			pool := x509.NewCertPool()
			pool.AppendCertsFromPEM(data)
			tlsCfg.RootCAs = pool
		}
	}

	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
	}

	return &Client{addr: strings.TrimRight(cfg.Address, "/"), token: cfg.Token, cookie: cfg.Cookie, http: httpClient}
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.addr+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.AddCookie(&http.Cookie{Name: c.cookie, Value: c.token})
	}

	return c.http.Do(req)
}

// call performs a request and decodes any JSON body into a generic value.
func (c *Client) call(method, path string, body any) (any, error) {
	resp, err := c.do(method, path, body)
	if err != nil {
		return nil, err
	}
	return parseResponse(resp)
}

// login exchanges credentials for the session token set in the response cookie.
func (c *Client) login(email, password string) (string, error) {
	resp, err := c.do(http.MethodPost, "/users/login", map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	if _, err := parseResponse(resp); err != nil {
		return "", err
	}
	for _, ck := range resp.Cookies() {
		if ck.Name == c.cookie && ck.Value != "" {
			return ck.Value, nil
		}
	}
	return "", errors.New("server did not set a session cookie named " + c.cookie)
}

func parseResponse(resp *http.Response) (any, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		apiErr := &apiError{Status: resp.StatusCode}
		var body struct {
			Errors     []string    `json:"errors"`
			Violations []violation `json:"violations"`
		}
		if json.Unmarshal(data, &body) == nil {
			apiErr.Messages = body.Errors
			apiErr.Violations = body.Violations
		}
		return nil, apiErr
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, data)
	}
	return result, nil
}
