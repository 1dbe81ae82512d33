// Package entropy picks run seeds. A configured seed is used as is; otherwise
// the seed comes from random.org when an API key is set, falling back to
// crypto/rand.
package entropy

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultEndpoint is the random.org JSON-RPC endpoint.
const DefaultEndpoint = "https://api.random.org/json-rpc/4/invoke"

// Client fetches true random integers from random.org.
type Client struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewClient creates a random.org client. Returns nil if apiKey is empty.
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey:   apiKey,
		endpoint: DefaultEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Enabled returns true if the client has a valid API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// fetch asks random.org for two 30-bit integers and joins them into one
// positive seed.
func (c *Client) fetch() (int64, error) {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateIntegers",
		"params": map[string]any{
			"apiKey": c.apiKey,
			"n":      2,
			"min":    0,
			"max":    1<<30 - 1,
		},
		"id": 1,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}

	resp, err := c.client.Post(c.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var result struct {
		Result struct {
			Random struct {
				Data []int64 `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, fmt.Errorf("parse random.org response: %w", err)
	}
	if result.Error != nil {
		return 0, fmt.Errorf("random.org: %s", result.Error.Message)
	}
	data := result.Result.Random.Data
	if len(data) != 2 {
		return 0, fmt.Errorf("random.org returned %d integers, want 2", len(data))
	}
	return data[0]<<30 | data[1], nil
}

// cryptoSeed generates a positive seed using crypto/rand.
func cryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
}

// Seed returns configured when it is non-zero. Otherwise it draws a fresh
// non-zero seed from c, or from crypto/rand when c is nil or fails.
func Seed(configured int64, c *Client) int64 {
	if configured != 0 {
		return configured
	}
	if c.Enabled() {
		seed, err := c.fetch()
		if err == nil && seed != 0 {
			slog.Debug("seed from random.org", "seed", seed)
			return seed
		}
		slog.Debug("random.org seed failed, using crypto/rand", "error", err)
	}
	for {
		if seed := cryptoSeed(); seed != 0 {
			return seed
		}
	}
}
