package admin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Client calls an admin interface over HTTP.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(addr, token string) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		BaseURL: strings.TrimSuffix(base, "/"),
		Token:   token,
		HTTP:    &http.Client{},
	}
}

// Call invokes function name under txid and decodes the response.
func (c *Client) Call(ctx context.Context, name string, args Args, txid string) (map[string]any, error) {
	body, err := json.Marshal(map[string]any{"q": name, "txid": txid, "args": args})
	if err != nil {
		return nil, fmt.Errorf("encode call: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/admin/call", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling %s: %w", name, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("error decoding %s response: %w", name, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := out["error"].(string)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
	}
	return out, nil
}

// Stream attaches to txid's pushes. It returns once the server has attached
// the listener; the channel closes when ctx ends or the server hangs up.
func (c *Client) Stream(ctx context.Context, txid string) (<-chan []byte, error) {
	u := c.BaseURL + "/admin/stream?txid=" + url.QueryEscape(txid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error opening stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	reader := bufio.NewReader(resp.Body)
	// The server writes a comment once the listener is attached.
	if _, err := reader.ReadString('\n'); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("error reading stream: %w", err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		for {
			line, err := reader.ReadBytes('\n')
			if data, ok := bytes.CutPrefix(bytes.TrimRight(line, "\r\n"), []byte("data: ")); ok {
				select {
				case out <- data:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

// Functions lists the server's registered functions.
func (c *Client) Functions(ctx context.Context) (map[string]map[string]FunctionArg, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/admin/functions", nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	c.authorize(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error listing functions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	var out map[string]map[string]FunctionArg
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("error decoding functions: %w", err)
	}
	return out, nil
}
