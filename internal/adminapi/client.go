package adminapi

import (
	"encoding/json"
	"fmt"

	"github.com/ChuLiYu/beaver-queue/internal/transport"
)

// Client is a one-shot connection to a remote admin server: dial, send one
// Request, read one Response, close. There is no session state to keep
// between calls, so Client holds nothing but the address.
type Client struct {
	Addr string
}

// NewClient returns a Client targeting addr (host:port).
func NewClient(addr string) *Client {
	return &Client{Addr: addr}
}

// Submit sends a batch of call payloads (already JSON-encoded) to the
// remote master as one job set.
func (c *Client) Submit(jobs []json.RawMessage) (*Response, error) {
	payload, err := json.Marshal(jobs)
	if err != nil {
		return nil, fmt.Errorf("adminapi: encode jobs: %w", err)
	}
	return c.call(Request{Op: OpSubmit, Jobs: payload})
}

// Status requests a queue-depth snapshot from the remote master.
func (c *Client) Status() (*Response, error) {
	return c.call(Request{Op: OpStatus})
}

func (c *Client) call(req Request) (*Response, error) {
	conn, err := transport.Dial(c.Addr)
	if err != nil {
		return nil, fmt.Errorf("adminapi: dial %s: %w", c.Addr, err)
	}
	defer conn.Close()

	if err := conn.WriteLine(req); err != nil {
		return nil, fmt.Errorf("adminapi: send request: %w", err)
	}

	var resp Response
	if err := conn.ReadLine(&resp); err != nil {
		return nil, fmt.Errorf("adminapi: read response: %w", err)
	}
	if !resp.OK {
		return &resp, fmt.Errorf("adminapi: remote error: %s", resp.Error)
	}
	return &resp, nil
}
