// Package warehouse provides the SQL warehouse client used by the admin
// service. It manages a bounded pool of network sessions against the
// warehouse's statement-execution API and exposes a small query interface
// that returns rows as ordered column→value maps.
package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Row maps a column name to its value for a single result row.
type Row map[string]any

// Rows is an ordered result set.
type Rows []Row

// Conn is a single live session against the warehouse endpoint.
// A Conn is never used from two goroutines at once; exclusivity is
// enforced by the pool.
type Conn interface {
	// Run executes a statement with positional parameters.
	Run(ctx context.Context, stmt string, args []any) (Rows, error)
	// Ping performs a cheap liveness round-trip.
	Ping(ctx context.Context) error
	Close() error
}

// Dialer opens new warehouse sessions. The production implementation is
// HTTPDialer; tests substitute fakes.
type Dialer interface {
	Open(ctx context.Context) (Conn, error)
}

// HTTPDialer opens sessions against the warehouse's HTTP statement API.
// A session is identified by the warehouse with an opaque session ID and
// pinned to a compute resource through the routable HTTP path.
type HTTPDialer struct {
	host   string
	path   string
	token  string
	client *http.Client
}

// NewHTTPDialer builds a dialer for the given warehouse host (base URL),
// routable HTTP path (e.g. "sql/1.0/warehouses/abc123"), and bearer token.
func NewHTTPDialer(host, path, token string, connectTimeout time.Duration) *HTTPDialer {
	if connectTimeout == 0 {
		connectTimeout = 30 * time.Second
	}
	return &HTTPDialer{
		host:  strings.TrimSuffix(host, "/"),
		path:  strings.Trim(path, "/"),
		token: token,
		client: &http.Client{
			Timeout: connectTimeout,
		},
	}
}

// Open creates a new warehouse session.
func (d *HTTPDialer) Open(ctx context.Context) (Conn, error) {
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := d.do(ctx, http.MethodPost, d.url("sessions"), map[string]any{}, &resp); err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}
	if resp.SessionID == "" {
		return nil, fmt.Errorf("opening session: endpoint returned no session id")
	}
	return &httpConn{dialer: d, sessionID: resp.SessionID}, nil
}

func (d *HTTPDialer) url(parts ...string) string {
	return d.host + "/" + d.path + "/" + strings.Join(parts, "/")
}

// do issues a JSON request and decodes the JSON response into out (if non-nil).
func (d *HTTPDialer) do(ctx context.Context, method, url string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+d.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// httpConn is one live session on the statement API.
type httpConn struct {
	dialer    *HTTPDialer
	sessionID string
}

// statementParam is a positional statement parameter.
type statementParam struct {
	Ordinal int `json:"ordinal"`
	Value   any `json:"value"`
}

// statementResponse mirrors the statement API result envelope.
type statementResponse struct {
	Status struct {
		State string `json:"state"`
		Error string `json:"error,omitempty"`
	} `json:"status"`
	Manifest struct {
		Schema struct {
			Columns []struct {
				Name string `json:"name"`
			} `json:"columns"`
		} `json:"schema"`
	} `json:"manifest"`
	Result struct {
		DataArray [][]any `json:"data_array"`
	} `json:"result"`
}

func (c *httpConn) Run(ctx context.Context, stmt string, args []any) (Rows, error) {
	params := make([]statementParam, len(args))
	for i, a := range args {
		params[i] = statementParam{Ordinal: i + 1, Value: a}
	}

	var resp statementResponse
	err := c.dialer.do(ctx, http.MethodPost, c.dialer.url("statements"), map[string]any{
		"session_id": c.sessionID,
		"statement":  stmt,
		"parameters": params,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Status.State != "SUCCEEDED" {
		return nil, fmt.Errorf("statement %s: %s", resp.Status.State, resp.Status.Error)
	}

	cols := make([]string, len(resp.Manifest.Schema.Columns))
	for i, col := range resp.Manifest.Schema.Columns {
		cols[i] = col.Name
	}

	rows := make(Rows, 0, len(resp.Result.DataArray))
	for _, raw := range resp.Result.DataArray {
		row := make(Row, len(cols))
		for i, name := range cols {
			if i < len(raw) {
				row[name] = raw[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *httpConn) Ping(ctx context.Context) error {
	_, err := c.Run(ctx, "SELECT 1", nil)
	return err
}

func (c *httpConn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.dialer.do(ctx, http.MethodDelete, c.dialer.url("sessions", c.sessionID), nil, nil)
}
