package warehouse

import (
	"context"
	"fmt"
	"time"

	"refadmin/internal/metrics"
)

// Client is the query interface the rest of the service uses. It hides
// session acquisition and release behind single-call query execution.
// Pass the Client explicitly to components that need warehouse access.
type Client struct {
	pool *Pool
}

// NewClient wraps a session pool.
func NewClient(pool *Pool) *Client {
	return &Client{pool: pool}
}

// Query acquires a session, runs the statement with positional parameters,
// and always releases the session, even on failure. A failed query does
// not imply the session is dead; the release-time probe decides that.
func (c *Client) Query(ctx context.Context, stmt string, args ...any) (Rows, error) {
	s, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer c.pool.Release(s)

	start := time.Now()
	rows, err := s.Run(ctx, stmt, args)
	metrics.QueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return rows, nil
}

// Exec runs a statement whose result set is not needed.
func (c *Client) Exec(ctx context.Context, stmt string, args ...any) error {
	_, err := c.Query(ctx, stmt, args...)
	return err
}

// TestConnection verifies the warehouse is reachable by running a trivial
// statement through the pool.
func (c *Client) TestConnection(ctx context.Context) error {
	rows, err := c.Query(ctx, "SELECT 1")
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("warehouse: test query returned no rows")
	}
	return nil
}

// PoolStats exposes the underlying pool's statistics.
func (c *Client) PoolStats() PoolStats {
	return c.pool.Stats()
}

// Close drains the pool's idle sessions.
func (c *Client) Close() {
	c.pool.Close()
}
