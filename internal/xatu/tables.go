package xatu

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethpandaops/xatu-dashboard/internal/core/observability"
)

// Tables returns the lake's table catalog (table name to dataset URL),
// fetched once and held for the process lifetime.
func (c *Client) Tables(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tables != nil {
		return c.tables, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.catalogURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := c.outbound.Do(req)
	observability.ObserveUpstreamLatency("xatu_catalog", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close response body", "err", cerr)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch catalog: status=%d", resp.StatusCode)
	}

	m, err := parseCatalog(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c.tables = m
	c.logger.Info("loaded table catalog", "tables", len(m))
	return m, nil
}

// HasTable reports whether the catalog lists table name.
func (c *Client) HasTable(ctx context.Context, name string) (bool, error) {
	m, err := c.Tables(ctx)
	if err != nil {
		return false, err
	}
	_, ok := m[name]
	return ok, nil
}

// parseCatalog reads the llms.txt format: comment and blank lines skipped,
// data lines are exactly two whitespace-separated fields.
func parseCatalog(r io.Reader) (map[string]string, error) {
	out := map[string]string{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			continue
		}
		out[parts[0]] = parts[1]
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
