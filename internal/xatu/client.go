// Package xatu reads day-partitioned Parquet files from the public Xatu data
// lake. Raw files are cached on disk under the data dir; decoded frames are
// cached in a bounded LRU so recomputes across dashboards do not re-decode.
package xatu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethpandaops/xatu-dashboard/internal/core/httpclient"
	"github.com/ethpandaops/xatu-dashboard/internal/core/observability"
)

const (
	DefaultBaseURL = "https://data.ethpandaops.io/xatu"

	defaultCatalogURL = "https://raw.githubusercontent.com/ethpandaops/xatu-data/master/llms.txt"

	// the lake exposes one logical database
	database = "default"
)

// ErrDayMissing marks a 404 for a day file: the lake has not published that
// day. Inside a window this is tolerated; it only becomes DataUnavailable
// when the whole window is empty.
var ErrDayMissing = errors.New("no data published for day")

type Client struct {
	base       string
	dataDir    string
	catalogURL string
	download   *http.Client
	outbound   *http.Client
	logger     *slog.Logger

	mu     sync.Mutex
	tables map[string]string
}

type Option func(*Client)

func WithCatalogURL(u string) Option {
	return func(c *Client) { c.catalogURL = u }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.download = h
		c.outbound = h
	}
}

func NewClient(baseURL, dataDir string, logger *slog.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		base:       strings.TrimRight(baseURL, "/"),
		dataDir:    dataDir,
		catalogURL: defaultCatalogURL,
		download:   httpclient.NewDownload(),
		outbound:   httpclient.NewOutbound(),
		logger:     logger,
	}
	for _, f := range opts {
		f(c)
	}
	return c
}

// DayURL builds the lake URL for one day file. Month and day are unpadded,
// matching the lake's partition layout.
func (c *Client) DayURL(network, table string, day time.Time) string {
	day = day.UTC()
	return fmt.Sprintf("%s/%s/databases/%s/%s/%d/%d/%d.parquet",
		c.base, network, database, table, day.Year(), int(day.Month()), day.Day())
}

func (c *Client) dayPath(network, table string, day time.Time) string {
	name := fmt.Sprintf("%s_%s_%s.parquet", network, table, day.UTC().Format("2006-01-02"))
	return filepath.Join(c.dataDir, name)
}

// FetchDay ensures the raw Parquet file for a day is on disk and returns its
// path. A present non-empty file is served as-is; corruption is handled by
// the decode path, which removes the file and fetches again.
func (c *Client) FetchDay(ctx context.Context, network, table string, day time.Time) (string, error) {
	path := c.dayPath(network, table, day)
	if st, err := os.Stat(path); err == nil && st.Size() > 0 {
		return path, nil
	}
	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}

	url := c.DayURL(network, table, day)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := c.download.Do(req)
	if err != nil {
		observability.ObserveUpstreamLatency("xatu_day", time.Since(start).Seconds())
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close response body", "err", cerr)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		observability.ObserveUpstreamLatency("xatu_day", time.Since(start).Seconds())
		return "", fmt.Errorf("%s: %w", url, ErrDayMissing)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		observability.ObserveUpstreamLatency("xatu_day", time.Since(start).Seconds())
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("fetch %s: status=%d body=%q", url, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	n, err := c.writeFile(path, resp.Body)
	observability.ObserveUpstreamLatency("xatu_day", time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("store %s: %w", path, err)
	}

	c.logger.Info("downloaded day file",
		"network", network, "table", table,
		"day", day.UTC().Format("2006-01-02"),
		"bytes", n, "dur", time.Since(start).String())
	return path, nil
}

// writeFile lands the body under a temp name first so a torn download never
// shows up as a cached day file.
func (c *Client) writeFile(path string, body io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(c.dataDir, ".download-*")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	return n, nil
}

// RemoveDay deletes the cached raw file for a day, if present.
func (c *Client) RemoveDay(network, table string, day time.Time) error {
	err := os.Remove(c.dayPath(network, table, day))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove day file: %w", err)
	}
	return nil
}
