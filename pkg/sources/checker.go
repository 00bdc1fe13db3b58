package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Checker keeps the last_status column of the catalog current. The contracts
// API is asked for its headers; population workbooks must exist on disk with
// a format the population loader reads.
type Checker struct {
	catalog  *DB
	logger   *slog.Logger
	interval time.Duration
	client   *http.Client
}

// Availability summarizes one pass over the catalog.
type Availability struct {
	Total       int
	Available   int
	Unavailable []string // source ids
}

// NewChecker returns a Checker that walks the catalog every interval.
func NewChecker(catalog *DB, logger *slog.Logger, interval time.Duration) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		catalog:  catalog,
		logger:   logger,
		interval: interval,
		client: &http.Client{
			Timeout: 30 * time.Second,
			// A moved dataset is reported as moved, not silently followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Start checks the catalog now and then on every tick until ctx ends.
func (c *Checker) Start(ctx context.Context) {
	c.CheckAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckAll(ctx)
		}
	}
}

// CheckAll records the availability of every catalogued source.
func (c *Checker) CheckAll(ctx context.Context) Availability {
	var av Availability
	list, err := c.catalog.List()
	if err != nil {
		c.logger.Error("catalog availability: cannot list sources", "error", err)
		return av
	}

	for _, src := range list {
		if ctx.Err() != nil {
			break
		}
		av.Total++

		var status int
		var checkErr error
		if isURL(src.Location) {
			status, checkErr = c.checkURL(ctx, src.Location)
		} else {
			status, checkErr = checkFile(src.Location)
		}

		msg := ""
		if checkErr != nil {
			msg = checkErr.Error()
		}
		if err := c.catalog.UpdateCheck(src.ID, status, msg); err != nil {
			c.logger.Error("catalog availability: cannot record status", "source_id", src.ID, "error", err)
		}

		if available(status) {
			av.Available++
			continue
		}
		av.Unavailable = append(av.Unavailable, src.ID)
		c.logger.Warn("data source unavailable",
			"source_id", src.ID,
			"kind", src.Kind,
			"location", src.Location,
			"status", status,
			"error", msg,
		)
	}

	if av.Total > 0 {
		c.logger.Info("catalog availability", "sources", av.Total, "available", av.Available, "unavailable", len(av.Unavailable))
	}
	return av
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// available counts redirects as reachable; last_status tells them apart.
func available(status int) bool {
	return status >= 200 && status < 400
}

// checkURL issues a HEAD request. Transport failures give status 0.
func (c *Checker) checkURL(ctx context.Context, location string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, location, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HEAD %s: %w", location, err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// populationFormats are the workbook extensions the population loader reads.
var populationFormats = map[string]bool{".xlsx": true, ".csv": true}

// checkFile maps a local workbook onto HTTP statuses: 200 present, 404
// missing, 415 an unreadable format, 422 a directory.
func checkFile(location string) (int, error) {
	info, err := os.Stat(location)
	switch {
	case os.IsNotExist(err):
		return http.StatusNotFound, fmt.Errorf("workbook %s: %w", location, err)
	case err != nil:
		return 0, fmt.Errorf("workbook %s: %w", location, err)
	case info.IsDir():
		return http.StatusUnprocessableEntity, fmt.Errorf("workbook %s is a directory", location)
	}
	if ext := strings.ToLower(filepath.Ext(location)); !populationFormats[ext] {
		return http.StatusUnsupportedMediaType, fmt.Errorf("workbook %s: unsupported format %q", location, ext)
	}
	return http.StatusOK, nil
}
