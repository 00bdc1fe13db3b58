package population

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Source is one tabular population input.
type Source interface {
	ID() string
	Read(ctx context.Context) (Table, error)
}

// SourceConfig describes a source in configuration. Location is a file path
// or an http(s) URL; Format is inferred from the extension when empty.
type SourceConfig struct {
	ID        string `yaml:"id" json:"id" validate:"required"`
	Location  string `yaml:"location" json:"location" validate:"required"`
	Format    string `yaml:"format" json:"format,omitempty" validate:"omitempty,oneof=csv xlsx"`
	Sheet     string `yaml:"sheet" json:"sheet,omitempty"`
	Delimiter string `yaml:"delimiter" json:"delimiter,omitempty"`
	Encoding  string `yaml:"encoding" json:"encoding,omitempty"`
	License   string `yaml:"license" json:"license,omitempty"`
}

// IsRemote reports whether the location is an http(s) URL.
func (c SourceConfig) IsRemote() bool {
	return strings.HasPrefix(c.Location, "http://") || strings.HasPrefix(c.Location, "https://")
}

func (c SourceConfig) format() string {
	if c.Format != "" {
		return strings.ToLower(c.Format)
	}
	loc := c.Location
	if i := strings.IndexAny(loc, "?#"); i >= 0 && c.IsRemote() {
		loc = loc[:i]
	}
	switch strings.ToLower(filepath.Ext(loc)) {
	case ".xlsx", ".xlsm":
		return "xlsx"
	default:
		return "csv"
	}
}

// NewSource builds the reader for cfg. Remote locations are downloaded into
// dataDir before reading.
func NewSource(cfg SourceConfig, dataDir string, client *http.Client) (Source, error) {
	var open func(path string) Source
	switch f := cfg.format(); f {
	case "csv":
		open = func(path string) Source {
			return &CSVSource{SourceID: cfg.ID, Path: path, Delimiter: cfg.Delimiter, Encoding: cfg.Encoding}
		}
	case "xlsx":
		open = func(path string) Source {
			return &XLSXSource{SourceID: cfg.ID, Path: path, Sheet: cfg.Sheet}
		}
	default:
		return nil, fmt.Errorf("source %s: unsupported format %q", cfg.ID, f)
	}

	if !cfg.IsRemote() {
		return open(cfg.Location), nil
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &remoteSource{
		id:     cfg.ID,
		url:    cfg.Location,
		dir:    dataDir,
		ext:    "." + cfg.format(),
		client: client,
		open:   open,
	}, nil
}

// CSVSource reads a delimited text file with a header row.
type CSVSource struct {
	SourceID  string
	Path      string
	Delimiter string // default ","
	Encoding  string // WHATWG label, e.g. "windows-1252"; default UTF-8
}

func (s *CSVSource) ID() string { return s.SourceID }

func (s *CSVSource) Read(_ context.Context) (Table, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return Table{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f
	if enc := s.Encoding; enc != "" && !strings.EqualFold(enc, "utf-8") {
		e, err := htmlindex.Get(enc)
		if err != nil {
			return Table{}, fmt.Errorf("unsupported encoding %q: %w", enc, err)
		}
		reader = transform.NewReader(f, e.NewDecoder())
	}

	r := csv.NewReader(reader)
	if s.Delimiter != "" {
		r.Comma = []rune(s.Delimiter)[0]
	}
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return Table{}, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read row %d: %w", len(rows)+2, err)
		}
		rows = append(rows, rec)
	}
	return Table{Header: header, Rows: rows}, nil
}

// XLSXSource reads one sheet of a workbook; the first row is the header.
type XLSXSource struct {
	SourceID string
	Path     string
	Sheet    string // default: first sheet
}

func (s *XLSXSource) ID() string { return s.SourceID }

func (s *XLSXSource) Read(_ context.Context) (Table, error) {
	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return Table{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := s.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return Table{}, fmt.Errorf("workbook %s has no sheets", s.Path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return Table{}, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return Table{}, fmt.Errorf("sheet %q is empty", sheet)
	}
	return Table{Header: rows[0], Rows: rows[1:]}, nil
}

// remoteSource downloads a workbook to a temporary file, reads it and
// removes the file.
type remoteSource struct {
	id     string
	url    string
	dir    string
	ext    string
	client *http.Client
	open   func(path string) Source
}

func (s *remoteSource) ID() string { return s.id }

func (s *remoteSource) Read(ctx context.Context) (Table, error) {
	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return Table{}, fmt.Errorf("create data dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(s.dir, "population-*"+s.ext)
	if err != nil {
		return Table{}, fmt.Errorf("create temp file: %w", err)
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	if err := downloadFile(ctx, s.client, s.url, path); err != nil {
		return Table{}, fmt.Errorf("download: %w", err)
	}
	return s.open(path).Read(ctx)
}

// downloadFile fetches url into dest in a single attempt.
func downloadFile(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return f.Close()
}
