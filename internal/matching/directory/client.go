package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"advising-workers/internal/common/fallback"
	commonhttp "advising-workers/internal/common/http"
	"advising-workers/internal/common/logger"
	"advising-workers/internal/models"
)

var (
	ErrDirectoryTimeout = errors.New("DIRECTORY_TIMEOUT")
	ErrDirectoryFailed  = errors.New("DIRECTORY_FAILED")
)

const recordSchema = `{
  "type": "object",
  "required": ["name", "country"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "country": {"type": "string"},
    "alpha_two_code": {"type": ["string", "null"]},
    "domains": {"type": ["array", "null"], "items": {"type": "string"}},
    "web_pages": {"type": ["array", "null"], "items": {"type": "string"}},
    "state-province": {"type": ["string", "null"]}
  }
}`

var compiledSchema = mustCompile(recordSchema)

func mustCompile(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("directory record schema: %v", err))
	}
	return schema
}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxResults int
}

// Client queries the directory. It is safe for concurrent use.
type Client struct {
	config *Config
	http   *commonhttp.Client
	logger logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	if config.MaxResults <= 0 {
		config.MaxResults = 50
	}
	return &Client{
		config: config,
		http:   commonhttp.NewClient(config.Timeout),
		logger: log.WithFields(map[string]interface{}{"component": "directory"}),
	}
}

// Search returns adapted universities for the name and country filters. Any
// upstream failure yields an empty list.
func (c *Client) Search(ctx context.Context, name, country string) []models.University {
	return fallback.Value(ctx, c.logger, "directory_search", []models.University{},
		func(ctx context.Context) ([]models.University, error) {
			records, err := c.Fetch(ctx, name, country)
			if err != nil {
				return nil, err
			}

			out := make([]models.University, 0, len(records))
			for i, r := range records {
				out = append(out, Adapt(i, r))
			}
			return out, nil
		})
}

// Fetch returns the raw records, capped and schema-checked.
func (c *Client) Fetch(ctx context.Context, name, country string) ([]RawRecord, error) {
	var raw []json.RawMessage
	if err := c.http.GetJSON(ctx, c.searchURL(name, country), &raw); err != nil {
		if ctx.Err() == context.DeadlineExceeded || isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrDirectoryTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrDirectoryFailed, err)
	}

	if len(raw) > c.config.MaxResults {
		raw = raw[:c.config.MaxResults]
	}

	records := make([]RawRecord, 0, len(raw))
	skipped := 0
	for _, item := range raw {
		result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(item))
		if err != nil || !result.Valid() {
			skipped++
			continue
		}
		var r RawRecord
		if err := json.Unmarshal(item, &r); err != nil {
			skipped++
			continue
		}
		records = append(records, r)
	}

	if skipped > 0 {
		c.logger.Warn("skipped malformed directory records", map[string]interface{}{
			"skipped": skipped,
			"kept":    len(records),
		})
	}

	c.logger.Debug("directory search completed", map[string]interface{}{
		"name":        name,
		"country":     country,
		"resultCount": len(records),
	})
	return records, nil
}

func (c *Client) searchURL(name, country string) string {
	params := url.Values{}
	if name = strings.TrimSpace(name); name != "" {
		params.Set("name", name)
	}
	if country = strings.TrimSpace(country); country != "" {
		params.Set("country", country)
	}

	u := strings.TrimRight(c.config.BaseURL, "/") + "/search"
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return strings.Contains(err.Error(), "Client.Timeout")
}
