package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/artpar/costboard/domain/usage"
	"github.com/artpar/costboard/ports"
	"github.com/tidwall/gjson"
)

// ErrMalformedResponse is returned when the upstream body is not JSON or
// carries no user array. An explicit empty array is not malformed.
var ErrMalformedResponse = errors.New("malformed usage response")

// maxPages bounds pagination against an upstream that never returns a short page.
const maxPages = 10000

// UsageSource reads live cumulative usage from the upstream admin API.
//
// API Contract:
//
//	GET /admin/users?page=1&limit=100
//	Response: {"data": {"users": [...], "total": 250}}
//
// The user array may also sit at "data" or "users". Numbers may arrive as
// strings and missing fields default to zero.
type UsageSource struct {
	client   *Client
	path     string
	pageSize int
}

// UsageSourceConfig configures the usage source.
type UsageSourceConfig struct {
	Path     string
	PageSize int
}

// NewUsageSource creates a remote usage source.
func NewUsageSource(client *Client, cfg UsageSourceConfig) *UsageSource {
	if cfg.Path == "" {
		cfg.Path = "/admin/users"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &UsageSource{
		client:   client,
		path:     cfg.Path,
		pageSize: cfg.PageSize,
	}
}

// CurrentUsage fetches every page of users.
func (s *UsageSource) CurrentUsage(ctx context.Context) ([]usage.Record, error) {
	var records []usage.Record

	for page := 1; page <= maxPages; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("limit", strconv.Itoa(s.pageSize))

		body, err := s.client.Get(ctx, s.path+"?"+q.Encode())
		if err != nil {
			return nil, fmt.Errorf("fetch usage page %d: %w", page, err)
		}

		batch, total, err := ParseUsers(body)
		if err != nil {
			return nil, fmt.Errorf("usage page %d: %w", page, err)
		}
		records = append(records, batch...)

		if len(batch) < s.pageSize {
			break
		}
		if total > 0 && len(records) >= total {
			break
		}
	}

	return records, nil
}

// ParseUsers extracts user records and the reported total from a response
// body. total is 0 when the upstream does not report one.
func ParseUsers(body []byte) ([]usage.Record, int, error) {
	if !gjson.ValidBytes(body) {
		return nil, 0, ErrMalformedResponse
	}

	root := gjson.ParseBytes(body)

	list, ok := userList(root)
	if !ok {
		return nil, 0, fmt.Errorf("%w: no user array in %.120s", ErrMalformedResponse, body)
	}

	total := 0
	for _, path := range []string{"data.total", "total", "pagination.total"} {
		if r := root.Get(path); r.Exists() {
			total = int(r.Int())
			break
		}
	}

	var records []usage.Record
	list.ForEach(func(_, u gjson.Result) bool {
		id := u.Get("id").String()
		if id == "" {
			return true
		}
		t := u.Get("usage.total")
		records = append(records, usage.Normalize(usage.NewRecord(id, u.Get("name").String(), usage.Totals{
			Cost:              t.Get("cost").Float(),
			Tokens:            t.Get("tokens").Int(),
			InputTokens:       t.Get("inputTokens").Int(),
			OutputTokens:      t.Get("outputTokens").Int(),
			CacheCreateTokens: t.Get("cacheCreateTokens").Int(),
			CacheReadTokens:   t.Get("cacheReadTokens").Int(),
			Requests:          t.Get("requests").Int(),
		})))
		return true
	})

	return records, total, nil
}

// userList finds the user array. Error envelopes such as
// {"success":false} or {"data":{"users":null}} yield ok == false.
func userList(root gjson.Result) (gjson.Result, bool) {
	if root.IsArray() {
		return root, true
	}
	for _, path := range []string{"data.users", "data", "users"} {
		if r := root.Get(path); r.IsArray() {
			return r, true
		}
	}
	return gjson.Result{}, false
}

// Ensure interface compliance.
var _ ports.UsageSource = (*UsageSource)(nil)
