// Package httpapi implements platform.Client over the platform REST API.
//
// Reads go through a retryablehttp client that retries 429 and 5xx
// responses. Writes are sent exactly once: the executor decides whether a
// failed write is retried.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/roach88/cfgmigrate/internal/model"
	"github.com/roach88/cfgmigrate/internal/platform"
)

// Config configures a Client.
type Config struct {
	// Region selects a hosted deployment; BaseURL overrides it.
	Region  string
	BaseURL string
	APIKey  string

	// Read retry policy. Zero values use the defaults below.
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// HTTPClient is the underlying client; nil uses a pooled default.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

const (
	defaultRetryMax     = 3
	defaultRetryWaitMin = 500 * time.Millisecond
	defaultRetryWaitMax = 10 * time.Second
)

// Client talks to one instance.
type Client struct {
	base   *url.URL
	apiKey string
	reads  *retryablehttp.Client
	writes *retryablehttp.Client
	logger *slog.Logger

	// ruleLocks serializes read-modify-write of a rule's action_ids.
	ruleLocks sync.Map
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("httpapi: API key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		code := cfg.Region
		if code == "" {
			code = DefaultRegion
		}
		region, err := LookupRegion(code)
		if err != nil {
			return nil, err
		}
		baseURL = region.BaseURL
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("httpapi: invalid base URL %q", baseURL)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reads := retryablehttp.NewClient()
	reads.RetryMax = cfg.RetryMax
	if reads.RetryMax == 0 {
		reads.RetryMax = defaultRetryMax
	}
	reads.RetryWaitMin = cmpOr(cfg.RetryWaitMin, defaultRetryWaitMin)
	reads.RetryWaitMax = cmpOr(cfg.RetryWaitMax, defaultRetryWaitMax)
	reads.ErrorHandler = retryablehttp.PassthroughErrorHandler
	reads.Logger = logger

	writes := retryablehttp.NewClient()
	writes.RetryMax = 0
	writes.ErrorHandler = retryablehttp.PassthroughErrorHandler
	writes.Logger = logger

	if cfg.HTTPClient != nil {
		reads.HTTPClient = cfg.HTTPClient
		writes.HTTPClient = cfg.HTTPClient
	}

	return &Client{base: base, apiKey: cfg.APIKey, reads: reads, writes: writes, logger: logger}, nil
}

func cmpOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// BaseURL returns the instance URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// call identifies a request for error reporting.
type call struct {
	op   string
	kind model.Kind
	id   string
}

func (c *Client) do(ctx context.Context, cl call, method, path string, query url.Values, payload any) ([]byte, error) {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()

	var body any
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, &platform.Error{Code: platform.ErrCodeValidation, Op: cl.op, Kind: cl.kind, ID: cl.id, Err: err}
		}
		body = b
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", cl.op, cl.kind, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.writes
	if method == http.MethodGet {
		client = c.reads
	}
	c.logger.Debug("api request", "method", method, "path", path)
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &platform.Error{Code: platform.ErrCodeTransient, Op: cl.op, Kind: cl.kind, ID: cl.id, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &platform.Error{Code: platform.ErrCodeTransient, Op: cl.op, Kind: cl.kind, ID: cl.id, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= 300 {
		return nil, &platform.Error{
			Code:    platform.CodeForStatus(resp.StatusCode),
			Op:      cl.op,
			Kind:    cl.kind,
			ID:      cl.id,
			Status:  resp.StatusCode,
			Message: errorMessage(data),
		}
	}
	return data, nil
}

func collectionPath(kind model.Kind) string {
	return "/v1/" + kind.Plural()
}

// listQuery returns the per-kind listing parameters.
func listQuery(kind model.Kind, filter platform.ListFilter) url.Values {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(filter.Limit))
	q.Set("offset", strconv.Itoa(filter.Offset))
	switch kind {
	case model.KindRule:
		q.Set("include_deleted", "false")
		q.Set("in_feed", "false")
	case model.KindExclusion:
		q.Set("include_deleted", "false")
		q["scope"] = []string{"detection_exclusion", "exclusion"}
	}
	return q
}

// ListObjects implements platform.Reader.
func (c *Client) ListObjects(ctx context.Context, kind model.Kind, filter platform.ListFilter) (platform.Page, error) {
	if filter.Limit <= 0 {
		filter.Limit = platform.DefaultPageSize
	}
	switch kind {
	case model.KindRuleAction, model.KindRuleExclusion:
		return c.listAttached(ctx, kind, filter)
	}

	data, err := c.do(ctx, call{op: "list", kind: kind}, http.MethodGet, collectionPath(kind), listQuery(kind, filter), nil)
	if err != nil {
		return platform.Page{}, err
	}
	lst, err := decodeListing(data)
	if err != nil {
		return platform.Page{}, &platform.Error{Code: platform.ErrCodeTransient, Op: "list", Kind: kind, Err: err}
	}

	page := platform.Page{Total: lst.Total, NextOffset: filter.Offset + len(lst.Items)}
	switch {
	case len(lst.Items) > filter.Limit:
		// The endpoint ignored paging and returned everything.
		page.HasMore = false
	case lst.Total >= 0:
		page.HasMore = page.NextOffset < lst.Total
	default:
		page.HasMore = len(lst.Items) == filter.Limit
	}

	for _, rec := range lst.Items {
		obj, err := model.FromRecord(kind, rec)
		if err != nil {
			return platform.Page{}, &platform.Error{Code: platform.ErrCodeValidation, Op: "list", Kind: kind, Err: err}
		}
		if !filter.IncludeSystem && model.IsSystem(obj) {
			continue
		}
		if kind == model.KindList {
			obj = c.withEntries(ctx, obj)
		}
		page.Objects = append(page.Objects, obj)
	}
	return page, nil
}

// withEntries fetches the entries of a string list, which listings omit.
// A failed fetch is logged and the list is kept without entries.
func (c *Client) withEntries(ctx context.Context, list model.Object) model.Object {
	if list.String("entry_type") != "string" || list.Has("entries") {
		return list
	}
	detail, err := c.GetObject(ctx, model.KindList, list.ID)
	if err != nil {
		c.logger.Warn("failed to fetch list entries", "list", list.Name, "id", list.ID, "error", err)
		return list
	}
	if entries, ok := detail.Fields["entries"]; ok {
		list.Fields["entries"] = entries
	}
	return list
}

// listAttached lists associations or rule exclusions. They live on rules,
// so every rule is read and the derived records are paged locally.
func (c *Client) listAttached(ctx context.Context, kind model.Kind, filter platform.ListFilter) (platform.Page, error) {
	rules, err := platform.Drain(ctx, c, model.KindRule, platform.ListFilter{IncludeSystem: true})
	if err != nil {
		return platform.Page{}, err
	}
	var all []model.Object
	for _, rule := range rules {
		if kind == model.KindRuleAction {
			all = append(all, model.Associations(rule)...)
		} else {
			all = append(all, model.RuleExclusions(rule)...)
		}
	}
	start := min(filter.Offset, len(all))
	end := min(start+filter.Limit, len(all))
	return platform.Page{Objects: all[start:end], Total: len(all), HasMore: end < len(all), NextOffset: end}, nil
}

// GetObject implements platform.Reader.
func (c *Client) GetObject(ctx context.Context, kind model.Kind, id string) (model.Object, error) {
	switch kind {
	case model.KindRuleAction, model.KindRuleExclusion:
		return c.getAttached(ctx, kind, id)
	}
	data, err := c.do(ctx, call{op: "get", kind: kind, id: id}, http.MethodGet, collectionPath(kind)+"/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return model.Object{}, err
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return model.Object{}, &platform.Error{Code: platform.ErrCodeTransient, Op: "get", Kind: kind, ID: id, Err: err}
	}
	return model.FromRecord(kind, rec)
}

func (c *Client) getAttached(ctx context.Context, kind model.Kind, id string) (model.Object, error) {
	i := strings.LastIndex(id, ":")
	if i <= 0 {
		return model.Object{}, platform.NewNotFound("get", kind, id)
	}
	rule, err := c.GetObject(ctx, model.KindRule, id[:i])
	if err != nil {
		if platform.IsNotFound(err) {
			return model.Object{}, platform.NewNotFound("get", kind, id)
		}
		return model.Object{}, err
	}
	derived := model.RuleExclusions(rule)
	if kind == model.KindRuleAction {
		derived = model.Associations(rule)
	}
	for _, o := range derived {
		if o.ID == id {
			return o, nil
		}
	}
	return model.Object{}, platform.NewNotFound("get", kind, id)
}

// CreateObject implements platform.Writer.
func (c *Client) CreateObject(ctx context.Context, kind model.Kind, payload map[string]any) (string, error) {
	switch kind {
	case model.KindRuleAction:
		return c.attachAction(ctx, payload)
	case model.KindRuleExclusion:
		return c.addExclusion(ctx, payload)
	}
	data, err := c.do(ctx, call{op: "create", kind: kind}, http.MethodPost, collectionPath(kind), nil, payload)
	if err != nil {
		return "", err
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return "", &platform.Error{Code: platform.ErrCodeValidation, Op: "create", Kind: kind, Err: err}
	}
	id, _ := rec["id"].(string)
	if id == "" {
		return "", &platform.Error{Code: platform.ErrCodeValidation, Op: "create", Kind: kind, Message: "response has no id"}
	}
	return id, nil
}

// attachAction adds an action to a rule's action_ids.
func (c *Client) attachAction(ctx context.Context, payload map[string]any) (string, error) {
	ruleID, _ := payload["rule_id"].(string)
	actionID, _ := payload["action_id"].(string)
	id := model.AssociationID(ruleID, actionID)

	unlock := c.lockRule(ruleID)
	defer unlock()

	rule, err := c.GetObject(ctx, model.KindRule, ruleID)
	if err != nil {
		return "", err
	}
	actionIDs := rule.Strings("action_ids")
	if slices.Contains(actionIDs, actionID) {
		return "", &platform.Error{Code: platform.ErrCodeConflict, Op: "create", Kind: model.KindRuleAction, ID: id, Message: "already attached"}
	}
	body := map[string]any{"action_ids": append(actionIDs, actionID)}
	_, err = c.do(ctx, call{op: "create", kind: model.KindRuleAction, id: id}, http.MethodPatch, collectionPath(model.KindRule)+"/"+url.PathEscape(ruleID), nil, body)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (c *Client) lockRule(id string) func() {
	v, _ := c.ruleLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// addExclusion attaches an exclusion to a rule. Recognised exclusion forms
// are sent as {type: value}, others as raw source.
func (c *Client) addExclusion(ctx context.Context, payload map[string]any) (string, error) {
	ruleID, _ := payload["rule_id"].(string)
	source, _ := payload["source"].(string)
	id := model.RuleExclusionID(ruleID, source)

	body := map[string]any{"source": source}
	if p, ok := model.ParseExclusion(source); ok {
		body = map[string]any{p.Type: p.Value}
	}
	path := collectionPath(model.KindRule) + "/" + url.PathEscape(ruleID) + "/add-exclusion"
	if _, err := c.do(ctx, call{op: "create", kind: model.KindRuleExclusion, id: id}, http.MethodPost, path, nil, body); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateObject implements platform.Writer.
func (c *Client) UpdateObject(ctx context.Context, kind model.Kind, id string, payload map[string]any) error {
	if kind == model.KindRuleAction || kind == model.KindRuleExclusion {
		return &platform.Error{Code: platform.ErrCodeValidation, Op: "update", Kind: kind, ID: id, Message: "attachments cannot be updated"}
	}
	_, err := c.do(ctx, call{op: "update", kind: kind, id: id}, http.MethodPatch, collectionPath(kind)+"/"+url.PathEscape(id), nil, payload)
	return err
}

var _ platform.Client = (*Client)(nil)
