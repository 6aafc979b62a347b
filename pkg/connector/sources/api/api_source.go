// Package api implements the paginated HTTP JSON extractor.
package api

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/pipeflow/pkg/clients"
	"github.com/ajitpratap0/pipeflow/pkg/config"
	"github.com/ajitpratap0/pipeflow/pkg/connector/core"
	"github.com/ajitpratap0/pipeflow/pkg/errors"
	jsonx "github.com/ajitpratap0/pipeflow/pkg/json"
	"github.com/ajitpratap0/pipeflow/pkg/models"
)

// FlattenSeparator joins nested object keys of page items.
const FlattenSeparator = "_"

// envelopeKeys are tried in order when a page is an object without
// records_path.
var envelopeKeys = []string{"results", "data", "items", "records"}

// nextKeys name body fields holding the next page URL for link pagination.
var nextKeys = []string{"next", "next_url", "next_page"}

// APISource walks a paginated JSON API. Records of one page are yielded
// before the next page is requested.
type APISource struct {
	cfg    config.ExtractConfig
	base   *url.URL
	logger *zap.Logger
}

// NewAPISource builds an extractor from the extract section.
func NewAPISource(cfg config.ExtractConfig, logger *zap.Logger) (*APISource, error) {
	if cfg.URL == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "api extractor requires url")
	}
	base, err := url.Parse(cfg.URL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf(errors.ErrorTypeConfig, "invalid api url %q", cfg.URL)
	}

	cfg.Pagination.ApplyDefaults()
	switch cfg.Pagination.Type {
	case config.PaginationNone, config.PaginationOffset, config.PaginationPage,
		config.PaginationCursor, config.PaginationLink:
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown pagination type %q", cfg.Pagination.Type)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &APISource{
		cfg:    cfg,
		base:   base,
		logger: logger.With(zap.String("component", "api_source")),
	}, nil
}

func (s *APISource) httpConfig() *clients.HTTPConfig {
	hc := clients.DefaultHTTPConfig()
	if s.cfg.Timeout > 0 {
		hc.Timeout = s.cfg.Timeout
	}
	hc.RateLimit = s.cfg.RateLimit
	hc.Retries = s.cfg.Retry
	if o := s.cfg.OAuth2; o != nil {
		hc.OAuth2 = &clients.OAuth2Config{
			TokenURL:     o.TokenURL,
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			Scopes:       o.Scopes,
		}
	}
	return hc
}

// pager tracks the position of one Extract call.
type pager struct {
	kind   string
	offset int
	page   int
	cursor string
	next   string
}

// Extract implements core.Extractor.
func (s *APISource) Extract(ctx context.Context) iter.Seq2[models.Record, error] {
	return func(yield func(models.Record, error) bool) {
		client, err := clients.NewHTTPClient(ctx, s.httpConfig(), s.logger)
		if err != nil {
			yield(models.Record{}, err)
			return
		}
		defer client.Close()

		p := s.cfg.Pagination
		st := &pager{kind: p.Type, page: p.StartPage}

		method := s.cfg.Method
		if method == "" {
			method = "GET"
		}

		pages, items := 0, 0
		for {
			if p.MaxPages > 0 && pages >= p.MaxPages {
				s.logger.Debug("max pages reached", zap.Int("max_pages", p.MaxPages))
				break
			}
			if err := ctx.Err(); err != nil {
				yield(models.Record{}, errors.Wrap(err, errors.ErrorTypeCanceled, "api extraction canceled"))
				return
			}

			pageURL := s.pageURL(st)
			resp, err := client.Do(ctx, strings.ToUpper(method), pageURL, s.cfg.Headers)
			if err != nil {
				yield(models.Record{}, fetchError(err, pageURL))
				return
			}
			pages++

			body, err := jsonx.DecodeBytes(resp.Body)
			if err != nil {
				yield(models.Record{}, errors.Wrapf(err, errors.ErrorTypeExtraction, "decode page %d", pages).
					WithDetail("url", pageURL))
				return
			}

			list := s.unwrap(body)
			for _, item := range list {
				items++
				rec, ok := item.(models.Record)
				if !ok {
					raw, _ := jsonx.Marshal(item)
					cause := errors.Newf(errors.ErrorTypeExtraction, "expected JSON object, got %s", jsonx.TypeName(item))
					if !yield(models.Record{}, core.NewExtractError(items, string(raw), cause)) {
						return
					}
					continue
				}
				if !yield(rec.Flatten(FlattenSeparator), nil) {
					return
				}
			}

			s.logger.Debug("page fetched",
				zap.Int("page", pages),
				zap.Int("items", len(list)),
				zap.String("url", pageURL))

			if !s.advance(st, resp, body, list, pageURL) {
				break
			}
		}

		stats := client.GetStats()
		s.logger.Info("api source exhausted",
			zap.Int("pages", pages),
			zap.Int("items", items),
			zap.Int64("retried_calls", stats.RetriedCalls),
			zap.Duration("rate_wait", stats.RateLimiter.TotalWaitTime))
	}
}

func fetchError(err error, pageURL string) error {
	if errors.IsType(err, errors.ErrorTypeCanceled) {
		return err
	}
	return errors.Wrap(err, errors.ErrorTypeExtraction, "fetch page").WithDetail("url", pageURL)
}

// pageURL builds the request URL for the current position.
func (s *APISource) pageURL(st *pager) string {
	if st.next != "" {
		return st.next
	}

	u := *s.base
	q := u.Query()
	for k, v := range s.cfg.Params {
		q.Set(k, v)
	}

	p := s.cfg.Pagination
	switch st.kind {
	case config.PaginationOffset:
		q.Set(p.OffsetParam, strconv.Itoa(st.offset))
		q.Set(p.LimitParam, strconv.Itoa(p.Limit))
	case config.PaginationPage:
		q.Set(p.PageParam, strconv.Itoa(st.page))
		if p.Limit > 0 {
			q.Set(p.LimitParam, strconv.Itoa(p.Limit))
		}
	case config.PaginationCursor:
		if st.cursor != "" {
			q.Set(p.CursorParam, st.cursor)
		}
		if p.Limit > 0 {
			q.Set(p.LimitParam, strconv.Itoa(p.Limit))
		}
	}

	u.RawQuery = q.Encode()
	return u.String()
}

// advance moves st to the next page and reports whether there is one.
func (s *APISource) advance(st *pager, resp *clients.Response, body any, list []any, current string) bool {
	if len(list) == 0 {
		return false
	}

	p := s.cfg.Pagination
	switch st.kind {
	case config.PaginationOffset:
		if len(list) < p.Limit {
			return false
		}
		st.offset += p.Limit
		return true

	case config.PaginationPage:
		st.page++
		return true

	case config.PaginationCursor:
		v, ok := lookup(body, p.CursorPath)
		cursor := cursorString(v)
		if !ok || cursor == "" || cursor == st.cursor {
			return false
		}
		st.cursor = cursor
		return true

	case config.PaginationLink:
		next := NextLink(resp.Header.Get("Link"))
		if next == "" {
			if rec, ok := body.(models.Record); ok {
				for _, key := range nextKeys {
					if v, ok := rec.Get(key); ok {
						if str, ok := v.(string); ok && str != "" {
							next = str
							break
						}
					}
				}
			}
		}
		if next == "" {
			return false
		}
		resolved, err := resolve(current, next)
		if err != nil || resolved == current {
			return false
		}
		st.next = resolved
		return true

	default:
		return false
	}
}

// unwrap finds the record list inside a decoded page.
func (s *APISource) unwrap(body any) []any {
	if s.cfg.RecordsPath != "" {
		v, ok := lookup(body, s.cfg.RecordsPath)
		if !ok || v == nil {
			s.logger.Warn("records_path not found in page", zap.String("records_path", s.cfg.RecordsPath))
			return nil
		}
		if list, ok := v.([]any); ok {
			return list
		}
		return []any{v}
	}

	switch b := body.(type) {
	case []any:
		return b
	case models.Record:
		for _, key := range envelopeKeys {
			if list, ok := b.Value(key).([]any); ok {
				return list
			}
		}
		if b.Len() == 0 {
			return nil
		}
		return []any{b}
	case nil:
		return nil
	default:
		return []any{b}
	}
}

// lookup follows a dot path ("meta.next_cursor") through nested objects.
func lookup(v any, path string) (any, bool) {
	if path == "" {
		return v, true
	}
	for _, part := range strings.Split(path, ".") {
		rec, ok := v.(models.Record)
		if !ok {
			return nil, false
		}
		v, ok = rec.Get(part)
		if !ok {
			return nil, false
		}
	}
	return v, true
}

func cursorString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case int64:
		return strconv.FormatInt(c, 10)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case bool:
		if c {
			return "true"
		}
		return ""
	default:
		return fmt.Sprint(c)
	}
}

// NextLink extracts the rel="next" target from an RFC 8288 Link header.
func NextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segments[1:] {
			param = strings.TrimSpace(param)
			name, value, ok := strings.Cut(param, "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(name), "rel") {
				continue
			}
			value = strings.Trim(strings.TrimSpace(value), `"'`)
			for _, rel := range strings.Fields(value) {
				if strings.EqualFold(rel, "next") {
					return target[1 : len(target)-1]
				}
			}
		}
	}
	return ""
}

func resolve(current, next string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
