package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eventbell/internal/event"
	"eventbell/internal/httpauth"
	logx "eventbell/pkg/logx"
)

const (
	defaultNotionBaseURL = "https://api.notion.com"
	defaultNotionVersion = "2022-06-28"
	defaultNotionPage    = 100
	// maxNotionPages bounds pagination so a misbehaving cursor cannot loop forever.
	maxNotionPages = 1000
)

type notionStore struct {
	cfg  NotionConfig
	loc  *time.Location
	http *http.Client
	log  logx.Logger
}

func openNotion(cfg Config, log logx.Logger) (Store, error) {
	nc := cfg.Notion
	if strings.TrimSpace(nc.Token) == "" {
		return nil, errors.New("notion token is required")
	}
	if strings.TrimSpace(nc.DatabaseID) == "" {
		return nil, errors.New("notion database id is required")
	}
	if strings.TrimSpace(nc.BaseURL) == "" {
		nc.BaseURL = defaultNotionBaseURL
	}
	nc.BaseURL = strings.TrimRight(nc.BaseURL, "/")
	if strings.TrimSpace(nc.Version) == "" {
		nc.Version = defaultNotionVersion
	}
	if nc.PageSize <= 0 || nc.PageSize > defaultNotionPage {
		nc.PageSize = defaultNotionPage
	}
	nc.Properties = nc.Properties.withDefaults()
	return &notionStore{
		cfg:  nc,
		loc:  cfg.Location,
		http: httpauth.Client(nc.Token, nc.Timeout, nc.HTTPClient),
		log:  log,
	}, nil
}

// DefaultNotionProperties are the column names of the reference database.
var DefaultNotionProperties = NotionProperties{
	Title:        "名前",
	ScheduledAt:  "予定の日時",
	NotifyBefore: "通知時間",
	Notified:     "通知済み",
}

func (p NotionProperties) withDefaults() NotionProperties {
	d := DefaultNotionProperties
	if strings.TrimSpace(p.Title) != "" {
		d.Title = p.Title
	}
	if strings.TrimSpace(p.ScheduledAt) != "" {
		d.ScheduledAt = p.ScheduledAt
	}
	if strings.TrimSpace(p.NotifyBefore) != "" {
		d.NotifyBefore = p.NotifyBefore
	}
	if strings.TrimSpace(p.Notified) != "" {
		d.Notified = p.Notified
	}
	return d
}

func (s *notionStore) Close() error { return nil }

func (s *notionStore) QueryRange(ctx context.Context, q RangeQuery) ([]event.Record, error) {
	and := []any{checkboxFilter(s.cfg.Properties.Notified, q.Notified)}
	if q.Start != nil {
		and = append(and, dateFilter(s.cfg.Properties.ScheduledAt, "on_or_after", *q.Start))
	}
	if q.End != nil {
		and = append(and, dateFilter(s.cfg.Properties.ScheduledAt, "before", *q.End))
	}
	return s.query(ctx, map[string]any{"and": and})
}

func (s *notionStore) QueryUnnotifiedBefore(ctx context.Context, t time.Time) ([]event.Record, error) {
	return s.query(ctx, map[string]any{"and": []any{
		checkboxFilter(s.cfg.Properties.Notified, false),
		dateFilter(s.cfg.Properties.ScheduledAt, "before", t),
	}})
}

func (s *notionStore) SetNotified(ctx context.Context, id string, v bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: empty page id", ErrUpdate)
	}
	body := map[string]any{
		"properties": map[string]any{
			s.cfg.Properties.Notified: map[string]any{"checkbox": v},
		},
	}
	endpoint := "/v1/pages/" + url.PathEscape(id)
	if err := s.do(ctx, http.MethodPatch, endpoint, body, nil); err != nil {
		return fmt.Errorf("%w: page %s: %w", ErrUpdate, id, err)
	}
	return nil
}

type notionQueryResponse struct {
	Results    []notionPage `json:"results"`
	HasMore    bool         `json:"has_more"`
	NextCursor *string      `json:"next_cursor"`
}

type notionPage struct {
	ID         string                     `json:"id"`
	Properties map[string]json.RawMessage `json:"properties"`
}

func (s *notionStore) query(ctx context.Context, filter map[string]any) ([]event.Record, error) {
	endpoint := "/v1/databases/" + url.PathEscape(s.cfg.DatabaseID) + "/query"
	var (
		out    []event.Record
		cursor string
	)
	for page := 0; page < maxNotionPages; page++ {
		body := map[string]any{
			"filter":    filter,
			"sorts":     []any{map[string]any{"property": s.cfg.Properties.ScheduledAt, "direction": "ascending"}},
			"page_size": s.cfg.PageSize,
		}
		if cursor != "" {
			body["start_cursor"] = cursor
		}
		var resp notionQueryResponse
		if err := s.do(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrQuery, err)
		}
		for _, p := range resp.Results {
			out = append(out, s.decodePage(p))
		}
		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			return out, nil
		}
		cursor = *resp.NextCursor
	}
	s.log.Warn("notion pagination limit reached", logx.Int("pages", maxNotionPages), logx.Int("records", len(out)))
	return out, nil
}

func (s *notionStore) do(ctx context.Context, method, endpoint string, body, result any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.BaseURL+endpoint, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Notion-Version", s.cfg.Version)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("notion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseNotionError(resp, endpoint)
	}
	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode notion response: %w", err)
	}
	return nil
}

func parseNotionError(resp *http.Response, endpoint string) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Service: "notion", StatusCode: resp.StatusCode, Endpoint: endpoint}
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &body) == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func checkboxFilter(prop string, v bool) map[string]any {
	return map[string]any{"property": prop, "checkbox": map[string]any{"equals": v}}
}

func dateFilter(prop, op string, t time.Time) map[string]any {
	return map[string]any{"property": prop, "date": map[string]any{op: t.UTC().Format(time.RFC3339)}}
}

// ---- page decoding ----

type notionRichText struct {
	PlainText string `json:"plain_text"`
}

type notionTitleProp struct {
	Title []notionRichText `json:"title"`
}

type notionDateProp struct {
	Date *struct {
		Start string `json:"start"`
	} `json:"date"`
}

type notionNumberProp struct {
	Number *float64 `json:"number"`
}

type notionCheckboxProp struct {
	Checkbox bool `json:"checkbox"`
}

func (s *notionStore) decodePage(p notionPage) event.Record {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return event.Malformed("", "page without id")
	}
	props := s.cfg.Properties

	var date notionDateProp
	raw, ok := p.Properties[props.ScheduledAt]
	if !ok {
		return event.Malformed(id, "missing %s property", props.ScheduledAt)
	}
	if err := json.Unmarshal(raw, &date); err != nil {
		return event.Malformed(id, "invalid %s property: %v", props.ScheduledAt, err)
	}
	if date.Date == nil || strings.TrimSpace(date.Date.Start) == "" {
		return event.Malformed(id, "missing scheduled_at")
	}
	at, err := event.ParseInstant(date.Date.Start, s.loc)
	if err != nil {
		return event.Malformed(id, "unparsable scheduled_at: %v", err)
	}

	ev := event.Event{ID: id, ScheduledAt: at}

	if raw, ok := p.Properties[props.Title]; ok {
		var title notionTitleProp
		if err := json.Unmarshal(raw, &title); err == nil {
			var b strings.Builder
			for _, rt := range title.Title {
				b.WriteString(rt.PlainText)
			}
			ev.Title = strings.TrimSpace(b.String())
		}
	}

	if raw, ok := p.Properties[props.NotifyBefore]; ok {
		var num notionNumberProp
		if err := json.Unmarshal(raw, &num); err != nil {
			return event.Malformed(id, "invalid %s property: %v", props.NotifyBefore, err)
		}
		if num.Number != nil {
			n := *num.Number
			if n != float64(int(n)) {
				return event.Malformed(id, "notify_before is not an integer: %v", n)
			}
			if n >= 0 {
				ev.NotifyBefore = event.Minutes(int(n))
			}
		}
	}

	if raw, ok := p.Properties[props.Notified]; ok {
		var cb notionCheckboxProp
		if err := json.Unmarshal(raw, &cb); err == nil {
			ev.Notified = cb.Checkbox
		}
	}

	return event.OK(ev)
}
