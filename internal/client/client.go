// Package client talks to the ERP REST backend.
//
// Every resource has the same shape:
//
//	GET    /api/{resource}       list all
//	GET    /api/{resource}/{id}  fetch one
//	POST   /api/{resource}       create
//	PATCH  /api/{resource}/{id}  update
//	DELETE /api/{resource}/{id}  delete
//
// Responses are wrapped in {success, data, message} or {success:false, error}.
// Calls are never retried and nothing is cached between calls.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
	"github.com/minhahamin/mes-fe-sub000/internal/record"
)

const fallbackMessage = "요청을 처리하지 못했습니다"

var ErrReadOnly = errors.New("resource is read-only")

// Error — неуспешный ответ API или сетевая ошибка (Status == 0).
type Error struct {
	Status  int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

func (e *Error) Unwrap() error { return e.Cause }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Client — обёртка над REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	log        zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout задаёт таймаут запроса; по умолчанию его нет.
// Применяется к копии http-клиента, переданный через WithHTTPClient не меняется.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		log:        log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// ListAll — вся коллекция сущности; каждая запись проходит record.Decode.
func (c *Client) ListAll(ctx context.Context, e *dsl.Entity) ([]record.Record, error) {
	var raws []map[string]any
	if _, err := c.doJSON(ctx, http.MethodGet, c.path(e, ""), nil, &raws); err != nil {
		return nil, err
	}
	recs, err := record.DecodeAll(e, raws)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", e.Resource)
	}
	return recs, nil
}

func (c *Client) Get(ctx context.Context, e *dsl.Entity, id string) (record.Record, error) {
	return c.one(ctx, http.MethodGet, e, id, nil)
}

func (c *Client) Create(ctx context.Context, e *dsl.Entity, body record.Record) (record.Record, error) {
	if e.ReadOnly {
		return nil, errors.Wrap(ErrReadOnly, e.Resource)
	}
	return c.one(ctx, http.MethodPost, e, "", body)
}

func (c *Client) Update(ctx context.Context, e *dsl.Entity, id string, body record.Record) (record.Record, error) {
	if e.ReadOnly {
		return nil, errors.Wrap(ErrReadOnly, e.Resource)
	}
	return c.one(ctx, http.MethodPatch, e, id, body)
}

func (c *Client) Delete(ctx context.Context, e *dsl.Entity, id string) error {
	if e.ReadOnly {
		return errors.Wrap(ErrReadOnly, e.Resource)
	}
	_, err := c.doJSON(ctx, http.MethodDelete, c.path(e, id), nil, nil)
	return err
}

func (c *Client) one(ctx context.Context, method string, e *dsl.Entity, id string, body any) (record.Record, error) {
	var raw map[string]any
	msg, err := c.doJSON(ctx, method, c.path(e, id), body, &raw)
	if err != nil {
		return nil, err
	}
	if msg != "" {
		c.log.Debug().Str("resource", e.Resource).Str("message", msg).Msg("api message")
	}
	rec, err := record.Decode(e, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", e.Resource)
	}
	return rec, nil
}

func (c *Client) path(e *dsl.Entity, id string) string {
	p := "/api/" + url.PathEscape(e.Resource)
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

// ---- Internal helpers ----

func (c *Client) doJSON(ctx context.Context, method, path string, body any, target any) (string, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return "", errors.Wrap(err, "encoding request body")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return "", errors.Wrap(err, "creating request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return "", &Error{Message: fallbackMessage, Cause: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Status: resp.StatusCode, Message: fallbackMessage, Cause: err}
	}
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("api call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{Status: resp.StatusCode, Message: errorMessage(payload, resp.StatusCode)}
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		// пустое тело допустимо только там, где данные не ждём (DELETE)
		if target == nil {
			return "", nil
		}
		return "", &Error{Status: resp.StatusCode, Message: fallbackMessage, Cause: errors.New("empty response body")}
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", &Error{Status: resp.StatusCode, Message: fallbackMessage, Cause: errors.Wrap(err, "decoding response")}
	}
	if !env.Success {
		return "", &Error{Status: resp.StatusCode, Message: errorMessage(payload, resp.StatusCode)}
	}
	if target != nil {
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return "", &Error{Status: resp.StatusCode, Message: fallbackMessage, Cause: errors.New("response has no data")}
		}
		if err := json.Unmarshal(env.Data, target); err != nil {
			return "", &Error{Status: resp.StatusCode, Message: fallbackMessage, Cause: errors.Wrap(err, "decoding data")}
		}
	}
	return env.Message, nil
}

// errorMessage достаёт поле error (или message) из тела ответа, иначе — общий текст.
func errorMessage(payload []byte, status int) string {
	if gjson.ValidBytes(payload) {
		if msg := gjson.GetBytes(payload, "error").String(); msg != "" {
			return msg
		}
		if msg := gjson.GetBytes(payload, "message").String(); msg != "" {
			return msg
		}
	}
	if txt := http.StatusText(status); txt != "" && status >= 400 {
		return fallbackMessage + ": " + txt
	}
	return fallbackMessage
}
