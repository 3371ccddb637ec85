// Package upstream talks to the remote extension-service API that owns the
// sector and technician records.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxResponseBytes = 8 << 20

var (
	ErrUnauthorized = errors.New("upstream rejected credentials")
	ErrUnavailable  = errors.New("upstream unavailable")
	ErrUpstream     = errors.New("upstream request failed")
)

// StatusError reports a non-2xx answer that is not an auth failure.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned %s", e.Status)
	}
	return fmt.Sprintf("upstream returned %s: %s", e.Status, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUpstream
}

type Config struct {
	BaseURL      string
	FarmInputsID string
	ProgressID   string
	Timeout      time.Duration
}

type Client struct {
	baseURL      string
	farmInputsID string
	progressID   string
	http         *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		farmInputsID: strings.TrimSpace(cfg.FarmInputsID),
		progressID:   strings.TrimSpace(cfg.ProgressID),
		http:         httpClient,
	}
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Fullname string `json:"fullname"`
}

type Session struct {
	Token string
	User  User
}

func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return Session{}, err
	}

	var out struct {
		Data struct {
			User  map[string]any `json:"user"`
			Token string         `json:"token"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "users/login", nil, "", bytes.NewReader(payload), &out); err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(out.Data.Token) == "" {
		return Session{}, fmt.Errorf("%w: login response carried no token", ErrUpstream)
	}

	user := User{
		ID:       stringField(out.Data.User, "id"),
		Username: firstNonEmpty(stringField(out.Data.User, "username"), username),
		Fullname: stringField(out.Data.User, "fullname"),
	}
	return Session{Token: out.Data.Token, User: user}, nil
}

type DistributionQuery struct {
	Offset int
	Limit  int
	Filter string
	Phase  string
}

type ProgressQuery struct {
	Limit int
}

func (c *Client) FetchDistribution(ctx context.Context, token string, q DistributionQuery) (DistributionResult, error) {
	if q.Offset <= 0 {
		q.Offset = 1
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Phase == "" {
		q.Phase = "nurseries"
	}
	params := url.Values{}
	params.Set("offset", strconv.Itoa(q.Offset))
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("filter", q.Filter)
	params.Set("phase", q.Phase)

	var out struct {
		Data *distributionPayload `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "analytics/farm-inputs/"+url.PathEscape(c.farmInputsID), params, token, nil, &out); err != nil {
		return DistributionResult{}, err
	}
	res := decodeDistribution(out.Data)
	logValidation(ctx, "distribution", res.Invalid)
	return res, nil
}

func (c *Client) FetchProgress(ctx context.Context, token string, q ProgressQuery) (ProgressResult, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	params := url.Values{}
	params.Set("_limit", strconv.Itoa(q.Limit))

	var out struct {
		Data *progressPayload `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "last-week/"+url.PathEscape(c.progressID), params, token, nil, &out); err != nil {
		return ProgressResult{}, err
	}
	res := decodeProgress(out.Data)
	logValidation(ctx, "progress", res.Invalid)
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, token string, body io.Reader, out any) error {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	logger := zerolog.Ctx(ctx)
	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("upstream request failed")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("upstream response")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(snippet))}
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUpstream, path, err)
	}
	return nil
}

func logValidation(ctx context.Context, report string, invalid []ValidationError) {
	if len(invalid) == 0 {
		return
	}
	logger := zerolog.Ctx(ctx)
	for _, v := range invalid {
		logger.Warn().
			Str("report", report).
			Int("index", v.Index).
			Str("field", v.Field).
			Msg(v.Reason)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		t := strings.TrimSpace(v)
		if t != "" {
			return t
		}
	}
	return ""
}
