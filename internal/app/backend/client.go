/*
Package backend is the REST client of the accompany backend.

Every endpoint answers with the envelope {"message": string, "data": any}. The client
authenticates with a bearer token, decodes the envelope and returns typed data; non-success
answers surface as *APIError so callers can apply their own mapping (a 404 means "room not
found" to the gate but "already left" to the leave coordinator).
*/
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"accompany/internal/app/chat"
	"accompany/internal/app/user"
	"accompany/internal/pkg/errs"
	"accompany/internal/pkg/logx"
)

// Envelope messages used by the backend.
const (
	MessageSuccess    = "SUCCESS"
	MessageFirstLogin = "FIRST_LOGIN"
	MessageNotMember  = "NOT_MEMBER"
)

const (
	defaultRequestTimeout = 15 * time.Second
	maxResponseBytes      = 4 << 20
)

// Envelope is the common response wrapper.
type Envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// APIError is a response whose status or envelope message is not a success.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: %s %s: status %d, message %q", e.Method, e.Path, e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 answer.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// HasMessage reports whether err is an answer carrying the given envelope message.
func HasMessage(err error, message string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Message == message
}

// Client calls the backend REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient builds a client for baseURL authenticating with token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultRequestTimeout},
		logger:  logx.Component("backend", 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends one request and decodes the envelope. out receives the data field when
// non-nil. Only a 2xx answer with message SUCCESS is a success.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("Backend request failed.")
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("backend: read %s %s: %w", method, path, err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", res.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("Backend request completed.")

	var env Envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && res.StatusCode < 300 {
			return errs.Wrap(errs.ErrUnexpectedResponse, err)
		}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 || env.Message != MessageSuccess {
		return &APIError{Method: method, Path: path, Status: res.StatusCode, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errs.Wrap(errs.ErrUnexpectedResponse, err)
		}
	}
	return nil
}

func roomPath(roomID int64, suffix string) string {
	return fmt.Sprintf("/api/v1/chat/rooms/%d%s", roomID, suffix)
}

// Me resolves the signed-in member. A FIRST_LOGIN answer yields ErrSignupRequired and
// a 401 ErrUnauthorized.
func (c *Client) Me(ctx context.Context) (user.User, error) {
	var me struct {
		UserID       FlexID `json:"userId"`
		Nickname     string `json:"nickname"`
		ProfileImage string `json:"profileImage"`
	}

	err := c.do(ctx, http.MethodGet, "/api/v1/members/me", nil, &me)
	switch {
	case err == nil:
	case HasMessage(err, MessageFirstLogin):
		return user.User{}, errs.Wrap(errs.ErrSignupRequired, err)
	case isStatus(err, http.StatusUnauthorized):
		return user.User{}, errs.Wrap(errs.ErrUnauthorized, err)
	default:
		return user.User{}, err
	}

	return user.User{ID: string(me.UserID), Nickname: me.Nickname, ProfileImage: me.ProfileImage}, nil
}

// CheckEntry asks whether the signed-in member may enter roomID.
func (c *Client) CheckEntry(ctx context.Context, roomID int64) (EntryData, error) {
	var entry EntryData
	if err := c.do(ctx, http.MethodGet, roomPath(roomID, "/entry"), nil, &entry); err != nil {
		return EntryData{}, err
	}
	return entry, nil
}

// History returns the durable messages of roomID in ascending order.
func (c *Client) History(ctx context.Context, roomID int64) ([]chat.Message, error) {
	var msgs []chat.Message
	if err := c.do(ctx, http.MethodGet, roomPath(roomID, "/messages"), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Locations returns the location snapshot of roomID.
func (c *Client) Locations(ctx context.Context, roomID int64) (LocationSnapshot, error) {
	var snap LocationSnapshot
	if err := c.do(ctx, http.MethodGet, roomPath(roomID, "/locations"), nil, &snap); err != nil {
		return LocationSnapshot{}, err
	}
	return snap, nil
}

// UpdateLocation stores the member's own position for roomID.
func (c *Client) UpdateLocation(ctx context.Context, roomID int64, lat, lng float64) error {
	return c.do(ctx, http.MethodPut, roomPath(roomID, "/locations"), LatLng{Lat: lat, Lng: lng}, nil)
}

// Leave removes the member from roomID.
func (c *Client) Leave(ctx context.Context, roomID int64) error {
	return c.do(ctx, http.MethodDelete, roomPath(roomID, "/members/me"), nil, nil)
}

func isStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
