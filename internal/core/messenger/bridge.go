// Package messenger talks to the messaging bridge, a sidecar process that
// owns the platform protocol and exposes it as a small JSON API. One login
// yields a bridge token, which backs exactly one domain.MessengerHandle.
package messenger

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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/duynhne/group-admin-service/internal/core/domain"
)

const maxErrorBody = 4 << 10

// BridgeClient implements domain.Authenticator against the bridge HTTP API.
type BridgeClient struct {
	baseURL string
	http    *http.Client
}

// NewBridgeClient creates a client for the bridge at baseURL. timeout bounds
// every individual request.
func NewBridgeClient(baseURL string, timeout time.Duration) *BridgeClient {
	return &BridgeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type loginRequest struct {
	AppState domain.AppState `json:"appState"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Login exchanges appState for a bridge session.
func (c *BridgeClient) Login(ctx context.Context, appState domain.AppState) (domain.MessengerHandle, error) {
	var resp loginResponse
	err := c.do(ctx, "", http.MethodPost, "/login", loginRequest{AppState: appState}, &resp)
	if err != nil {
		var upstream *domain.UpstreamError
		if errors.As(err, &upstream) && (upstream.Status == http.StatusUnauthorized || upstream.Status == http.StatusForbidden) {
			upstream.Err = domain.ErrAuthRejected
		}
		return nil, err
	}
	if resp.Token == "" {
		return nil, &domain.UpstreamError{Op: "login", Status: http.StatusOK, Message: "bridge returned no token"}
	}
	return &bridgeHandle{client: c, token: resp.Token}, nil
}

type bridgeHandle struct {
	client *BridgeClient
	token  string
}

func (h *bridgeHandle) GetThreadList(ctx context.Context, limit int, before string, tags []string) ([]domain.Thread, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if before != "" {
		q.Set("before", before)
	}
	for _, tag := range tags {
		q.Add("tags", tag)
	}

	var threads []domain.Thread
	if err := h.client.do(ctx, h.token, http.MethodGet, "/threads?"+q.Encode(), nil, &threads); err != nil {
		return nil, err
	}
	return threads, nil
}

func (h *bridgeHandle) GetThreadInfo(ctx context.Context, threadID string) (*domain.ThreadInfo, error) {
	var info domain.ThreadInfo
	if err := h.client.do(ctx, h.token, http.MethodGet, "/threads/"+url.PathEscape(threadID), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (h *bridgeHandle) SetTitle(ctx context.Context, title, threadID string) error {
	body := map[string]string{"title": title}
	return h.client.do(ctx, h.token, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/title", body, nil)
}

func (h *bridgeHandle) ChangeNickname(ctx context.Context, nickname, threadID, userID string) error {
	body := map[string]string{"nickname": nickname}
	path := "/threads/" + url.PathEscape(threadID) + "/nicknames/" + url.PathEscape(userID)
	return h.client.do(ctx, h.token, http.MethodPost, path, body, nil)
}

func (h *bridgeHandle) Logout(ctx context.Context) error {
	return h.client.do(ctx, h.token, http.MethodPost, "/logout", nil, nil)
}

// do sends one JSON request and decodes a JSON response into out (if non-nil).
// Non-2xx answers become *domain.UpstreamError.
func (c *BridgeClient) do(ctx context.Context, token, method, path string, in, out any) error {
	op := strings.TrimPrefix(strings.SplitN(path, "?", 2)[0], "/")

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(raw))
		var e errorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &domain.UpstreamError{Op: op, Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
