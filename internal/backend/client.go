// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/keygen-sh/machineid"

	"github.com/furkancekic/braindumpster-ios-sub000/internal/buildinfo"
)

var (
	ErrNoReceiptAvailable = errors.New("no receipt available")
	ErrUnauthorized       = errors.New("backend rejected credentials")
	ErrInvalidResponse    = errors.New("backend response could not be decoded")
	ErrNetwork            = errors.New("network error")
	ErrTimeout            = errors.New("request timed out")
	ErrMaxRetriesExceeded = errors.New("retry budget exhausted")
)

const (
	defaultBaseURL    = "https://api.braindumpster.app"
	requestTimeout    = 30 * time.Second
	maxErrorBodyBytes = 64 * 1024
)

// APIError carries a backend HTTP failure. Status codes >= 500 are
// retryable; 4xx are terminal.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend api error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("backend api error (status %d): %s", e.StatusCode, e.Message)
}

// Client talks to the Braindumpster subscription backend. Every call is
// bearer-authenticated via the injected TokenProvider and retried per the
// configured RetryPolicy.
type Client struct {
	baseURL    string
	userAgent  string
	bundleID   string
	httpClient *http.Client
	tokens     TokenProvider
	policy     RetryPolicy
}

type OptFunc func(*Client)

func WithBaseURL(baseURL string) OptFunc {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithUserAgent(userAgent string) OptFunc {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

func WithBundleID(bundleID string) OptFunc {
	return func(c *Client) {
		c.bundleID = bundleID
	}
}

func WithHTTPClient(httpClient *http.Client) OptFunc {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithTokenProvider(tokens TokenProvider) OptFunc {
	return func(c *Client) {
		if tokens != nil {
			c.tokens = tokens
		}
	}
}

func WithRetryPolicy(policy RetryPolicy) OptFunc {
	return func(c *Client) {
		if policy.MaxAttempts > 0 {
			c.policy = policy
		}
	}
}

func NewClient(opts ...OptFunc) *Client {
	c := &Client{
		baseURL:   defaultBaseURL,
		userAgent: buildinfo.UserAgent(),
		tokens:    StaticToken(""),
		policy:    DefaultRetryPolicy(),
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// DeviceInfo is attached to receipt verification requests so the backend
// can cross-check the purchase environment.
type DeviceInfo struct {
	DeviceModel string `json:"deviceModel"`
	OSVersion   string `json:"osVersion"`
	Locale      string `json:"locale"`
	AppVersion  string `json:"appVersion"`
	BundleID    string `json:"bundleId"`
}

type VerifyReceiptRequest struct {
	ReceiptData string     `json:"receiptData"`
	UserID      string     `json:"userId"`
	DeviceInfo  DeviceInfo `json:"deviceInfo"`
}

type VerifyReceiptResponse struct {
	Success        bool       `json:"success"`
	IsPremium      bool       `json:"isPremium"`
	ProductID      *string    `json:"productId,omitempty"`
	ExpirationDate *time.Time `json:"expirationDate,omitempty"`
	Message        string     `json:"message,omitempty"`
	Environment    string     `json:"environment,omitempty"`
}

type SubscriptionStatus struct {
	IsPremium      bool       `json:"isPremium"`
	Tier           string     `json:"tier"`
	ProductID      string     `json:"productId,omitempty"`
	IsActive       bool       `json:"isActive"`
	WillRenew      bool       `json:"willRenew"`
	ExpirationDate *time.Time `json:"expirationDate,omitempty"`
}

type SyncStatusRequest struct {
	UserID             string             `json:"userId"`
	Timestamp          time.Time          `json:"timestamp"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus"`
}

type StatusResponse struct {
	IsPremium      bool       `json:"isPremium"`
	Tier           string     `json:"tier"`
	ProductID      string     `json:"productId,omitempty"`
	ExpirationDate *time.Time `json:"expirationDate,omitempty"`
}

type cancelRequest struct {
	UserID string `json:"userId"`
}

// VerifyReceipt sends the platform receipt for remote validation. The
// receipt blob must already be in hand; acquiring or refreshing it is the
// caller's job.
func (c *Client) VerifyReceipt(ctx context.Context, receipt []byte, userID string) (*VerifyReceiptResponse, error) {
	if len(receipt) == 0 {
		return nil, ErrNoReceiptAvailable
	}

	req := VerifyReceiptRequest{
		ReceiptData: base64.StdEncoding.EncodeToString(receipt),
		UserID:      userID,
		DeviceInfo:  c.deviceInfo(),
	}

	var resp VerifyReceiptResponse
	if err := c.do(ctx, http.MethodPost, "/verify-receipt", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncStatus pushes a locally-computed subscription status to the backend.
func (c *Client) SyncStatus(ctx context.Context, req SyncStatusRequest) error {
	return c.do(ctx, http.MethodPost, "/subscriptions/sync-status", req, nil)
}

// FetchStatus reads the backend's view of the subscription. Advisory only.
func (c *Client) FetchStatus(ctx context.Context, userID string) (*StatusResponse, error) {
	path := "/subscriptions/status"
	if userID != "" {
		path += "?userId=" + url.QueryEscape(userID)
	}

	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelSubscription asks the backend to flag the subscription as
// cancellation-requested. The store remains the system of record.
func (c *Client) CancelSubscription(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/subscriptions/cancel", cancelRequest{UserID: userID}, nil)
}

func (c *Client) deviceInfo() DeviceInfo {
	model := "unknown"
	if id, err := machineid.ProtectedID("braindumpster"); err == nil {
		model = id
	}

	locale := os.Getenv("LANG")
	if i := strings.IndexByte(locale, '.'); i >= 0 {
		locale = locale[:i]
	}
	if locale == "" {
		locale = "en_US"
	}

	return DeviceInfo{
		DeviceModel: model,
		OSVersion:   runtime.GOOS,
		Locale:      locale,
		AppVersion:  buildinfo.Version,
		BundleID:    c.bundleID,
	}
}

// do runs one authenticated request under the retry policy. Retryable
// failures that survive the budget come back wrapped in
// ErrMaxRetriesExceeded; terminal failures propagate on first sight.
func (c *Client) do(ctx context.Context, method, path string, requestBody, responseBody any) error {
	err := retry.Do(
		func() error {
			return c.doRequest(ctx, method, path, requestBody, responseBody)
		},
		retry.Context(ctx),
		retry.Attempts(c.policy.MaxAttempts),
		retry.RetryIf(isRetryable),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return c.policy.Delay(n)
		}),
	)
	if err != nil && isRetryable(err) {
		return fmt.Errorf("%w: %d attempts: %v", ErrMaxRetriesExceeded, c.policy.MaxAttempts, err)
	}
	return err
}

func (c *Client) doRequest(ctx context.Context, method, path string, requestBody, responseBody any) error {
	var body io.Reader
	if requestBody != nil {
		payload, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquiring bearer token: %v", ErrNetwork, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp)
	}

	if responseBody == nil {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil
	}

	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(responseBody); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return nil
}

func classifyTransportError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	message := strings.TrimSpace(string(body))

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			message = payload.Message
		case payload.Detail != "":
			message = payload.Detail
		case payload.Error != "":
			message = payload.Error
		}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		if message == "" {
			return ErrUnauthorized
		}
		return fmt.Errorf("%w: %s", ErrUnauthorized, message)
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}

// isRetryable implements the error taxonomy split: server errors,
// timeouts and transport failures retry; client errors and undecodable
// responses are terminal.
func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout)
}
