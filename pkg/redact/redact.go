// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package redact provides helpers for masking purchase secrets before they
// reach log output.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
)

// sensitiveParams are query parameter names whose values never belong in
// log output.
var sensitiveParams = []string{"apikey", "api_key", "passkey", "token", "authToken", "password"}

// Key masks an identifier for logging, showing the first 8 characters only.
func Key(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "***"
}

// Token fully masks a bearer token, keeping only its length as a hint.
func Token(token string) string {
	if token == "" {
		return ""
	}
	return "***"
}

// ReceiptDigest returns a short stable digest of an opaque receipt blob so
// log lines can correlate receipts without leaking their contents.
func ReceiptDigest(receipt []byte) string {
	if len(receipt) == 0 {
		return ""
	}
	sum := sha256.Sum256(receipt)
	return hex.EncodeToString(sum[:4])
}

// URLError strips sensitive query parameter values from any *url.Error in
// err's chain. Errors without a url.Error pass through untouched.
func URLError(err error) error {
	if err == nil {
		return nil
	}

	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}

	redacted := *urlErr
	redacted.URL = redactURL(urlErr.URL)
	return &redacted
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	query := u.Query()
	for _, param := range sensitiveParams {
		if query.Has(param) {
			query.Set(param, "REDACTED")
		}
	}
	u.RawQuery = query.Encode()
	return u.String()
}
