// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package backend

import "context"

// TokenProvider supplies the bearer token for backend calls. Token
// acquisition lives outside this subsystem; implementations typically
// delegate to the app's identity layer.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a plain function to a TokenProvider.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken returns a provider that always yields the given token.
// Used when the shell hands the sidecar a long-lived session token.
func StaticToken(token string) TokenProvider {
	return TokenFunc(func(_ context.Context) (string, error) {
		return token, nil
	})
}
