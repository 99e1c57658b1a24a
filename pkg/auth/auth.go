// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wso2/api-platform/listening-party/pkg/core"
)

// HeaderUserID carries the caller identity when no JWT secret is configured.
const HeaderUserID = "X-User-ID"

var ErrExpiredToken = fmt.Errorf("%w: token expired", core.ErrUnauthorized)

type Config struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// Claims accepts both the standard subject and a user_id claim.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Identifier resolves the user behind a request. Tokens are verified only, never issued.
type Identifier struct {
	secret []byte
	issuer string
}

func NewIdentifier(cfg Config) *Identifier {
	var secret []byte
	if cfg.JWTSecret != "" {
		secret = []byte(cfg.JWTSecret)
	}
	return &Identifier{secret: secret, issuer: cfg.Issuer}
}

// Enabled reports whether bearer tokens are required.
func (i *Identifier) Enabled() bool {
	return len(i.secret) > 0
}

// Verify validates an HS256 token and returns its user id.
func (i *Identifier) Verify(tokenString string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return i.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", core.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: invalid token", core.ErrUnauthorized)
	}
	user := claims.UserID
	if user == "" {
		user = claims.Subject
	}
	if user == "" {
		return "", fmt.Errorf("%w: token has no subject", core.ErrUnauthorized)
	}
	return user, nil
}

// UserFromRequest reads the bearer token, falling back to the token query parameter.
// Without a secret the X-User-ID header is trusted.
func (i *Identifier) UserFromRequest(r *http.Request) (string, error) {
	if !i.Enabled() {
		user := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if user == "" {
			return "", fmt.Errorf("%w: missing %s header", core.ErrUnauthorized, HeaderUserID)
		}
		return user, nil
	}

	token := ""
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", fmt.Errorf("%w: malformed authorization header", core.ErrUnauthorized)
		}
		token = strings.TrimSpace(value)
	} else {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return "", fmt.Errorf("%w: missing bearer token", core.ErrUnauthorized)
	}
	return i.Verify(token)
}
