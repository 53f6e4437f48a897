// Copyright 2025 ExpertRouter
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package humanloop

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSigner mints the idempotency token that accompanies session
// creation, letting the external service de-duplicate a session that
// got created but whose response was lost to a retry (spec §4.5 step
// 2: "an idempotency token so a retried creation never double-delivers
// the prompt").
type TokenSigner interface {
	Sign(sessionID, requestID string) (string, error)
}

// JWTSigner mints HS256 idempotency tokens, reusing the
// golang-jwt/jwt/v5 dependency already wired for service-to-service
// auth elsewhere in the stack.
type JWTSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTSigner constructs a JWTSigner. ttl bounds how long the token
// remains valid for de-duplication purposes; it should comfortably
// exceed the retry window, not the session's own expiry.
func NewJWTSigner(secret []byte, ttl time.Duration) *JWTSigner {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &JWTSigner{secret: secret, ttl: ttl}
}

type idempotencyClaims struct {
	SessionID string `json:"session_id"`
	RequestID string `json:"request_id"`
	jwt.RegisteredClaims
}

func (s *JWTSigner) Sign(sessionID, requestID string) (string, error) {
	now := time.Now()
	claims := idempotencyClaims{
		SessionID: sessionID,
		RequestID: requestID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
