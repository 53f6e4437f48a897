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
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/taskmesh/expertrouter/shared/types"
)

// DefaultPollInterval is how often Ask re-checks session status while
// waiting on an answer.
const DefaultPollInterval = 2 * time.Second

// Adapter implements spec §4.5's ask(prompt_template, request) →
// HumanResponse | Timeout | Cancelled operation.
type Adapter struct {
	transport    Transport
	cache        SessionCache // optional
	signer       TokenSigner  // optional
	pollInterval time.Duration
	logger       *log.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithSessionCache attaches a SessionCache for cross-replica visibility
// into in-flight sessions.
func WithSessionCache(c SessionCache) Option {
	return func(a *Adapter) { a.cache = c }
}

// WithTokenSigner attaches a TokenSigner for idempotent session
// creation. Without one, Ask sends no idempotency token.
func WithTokenSigner(s TokenSigner) Option {
	return func(a *Adapter) { a.signer = s }
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(a *Adapter) { a.pollInterval = d }
}

// New constructs an Adapter over transport.
func New(transport Transport, opts ...Option) *Adapter {
	a := &Adapter{
		transport:    transport,
		pollInterval: DefaultPollInterval,
		logger:       log.New(os.Stdout, "[HUMANLOOP] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ask builds an InteractionSession of kind for req, delivers it to the
// external service, and blocks until the session reaches a terminal
// state or ctx is cancelled (spec §4.5 steps 1-5).
//
// On success it returns the answered session (Status == SessionAnswered)
// and a nil error. Otherwise it returns a *types.Error: ErrTimeout if
// the session's own expiry elapsed first, ErrCancelled if ctx was
// cancelled, or ErrHumanLoopUnavailable if the service could not be
// reached at all.
func (a *Adapter) Ask(ctx context.Context, kind types.SessionKind, title, message string, options []string, fields map[string]string, req types.Request) (types.InteractionSession, error) {
	now := time.Now()
	timeout := kind.DefaultTimeout()
	session := types.InteractionSession{
		SessionID: uuid.NewString(),
		RequestID: req.ID,
		Kind:      kind,
		Title:     title,
		Message:   message,
		Options:   options,
		Fields:    fields,
		Status:    types.SessionPending,
		CreatedAt: now,
		ExpiresAt: now.Add(timeout),
	}

	var token string
	if a.signer != nil {
		t, err := a.signer.Sign(session.SessionID, req.ID)
		if err != nil {
			a.logger.Printf("sign idempotency token: %v", err)
		} else {
			token = t
		}
	}

	if err := a.transport.CreateSession(ctx, session, token); err != nil {
		a.logger.Printf("create session %s: %v", session.SessionID, err)
		return session, types.NewError(types.ErrHumanLoopUnavailable, req.ID, "human interaction service unreachable", err)
	}

	if a.cache != nil {
		if err := a.cache.Put(ctx, session); err != nil {
			a.logger.Printf("cache session %s: %v", session.SessionID, err)
		}
	}

	result, err := a.poll(ctx, session)

	if a.cache != nil {
		a.cache.Delete(context.Background(), session.SessionID)
	}

	return result, err
}

// poll repeatedly fetches session status until it reaches a terminal
// state, the session's own expiry passes, or ctx is cancelled. On
// cancellation it issues a best-effort cancel against the external
// service without blocking the caller on that cancel's own response
// (spec §4.5 step 5).
func (a *Adapter) poll(ctx context.Context, session types.InteractionSession) (types.InteractionSession, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			go a.bestEffortCancel(session.SessionID)
			session.Status = types.SessionCancelled
			return session, types.NewError(types.ErrCancelled, session.RequestID, "request context cancelled while awaiting human input", ctx.Err())

		case <-ticker.C:
			if time.Now().After(session.ExpiresAt) {
				go a.bestEffortCancel(session.SessionID)
				session.Status = types.SessionTimeout
				return session, types.NewError(types.ErrTimeout, session.RequestID, "human interaction session expired without a response", nil)
			}

			latest, err := a.transport.PollSession(ctx, session.SessionID)
			if err != nil {
				a.logger.Printf("poll session %s: %v", session.SessionID, err)
				continue
			}
			if latest.Status.Terminal() {
				if latest.Status == types.SessionTimeout {
					return latest, types.NewError(types.ErrTimeout, session.RequestID, "human interaction session expired without a response", nil)
				}
				if latest.Status == types.SessionCancelled {
					return latest, types.NewError(types.ErrCancelled, session.RequestID, "human interaction session was cancelled", nil)
				}
				return latest, nil
			}
		}
	}
}

func (a *Adapter) bestEffortCancel(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.transport.CancelSession(ctx, sessionID); err != nil {
		a.logger.Printf("best-effort cancel session %s: %v", sessionID, err)
	}
}
