package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-github/v69/github"
	ghlib "github.com/patchpanda/patchpanda-gateway/internal/github"
	"github.com/patchpanda/patchpanda-gateway/internal/signature"
	"github.com/stretchr/testify/require"
)

type mockService struct {
	HandleFn func(context.Context, Envelope) (Outcome, error)
}

func (m *mockService) Handle(
	ctx context.Context,
	envelope Envelope,
) (Outcome, error) {
	return m.HandleFn(ctx, envelope)
}

func TestNewHandler(t *testing.T) {
	s := &mockService{}
	h := NewHandler(s)
	require.Same(t, s, h.Service)
	require.NotNil(t, h.nowFn)
}

func TestHandlerServeHTTP(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	testCases := []struct {
		name       string
		handleFn   func(context.Context, Envelope) (Outcome, error)
		assertions func(*httptest.ResponseRecorder)
	}{
		{
			name: "envelope is built from request",
			handleFn: func(_ context.Context, envelope Envelope) (Outcome, error) {
				require.Equal(t, []byte(`{"test":"data"}`), envelope.Body)
				require.Equal(t, "sha256=abc", envelope.Signature)
				require.Equal(t, "issue_comment", envelope.EventType)
				require.Equal(t, "delivery-1", envelope.DeliveryID)
				return Outcome{
					Status: StatusCommentProcessed,
					JobIDs: []string{"job-1"},
				}, nil
			},
			assertions: func(rr *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusOK, rr.Code)
				require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
				require.JSONEq(
					t,
					`{"status":"comment_processed","jobIDs":["job-1"]}`,
					rr.Body.String(),
				)
			},
		},
		{
			name: "authentication error",
			handleFn: func(context.Context, Envelope) (Outcome, error) {
				return Outcome{}, &AuthenticationError{Detail: "Invalid signature"}
			},
			assertions: func(rr *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusUnauthorized, rr.Code)
				require.JSONEq(t, `{"detail":"Invalid signature"}`, rr.Body.String())
			},
		},
		{
			name: "parse error",
			handleFn: func(context.Context, Envelope) (Outcome, error) {
				return Outcome{}, &ParseError{Err: errors.New("bad")}
			},
			assertions: func(rr *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
				require.JSONEq(t, `{"detail":"Invalid JSON payload"}`, rr.Body.String())
			},
		},
		{
			name: "rate limited",
			handleFn: func(context.Context, Envelope) (Outcome, error) {
				return Outcome{}, &ghlib.RateLimitedError{
					Reset: now.Add(90*time.Second + 100*time.Millisecond),
				}
			},
			assertions: func(rr *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusTooManyRequests, rr.Code)
				require.Equal(t, "91", rr.Header().Get("Retry-After"))
			},
		},
		{
			name: "upstream auth error",
			handleFn: func(context.Context, Envelope) (Outcome, error) {
				return Outcome{}, &ghlib.UpstreamAuthError{
					InstallationID: 7,
					StatusCode:     http.StatusUnauthorized,
				}
			},
			assertions: func(rr *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusBadGateway, rr.Code)
			},
		},
		{
			name: "identity error",
			handleFn: func(context.Context, Envelope) (Outcome, error) {
				return Outcome{}, &ghlib.IdentityError{Reason: "no private key"}
			},
			assertions: func(rr *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusInternalServerError, rr.Code)
			},
		},
		{
			name: "unexpected error",
			handleFn: func(context.Context, Envelope) (Outcome, error) {
				return Outcome{}, errors.New("something went wrong")
			},
			assertions: func(rr *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusInternalServerError, rr.Code)
				require.JSONEq(t, `{"detail":"Internal server error"}`, rr.Body.String())
			},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			h := &Handler{
				Service: &mockService{HandleFn: testCase.handleFn},
				nowFn:   func() time.Time { return now },
			}
			req := httptest.NewRequest(
				http.MethodPost,
				"/webhooks/github",
				bytes.NewBufferString(`{"test":"data"}`),
			)
			req.Header.Set(github.SHA256SignatureHeader, "sha256=abc")
			req.Header.Set(github.EventTypeHeader, "issue_comment")
			req.Header.Set(github.DeliveryIDHeader, "delivery-1")
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			testCase.assertions(rr)
		})
	}
}

func TestHandlerEndToEnd(t *testing.T) {
	comments := 0
	h := NewHandler(
		NewService(
			signature.NewVerifier(testWebhookSecret),
			&mockCommentHandler{
				HandleCommentFn: func(
					context.Context,
					*github.IssueCommentEvent,
				) ([]string, error) {
					comments++
					return nil, nil
				},
			},
			&mockPullRequestHandler{},
		),
	)
	server := httptest.NewServer(h)
	defer server.Close()

	post := func(eventType string, body []byte, sig string) *http.Response {
		req, err := http.NewRequest(
			http.MethodPost,
			server.URL,
			bytes.NewReader(body),
		)
		require.NoError(t, err)
		if eventType != "" {
			req.Header.Set(github.EventTypeHeader, eventType)
		}
		if sig != "" {
			req.Header.Set(github.SHA256SignatureHeader, sig)
		}
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return res
	}

	body := []byte(`{"test":"data"}`)
	sig := signature.Generate(body, testWebhookSecret)

	res := post("issue_comment", body, sig)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	outcome := Outcome{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&outcome))
	require.Equal(t, StatusCommentProcessed, outcome.Status)
	require.Equal(t, 1, comments)

	res = post("issue_comment", []byte(`{"test":"tampered"}`), sig)
	defer res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// Signatures are checked before the event type is looked at
	res = post("", []byte(`{"test":"tampered"}`), sig)
	defer res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	resBody := errorResponse{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&resBody))
	require.Equal(t, "Invalid signature", resBody.Detail)

	res = post("issue_comment", body, "")
	defer res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	resBody = errorResponse{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&resBody))
	require.Equal(t, "Missing signature header", resBody.Detail)

	notJSON := []byte("not json")
	res = post("issue_comment", notJSON, signature.Generate(notJSON, testWebhookSecret))
	defer res.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)

	require.Equal(t, 1, comments)
}

func TestRetryAfterSeconds(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	require.Equal(t, 30, retryAfterSeconds(now.Add(30*time.Second), now))
	require.Equal(t, 31, retryAfterSeconds(now.Add(30*time.Second+time.Millisecond), now))
	require.Equal(t, 1, retryAfterSeconds(now, now))
	require.Equal(t, 1, retryAfterSeconds(now.Add(-time.Minute), now))
}
