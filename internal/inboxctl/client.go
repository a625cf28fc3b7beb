// Package inboxctl holds the operator side of the inbound processor: a client
// for its admin API and a publisher for synthetic inbound events.
package inboxctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
	"github.com/aradsms/inbox_services/internal/platform/messagebroker"
)

// ErrAdminRequest is wrapped by every non-2xx admin API response.
var ErrAdminRequest = errors.New("admin request failed")

// MintToken signs an HS256 admin token for subject, valid for ttl.
func MintToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("signing admin token: %w", err)
	}
	return token, nil
}

// AdminClient calls the /api/v1 routes of the admin HTTP server.
type AdminClient struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

func NewAdminClient(baseURL, token string, httpClient *http.Client, logger *slog.Logger) *AdminClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &AdminClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
		logger:  logger.With("component", "admin_client"),
	}
}

// do sends body (JSON encoded when non-nil) and returns the raw response body.
func (c *AdminClient) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response of %s %s: %w", method, path, err)
	}
	c.logger.DebugContext(ctx, "Admin API call", "method", method, "path", path, "status", resp.StatusCode)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: %s %s: %d %s", ErrAdminRequest, method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func (c *AdminClient) SetBlockingRule(ctx context.Context, address string, action domain.BlockingAction) ([]byte, error) {
	body := map[string]string{"action": action.String(), "reason": domain.ReasonOf(action)}
	return c.do(ctx, http.MethodPut, "/api/v1/blocking-rules/"+url.PathEscape(address), body)
}

func (c *AdminClient) RemoveBlockingRule(ctx context.Context, address string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/v1/blocking-rules/"+url.PathEscape(address), nil)
	return err
}

func (c *AdminClient) AddContact(ctx context.Context, number, displayName string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/contacts", map[string]string{"number": number, "display_name": displayName})
}

// SetArchived archives or unarchives the conversation of threadID.
func (c *AdminClient) SetArchived(ctx context.Context, threadID int64, archived bool) ([]byte, error) {
	method := http.MethodDelete
	if archived {
		method = http.MethodPut
	}
	return c.do(ctx, method, fmt.Sprintf("/api/v1/conversations/%d/archive", threadID), nil)
}

func (c *AdminClient) ActiveConversation(ctx context.Context) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/api/v1/active-conversation", nil)
}

func (c *AdminClient) SetActiveConversation(ctx context.Context, threadID int64) ([]byte, error) {
	return c.do(ctx, http.MethodPut, "/api/v1/active-conversation", map[string]int64{"thread_id": threadID})
}

func (c *AdminClient) ClearActiveConversation(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/v1/active-conversation", nil)
	return err
}

func (c *AdminClient) Preferences(ctx context.Context) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/api/v1/preferences", nil)
}

func (c *AdminClient) UpdatePreferences(ctx context.Context, prefs domain.Preferences) ([]byte, error) {
	body := map[string]any{"drop_blocked": prefs.DropBlocked, "blocking_manager": string(prefs.BlockingManager)}
	return c.do(ctx, http.MethodPut, "/api/v1/preferences", body)
}

// EventPublisher publishes synthetic transport events onto the inbound
// subjects the service consumes.
type EventPublisher struct {
	publisher  messagebroker.Publisher
	smsSubject string
	mmsSubject string
}

func NewEventPublisher(publisher messagebroker.Publisher, smsSubject, mmsSubject string) *EventPublisher {
	return &EventPublisher{publisher: publisher, smsSubject: smsSubject, mmsSubject: mmsSubject}
}

// PublishSMS sends one SMS from address whose text is split across one frame
// per element of parts. All frames share timestampMillis.
func (p *EventPublisher) PublishSMS(ctx context.Context, subscriptionID int, address string, parts []string, timestampMillis int64) error {
	req := domain.InboundSMSRequest{SubscriptionID: subscriptionID}
	for _, part := range parts {
		body := part
		req.Frames = append(req.Frames, domain.InboundSMSFrameRequest{
			OriginatingAddress: address,
			Body:               &body,
			TimestampMillis:    timestampMillis,
		})
	}
	return p.publish(ctx, p.smsSubject, req)
}

func (p *EventPublisher) PublishMMS(ctx context.Context, locator string) error {
	return p.publish(ctx, p.mmsSubject, domain.InboundMMSRequest{Locator: locator})
}

func (p *EventPublisher) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding event for %s: %w", subject, err)
	}
	return p.publisher.Publish(ctx, subject, data)
}
