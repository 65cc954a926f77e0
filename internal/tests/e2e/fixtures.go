package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/you/mimora/domain"
	testconfig "github.com/you/mimora/internal/tests/config"
)

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

// Message is one SMS or email captured by the Outbox
type Message struct {
	To      string
	Subject string
	Body    string
}

// Outbox captures outbound notifications instead of sending them
type Outbox struct {
	mu       sync.Mutex
	messages []Message
}

// NewOutbox creates an empty outbox
func NewOutbox() *Outbox {
	return &Outbox{}
}

// SendSMS implements domain.NotificationService
func (o *Outbox) SendSMS(to, message string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, Message{To: to, Body: message})
	return nil
}

// SendEmail implements domain.NotificationService
func (o *Outbox) SendEmail(to, subject, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, Message{To: to, Subject: subject, Body: body})
	return nil
}

// LastCode returns the most recent code sent to target
func (o *Outbox) LastCode(t *testing.T, target string) string {
	t.Helper()

	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.messages) - 1; i >= 0; i-- {
		if o.messages[i].To != target {
			continue
		}
		if m := codePattern.FindStringSubmatch(o.messages[i].Body); m != nil {
			return m[1]
		}
	}
	t.Fatalf("no code sent to %s", target)
	return ""
}

// Count returns how many messages were sent to target
func (o *Outbox) Count(target string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, m := range o.messages {
		if m.To == target {
			n++
		}
	}
	return n
}

var _ domain.NotificationService = (*Outbox)(nil)

// APIClient is one browser tab talking to the test server
type APIClient struct {
	ID     string
	t      *testing.T
	server *TestServer
}

// Response is a decoded API response
type Response struct {
	Status     int             `json:"-"`
	Error      string          `json:"error"`
	Field      string          `json:"field"`
	RedirectTo string          `json:"redirect_to"`
	Data       json.RawMessage `json:"data"`
	Raw        []byte          `json:"-"`
}

// Decode unmarshals the data envelope into out
func (r *Response) Decode(t *testing.T, out any) {
	t.Helper()
	if err := json.Unmarshal(r.Data, out); err != nil {
		t.Fatalf("decode %s: %v", r.Raw, err)
	}
}

// NewClient returns a client with a fresh client ID
func (s *TestServer) NewClient(t *testing.T) *APIClient {
	return s.ClientWithID(t, uuid.NewString())
}

// ClientWithID returns a client reusing id, like a reloaded tab
func (s *TestServer) ClientWithID(t *testing.T, id string) *APIClient {
	return &APIClient{ID: id, t: t, server: s}
}

// Do sends a JSON request
func (c *APIClient) Do(method, path string, body any) *Response {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.server.Server.URL+path, &buf)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req)
}

// Upload posts a multipart file
func (c *APIClient) Upload(path, filename string, data []byte) *Response {
	c.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		c.t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		c.t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, c.server.Server.URL+path, &buf)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req)
}

// Admin sends a request with the admin key instead of a client ID
func (s *TestServer) Admin(t *testing.T, method, path string, body any) *Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.Server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testconfig.GetTestAdminKey())
	return decodeResponse(t, s.Server.Client(), req)
}

func (c *APIClient) send(req *http.Request) *Response {
	c.t.Helper()
	req.Header.Set("X-Client-ID", c.ID)
	return decodeResponse(c.t, c.server.Server.Client(), req)
}

func decodeResponse(t *testing.T, client *http.Client, req *http.Request) *Response {
	t.Helper()

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	out := &Response{Status: resp.StatusCode, Raw: raw}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return out
}

// SessionView is the decoded session payload
type SessionView struct {
	Session domain.Session             `json:"session"`
	Account AccountView                `json:"account"`
	Phone   domain.VerificationAttempt `json:"phone"`
	Email   domain.VerificationAttempt `json:"email"`
	Notices []domain.Notice            `json:"notices"`
}

// AccountView is the account carried by a session response
type AccountView struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	ProfileCompleted bool   `json:"profile_completed"`
}

// Session decodes a session response
func (r *Response) Session(t *testing.T) SessionView {
	t.Helper()
	var v SessionView
	r.Decode(t, &v)
	return v
}

// Expect fails the test unless the response has status
func (r *Response) Expect(t *testing.T, status int) *Response {
	t.Helper()
	if r.Status != status {
		t.Fatalf("expected status %d, got %d: %s", status, r.Status, r.Raw)
	}
	return r
}

// SignIn selects role and completes OTP verification on channel
func (c *APIClient) SignIn(role domain.Role, channel domain.Channel, identifier string, mode domain.AuthMode) SessionView {
	c.t.Helper()

	c.Do(http.MethodPost, "/api/v1/session/role", map[string]any{"role": role}).Expect(c.t, http.StatusOK)
	c.Do(http.MethodPost, "/api/v1/auth/otp/send", map[string]any{
		"channel":    channel,
		"identifier": identifier,
		"mode":       mode,
	}).Expect(c.t, http.StatusOK)
	code := c.server.Outbox.LastCode(c.t, identifier)
	return c.Do(http.MethodPost, "/api/v1/auth/otp/verify", map[string]any{"code": code}).
		Expect(c.t, http.StatusOK).Session(c.t)
}
