package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/mimora/domain"
	"github.com/you/mimora/internal/mocks"
	"github.com/you/mimora/internal/services"
)

const testClientID = "5f0c7e52-8d8a-4e33-9a53-0b2f4a7f6d11"

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSource struct {
	client *services.Client
	err    error
	ids    []string
	ctx    context.Context
}

func (s *stubSource) Get(ctx context.Context, id string) (*services.Client, error) {
	s.ids = append(s.ids, id)
	s.ctx = ctx
	return s.client, s.err
}

func newTestClient(t *testing.T, audit domain.AuditLogger) *services.Client {
	t.Helper()

	l := logrus.New()
	l.SetOutput(io.Discard)
	factory := services.NewClientFactory(
		func(string) domain.Store { return mocks.NewMockStore() },
		services.SessionDeps{
			Identity: mocks.NewMockIdentityProvider(),
			Profiles: mocks.NewMockProfileService(),
			Tokens:   mocks.NewMockTokenService(),
			Audit:    audit,
			Clock:    mocks.NewManualClock(time.Now()),
			Log:      logrus.NewEntry(l),
		},
		mocks.NewMockUploader(),
		services.SessionConfig{ResendCooldown: 30 * time.Second, ExpiryCheckInterval: 5 * time.Minute},
	)
	c := factory(context.Background(), testClientID)
	t.Cleanup(c.Close)
	return c
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestClientMW_Resolve(t *testing.T) {
	tests := []struct {
		name           string
		header         string
		sourceErr      error
		expectedStatus int
	}{
		{name: "missing header", header: "", expectedStatus: http.StatusBadRequest},
		{name: "not a uuid", header: "client-1", expectedStatus: http.StatusBadRequest},
		{name: "registry closed", header: testClientID, sourceErr: domain.ErrClosed, expectedStatus: http.StatusServiceUnavailable},
		{name: "resolved", header: testClientID, expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &stubSource{client: &services.Client{ID: testClientID}, err: tt.sourceErr}
			mw := NewClientMW(src)

			r := gin.New()
			r.GET("/x", mw.Resolve(), func(c *gin.Context) {
				client := ClientFrom(c)
				require.NotNil(t, client)
				c.JSON(http.StatusOK, gin.H{"id": client.ID})
			})

			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.header != "" {
				req.Header.Set(ClientHeader, tt.header)
			}
			req.Header.Set("User-Agent", "mimora-test")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, testClientID, decode(t, w)["id"])
				require.Len(t, src.ids, 1)
				cc := domain.ClientContextFrom(src.ctx)
				require.NotNil(t, cc)
				assert.Equal(t, testClientID, cc.ClientID)
				assert.Equal(t, "mimora-test", cc.UserAgent)
			}
		})
	}
}

func TestClientFrom_Unset(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, ClientFrom(c))
}

func TestAdminMW_RequireKey(t *testing.T) {
	tests := []struct {
		name           string
		key            string
		header         string
		expectedStatus int
	}{
		{name: "no header", key: "s3cret", expectedStatus: http.StatusUnauthorized},
		{name: "wrong scheme", key: "s3cret", header: "Basic s3cret", expectedStatus: http.StatusUnauthorized},
		{name: "wrong key", key: "s3cret", header: "Bearer nope", expectedStatus: http.StatusForbidden},
		{name: "no key configured", key: "", header: "Bearer ", expectedStatus: http.StatusForbidden},
		{name: "valid key", key: "s3cret", header: "Bearer s3cret", expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/admin", NewAdminMW(tt.key).RequireKey(), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestViewGuardMW_Enforce(t *testing.T) {
	customer := &domain.CustomerAccount{ID: "customer-1", Phone: "+919812345678", CreatedAt: time.Now()}
	incomplete := &domain.ArtistAccount{ID: "artist-1", Phone: "+919812345678", CreatedAt: time.Now()}
	complete := &domain.ArtistAccount{ID: "artist-2", Phone: "+919812345679", ProfileCompleted: true, CreatedAt: time.Now()}

	tests := []struct {
		name             string
		account          domain.Account
		path             string
		expectedStatus   int
		expectedRedirect string
		expectedGranted  bool
	}{
		{name: "signed out", path: "/views/customer/home", expectedStatus: http.StatusUnauthorized, expectedRedirect: services.LoginPath},
		{name: "artist onboarding incomplete", account: incomplete, path: "/views/artist/home", expectedStatus: http.StatusForbidden, expectedRedirect: services.OnboardingPath},
		{name: "customer own view", account: customer, path: "/views/customer/home", expectedStatus: http.StatusOK, expectedGranted: true},
		{name: "customer common view", account: customer, path: "/views/common/help", expectedStatus: http.StatusOK, expectedGranted: true},
		{name: "customer artist view", account: customer, path: "/views/artist/home", expectedStatus: http.StatusForbidden},
		{name: "artist own view", account: complete, path: "/views/artist/home", expectedStatus: http.StatusOK, expectedGranted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audit := mocks.NewMockAuditLogger()
			client := newTestClient(t, audit)
			if tt.account != nil {
				token := "session:" + string(tt.account.AccountRole()) + ":" + tt.account.AccountID()
				require.NoError(t, client.Session.CompleteAuth(context.Background(), tt.account, token))
			}

			guard := NewViewGuardMW(services.NewRouteGuard(), mocks.NewMockPolicyService(), audit)
			r := gin.New()
			r.GET("/views/*view", func(c *gin.Context) {
				c.Set(clientKey, client)
				c.Next()
			}, guard.Enforce(), func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"view": c.GetString("view"), "role": c.GetString("role")})
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			body := decode(t, w)
			if tt.expectedRedirect != "" {
				assert.Equal(t, tt.expectedRedirect, body["redirect_to"])
			}
			if tt.expectedGranted {
				assert.Equal(t, tt.path, body["view"])
				assert.Equal(t, 1, audit.Count(domain.AccessGrantedEvent))
			} else {
				assert.Equal(t, 1, audit.Count(domain.AccessDeniedEvent))
			}
		})
	}
}

func TestViewGuardMW_PolicyError(t *testing.T) {
	audit := mocks.NewMockAuditLogger()
	client := newTestClient(t, audit)
	customer := &domain.CustomerAccount{ID: "customer-1", CreatedAt: time.Now()}
	require.NoError(t, client.Session.CompleteAuth(context.Background(), customer, "session:customer:customer-1"))

	policies := mocks.NewMockPolicyService()
	policies.CheckPermissionFunc = func(role, resource, action string) (bool, error) {
		return false, errors.New("adapter down")
	}
	guard := NewViewGuardMW(services.NewRouteGuard(), policies, audit)

	r := gin.New()
	r.GET("/views/*view", func(c *gin.Context) {
		c.Set(clientKey, client)
		c.Next()
	}, guard.Enforce(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/views/customer/home", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestViewGuardMW_NoClient(t *testing.T) {
	guard := NewViewGuardMW(services.NewRouteGuard(), mocks.NewMockPolicyService(), mocks.NewMockAuditLogger())
	r := gin.New()
	r.GET("/views/*view", guard.Enforce(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/views/customer/home", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
