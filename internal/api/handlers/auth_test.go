package handlers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"testing"

	"github.com/dom/neighbor-group/internal/api/handlers"
	"github.com/dom/neighbor-group/internal/api/middleware"
	"github.com/dom/neighbor-group/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// post sends a JSON body, optionally signed in and forwarded for ip. The
// forwarded address only counts when the server trusts loopback as a proxy.
func post(t *testing.T, ts *testutil.TestServer, path string, body interface{}, token, ip string) *http.Response {
	t.Helper()

	req := testutil.CreateAuthenticatedRequest(t, http.MethodPost, ts.APIURL(path), body, token)
	if ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, ts *testutil.TestServer, path, token string) *http.Response {
	t.Helper()

	req := testutil.CreateAuthenticatedRequest(t, http.MethodGet, ts.APIURL(path), nil, token)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookie {
			return c
		}
	}
	return nil
}

func TestAuthHandler_Signup(t *testing.T) {
	ts := testutil.NewTestServer(t)
	testutil.NewUserBuilder().WithEmail("taken@example.com").Build(t, ts.DB.DB)

	tests := []struct {
		name           string
		request        map[string]string
		expectedStatus int
		expectedCode   string
		checkResponse  func(*testing.T, *http.Response)
	}{
		{
			name: "successful signup",
			request: map[string]string{
				"name":     "Ann Smith",
				"email":    "Ann@Example.com",
				"password": "Passw0rd",
			},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, resp *http.Response) {
				var result testutil.AuthResponse
				testutil.AssertJSONResponse(t, resp, &result)
				assert.Equal(t, "Ann Smith", result.User.Name)
				assert.Equal(t, "ann@example.com", result.User.Email)
				assert.Equal(t, "ann", result.User.Slug)
				assert.NotEmpty(t, result.Token)
				assert.Equal(t, "/", result.Redirect)

				cookie := sessionCookie(resp)
				require.NotNil(t, cookie)
				assert.Equal(t, result.Token, cookie.Value)
				assert.True(t, cookie.HttpOnly)
			},
		},
		{
			name:           "missing name",
			request:        map[string]string{"email": "b@example.com", "password": "Passw0rd"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION",
		},
		{
			name:           "short password",
			request:        map[string]string{"name": "Bo", "email": "bo@example.com", "password": "short"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION",
		},
		{
			name:           "duplicate email",
			request:        map[string]string{"name": "Cy", "email": "taken@example.com", "password": "Passw0rd"},
			expectedStatus: http.StatusConflict,
			expectedCode:   "DUPLICATE_EMAIL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts, "/auth/signup", tt.request, "", "")

			if tt.expectedCode != "" {
				testutil.AssertErrorResponse(t, resp, tt.expectedStatus, tt.expectedCode)
				return
			}
			testutil.AssertStatusCode(t, resp, tt.expectedStatus)
			if tt.checkResponse != nil {
				tt.checkResponse(t, resp)
			}
		})
	}
}

func TestAuthHandler_InvalidBody(t *testing.T) {
	ts := testutil.NewTestServer(t)

	for _, path := range []string{"/auth/signup", "/auth/login", "/auth/password"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Post(ts.APIURL(path), "application/json", bytes.NewBufferString("{not json"))
			require.NoError(t, err)
			defer resp.Body.Close()

			testutil.AssertErrorResponse(t, resp, http.StatusBadRequest, "INVALID_BODY")
		})
	}
}

func TestAuthHandler_AlreadySignedIn(t *testing.T) {
	ts := testutil.NewTestServer(t)
	_, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	resp := post(t, ts, "/auth/signup", map[string]string{
		"name": "Again", "email": "again@example.com", "password": "Passw0rd",
	}, token, "")
	testutil.AssertErrorResponse(t, resp, http.StatusConflict, "ALREADY_SIGNED_IN")

	resp = post(t, ts, "/auth/login", map[string]string{
		"email": "again@example.com", "password": "Passw0rd",
	}, token, "")
	testutil.AssertErrorResponse(t, resp, http.StatusConflict, "ALREADY_SIGNED_IN")
}

func TestAuthHandler_Login(t *testing.T) {
	ts := testutil.NewTestServer(t)
	user, password := testutil.NewUserBuilder().Build(t, ts.DB.DB)

	tests := []struct {
		name             string
		request          map[string]string
		expectedStatus   int
		expectedCode     string
		expectedRedirect string
	}{
		{
			name:             "by email with local redirect",
			request:          map[string]string{"email": user.Email, "password": password, "redirect": "/maple"},
			expectedStatus:   http.StatusOK,
			expectedRedirect: "/maple",
		},
		{
			name:             "by slug",
			request:          map[string]string{"email": user.Slug, "password": password},
			expectedStatus:   http.StatusOK,
			expectedRedirect: "/",
		},
		{
			name:             "offsite redirect is dropped",
			request:          map[string]string{"email": user.Email, "password": password, "redirect": "https://evil.example/"},
			expectedStatus:   http.StatusOK,
			expectedRedirect: "/",
		},
		{
			name:           "wrong password",
			request:        map[string]string{"email": user.Email, "password": "wrong-password"},
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "INVALID_CREDENTIALS",
		},
		{
			name:           "unknown user",
			request:        map[string]string{"email": "nobody@example.com", "password": password},
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "INVALID_CREDENTIALS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts, "/auth/login", tt.request, "", "")

			if tt.expectedCode != "" {
				testutil.AssertErrorResponse(t, resp, tt.expectedStatus, tt.expectedCode)
				return
			}

			testutil.AssertStatusCode(t, resp, tt.expectedStatus)
			var result testutil.AuthResponse
			testutil.AssertJSONResponse(t, resp, &result)
			assert.Equal(t, user.ID, result.User.ID)
			assert.NotEmpty(t, result.Token)
			assert.Equal(t, tt.expectedRedirect, result.Redirect)
			assert.NotNil(t, sessionCookie(resp))
		})
	}
}

// newProxiedTestServer trusts loopback as a reverse proxy.
func newProxiedTestServer(t *testing.T) *testutil.TestServer {
	t.Helper()

	cfg := testutil.TestConfig()
	cfg.TrustedProxies = []netip.Prefix{
		netip.MustParsePrefix("127.0.0.0/8"),
		netip.MustParsePrefix("::1/128"),
	}
	return testutil.NewTestServerWithConfig(t, cfg)
}

func TestAuthHandler_LoginRateLimited(t *testing.T) {
	ts := newProxiedTestServer(t)
	user, password := testutil.NewUserBuilder().Build(t, ts.DB.DB)
	ip := "203.0.113.7"

	for i := 0; i < 5; i++ {
		resp := post(t, ts, "/auth/login", map[string]string{"email": user.Email, "password": "wrong-password"}, "", ip)
		testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "INVALID_CREDENTIALS")
	}

	resp := post(t, ts, "/auth/login", map[string]string{"email": user.Email, "password": password}, "", ip)
	body := testutil.AssertErrorResponse(t, resp, http.StatusTooManyRequests, "RATE_LIMITED")
	assert.NotEmpty(t, body.Error)

	resp = post(t, ts, "/auth/login", map[string]string{"email": user.Email, "password": password}, "", "203.0.113.8")
	testutil.AssertStatusCode(t, resp, http.StatusOK)
}

func TestAuthHandler_LoginBudgetIgnoresSpoofedForwarding(t *testing.T) {
	ts := testutil.NewTestServer(t)
	user, password := testutil.NewUserBuilder().Build(t, ts.DB.DB)

	for i := 0; i < 5; i++ {
		resp := post(t, ts, "/auth/login", map[string]string{"email": user.Email, "password": "wrong-password"}, "", fmt.Sprintf("198.51.100.%d", i+1))
		testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "INVALID_CREDENTIALS")
	}

	for _, header := range []string{"X-Forwarded-For", "X-Real-IP", "True-Client-IP"} {
		t.Run(header, func(t *testing.T) {
			req := testutil.CreateAuthenticatedRequest(t, http.MethodPost, ts.APIURL("/auth/login"),
				map[string]string{"email": user.Email, "password": password}, "")
			req.Header.Set(header, "203.0.113.99")
			resp, err := ts.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			testutil.AssertErrorResponse(t, resp, http.StatusTooManyRequests, "RATE_LIMITED")
		})
	}
}

func TestAuthHandler_MeAndLogout(t *testing.T) {
	ts := testutil.NewTestServer(t)
	user, token := testutil.NewUserBuilder().WithName("Ann").BuildAndAuthenticate(t, ts)

	t.Run("anonymous", func(t *testing.T) {
		resp := get(t, ts, "/auth/me", "")
		testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "UNAUTHENTICATED")
	})

	t.Run("bearer token", func(t *testing.T) {
		resp := get(t, ts, "/auth/me", token)
		testutil.AssertStatusCode(t, resp, http.StatusOK)

		var me handlers.UserResponse
		testutil.AssertJSONResponse(t, resp, &me)
		assert.Equal(t, user.ID, me.ID)
		assert.Equal(t, "Ann", me.Name)
	})

	t.Run("session cookie", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, ts.APIURL("/auth/me"), nil)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: token})

		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		testutil.AssertStatusCode(t, resp, http.StatusOK)
	})

	t.Run("logout revokes the session", func(t *testing.T) {
		resp := post(t, ts, "/auth/logout", nil, token, "")
		testutil.AssertStatusCode(t, resp, http.StatusOK)

		var result map[string]string
		testutil.AssertJSONResponse(t, resp, &result)
		assert.Equal(t, "/login", result["redirect"])

		cookie := sessionCookie(resp)
		require.NotNil(t, cookie)
		assert.Empty(t, cookie.Value)

		resp = get(t, ts, "/auth/me", token)
		testutil.AssertStatusCode(t, resp, http.StatusUnauthorized)
	})
}

func TestAuthHandler_PasswordResetFlow(t *testing.T) {
	ts := testutil.NewTestServer(t)
	user, _ := testutil.NewUserBuilder().Build(t, ts.DB.DB)

	resp := post(t, ts, "/auth/password", map[string]string{"email": user.Email}, "", "")
	testutil.AssertStatusCode(t, resp, http.StatusAccepted)

	var started handlers.ResetStartedResponse
	testutil.AssertJSONResponse(t, resp, &started)
	require.Len(t, started.TicketID, 40)

	sent := ts.Mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, user.Email, sent[0].To)
	code := ts.Mail.LastCode(t)

	t.Run("wrong code", func(t *testing.T) {
		resp := post(t, ts, "/auth/password/"+started.TicketID, map[string]string{"code": "000000x"}, "", "")
		testutil.AssertErrorResponse(t, resp, http.StatusBadRequest, "INVALID_RESET")
	})

	resp = post(t, ts, "/auth/password/"+started.TicketID, map[string]string{"code": code}, "", "")
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	var verified testutil.AuthResponse
	testutil.AssertJSONResponse(t, resp, &verified)
	assert.Equal(t, user.ID, verified.User.ID)
	assert.Equal(t, "/password/reset", verified.Redirect)
	require.NotEmpty(t, verified.Token)

	t.Run("code is single use", func(t *testing.T) {
		resp := post(t, ts, "/auth/password/"+started.TicketID, map[string]string{"code": code}, "", "")
		testutil.AssertErrorResponse(t, resp, http.StatusBadRequest, "INVALID_RESET")
	})

	t.Run("mismatched passwords", func(t *testing.T) {
		resp := post(t, ts, "/auth/password/reset", map[string]string{"password": "NewPassw0rd", "password2": "Other123"}, verified.Token, "")
		testutil.AssertErrorResponse(t, resp, http.StatusBadRequest, "VALIDATION")
	})

	resp = post(t, ts, "/auth/password/reset", map[string]string{"password": "NewPassw0rd", "password2": "NewPassw0rd"}, verified.Token, "")
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	var changed map[string]string
	testutil.AssertJSONResponse(t, resp, &changed)
	assert.Equal(t, "Success! Your password has been reset.", changed["message"])

	resp = post(t, ts, "/auth/login", map[string]string{"email": user.Email, "password": "NewPassw0rd"}, "", "")
	testutil.AssertStatusCode(t, resp, http.StatusOK)
}

func TestAuthHandler_PasswordResetErrors(t *testing.T) {
	ts := testutil.NewTestServer(t)
	user, _ := testutil.NewUserBuilder().Build(t, ts.DB.DB)

	t.Run("unknown email", func(t *testing.T) {
		resp := post(t, ts, "/auth/password", map[string]string{"email": "nobody@example.com"}, "", "")
		body := testutil.AssertErrorResponse(t, resp, http.StatusBadRequest, "UNKNOWN_EMAIL")
		assert.Equal(t, "Sorry, no account uses that email address.", body.Error)
	})

	t.Run("change without session", func(t *testing.T) {
		resp := post(t, ts, "/auth/password/reset", map[string]string{"password": "NewPassw0rd", "password2": "NewPassw0rd"}, "", "")
		body := testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "UNAUTHENTICATED")
		assert.Equal(t, "Sorry, your password cannot be reset.", body.Error)
	})

	t.Run("undeliverable", func(t *testing.T) {
		ts.Mail.Fail(errors.New("smtp: connection refused"))
		defer ts.Mail.Fail(nil)

		resp := post(t, ts, "/auth/password", map[string]string{"email": user.Email}, "", "")
		body := testutil.AssertErrorResponse(t, resp, http.StatusServiceUnavailable, "RESET_UNDELIVERABLE")
		assert.Len(t, body.TicketID, 40)
	})
}

func TestSafeRedirect(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"", "/"},
		{"/", "/"},
		{"/maple", "/maple"},
		{"/maple?tab=messages", "/maple?tab=messages"},
		{"maple", "/"},
		{"//evil.example", "/"},
		{"/\\evil.example", "/"},
		{"https://evil.example/maple", "/"},
		{"javascript:alert(1)", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			assert.Equal(t, tt.want, handlers.SafeRedirect(tt.target))
		})
	}
}

func TestAuthHandler_SignupResponseShape(t *testing.T) {
	ts := testutil.NewTestServer(t)

	resp := post(t, ts, "/auth/signup", map[string]string{
		"name": "Dee", "email": "dee@example.com", "password": "Passw0rd",
	}, "", "")
	testutil.AssertStatusCode(t, resp, http.StatusCreated)

	var raw map[string]json.RawMessage
	testutil.AssertJSONResponse(t, resp, &raw)
	for _, key := range []string{"user", "token", "expiresAt", "redirect"} {
		assert.Contains(t, raw, key)
	}
	assert.NotContains(t, string(raw["user"]), "password")
}
