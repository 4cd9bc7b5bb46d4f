package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type MiddlewareTestSuite struct {
	suite.Suite
}

func TestMiddlewareTestSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareTestSuite))
}

func (s *MiddlewareTestSuite) TestCorsMiddleware() {
	tests := []struct {
		name           string
		method         string
		expectedStatus int
		handlerCalled  bool
	}{
		{name: "OPTIONS request", method: http.MethodOptions, expectedStatus: http.StatusOK, handlerCalled: false},
		{name: "GET request", method: http.MethodGet, expectedStatus: http.StatusOK, handlerCalled: true},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			handlerCalled := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(tc.method, "/test", nil)
			w := httptest.NewRecorder()

			CorsMiddleware(handler).ServeHTTP(w, req)

			s.Equal(tc.expectedStatus, w.Code)
			s.Equal("*", w.Header().Get("Access-Control-Allow-Origin"))
			s.Equal("GET, POST, PUT, DELETE, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
			s.Equal(tc.handlerCalled, handlerCalled)
		})
	}
}

func (s *MiddlewareTestSuite) TestTimeoutMiddleware() {
	tests := []struct {
		name           string
		handlerDelay   time.Duration
		timeout        time.Duration
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "request completes in time",
			handlerDelay:   1 * time.Millisecond,
			timeout:        100 * time.Millisecond,
			expectedStatus: http.StatusOK,
			expectedBody:   "success",
		},
		{
			name:           "request times out",
			handlerDelay:   200 * time.Millisecond,
			timeout:        50 * time.Millisecond,
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "request timeout",
		},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(tc.handlerDelay)
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("success"))
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			w := httptest.NewRecorder()

			TimeoutMiddleware(tc.timeout)(handler).ServeHTTP(w, req)

			s.Equal(tc.expectedStatus, w.Code)
			s.Contains(w.Body.String(), tc.expectedBody)
		})
	}
}

func (s *MiddlewareTestSuite) TestSessionMiddleware() {
	existing := uuid.NewString()

	tests := []struct {
		name          string
		cookie        string
		userID        string
		expectCookie  bool
		expectSession string
	}{
		{name: "first visit gets a session", expectCookie: true},
		{name: "existing session is kept", cookie: existing, expectSession: existing},
		{name: "forged session is replaced", cookie: "../../etc", expectCookie: true},
		{name: "account id from gateway", cookie: existing, userID: "u-1", expectSession: existing},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			var got model.Owner
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ownerFromContext(r.Context())
			})

			req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: constant.SessionCookieName, Value: tc.cookie})
			}
			if tc.userID != "" {
				req.Header.Set(constant.UserIDHeader, tc.userID)
			}
			w := httptest.NewRecorder()

			SessionMiddleware(time.Hour, true)(handler).ServeHTTP(w, req)

			cookies := w.Result().Cookies()
			if tc.expectCookie {
				s.Require().Len(cookies, 1)
				s.Equal(cookies[0].Value, got.SessionID)
				s.True(cookies[0].HttpOnly)
				s.True(cookies[0].Secure)
				s.NoError(uuid.Validate(got.SessionID))
			} else {
				s.Empty(cookies)
				s.Equal(tc.expectSession, got.SessionID)
			}
			s.Equal(tc.userID, got.UserID)
		})
	}
}

func (s *MiddlewareTestSuite) TestAdminMiddleware() {
	tests := []struct {
		name           string
		configuredKey  string
		givenKey       string
		expectedStatus int
	}{
		{name: "matching key", configuredKey: "k3y", givenKey: "k3y", expectedStatus: http.StatusNoContent},
		{name: "wrong key", configuredKey: "k3y", givenKey: "nope", expectedStatus: http.StatusUnauthorized},
		{name: "admin disabled", configuredKey: "", givenKey: "", expectedStatus: http.StatusUnauthorized},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodPost, "/api/admin/waitlist/sweep", nil)
			req.Header.Set(constant.AdminKeyHeader, tc.givenKey)
			w := httptest.NewRecorder()

			AdminMiddleware(tc.configuredKey)(handler).ServeHTTP(w, req)

			s.Equal(tc.expectedStatus, w.Code)
		})
	}
}
