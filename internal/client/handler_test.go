package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Register(ctx context.Context, req RegisterRequest) (*Client, string, string, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, "", "", args.Error(3)
	}
	return args.Get(0).(*Client), args.String(1), args.String(2), args.Error(3)
}

func (m *MockService) Login(ctx context.Context, req LoginRequest) (*Client, string, string, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, "", "", args.Error(3)
	}
	return args.Get(0).(*Client), args.String(1), args.String(2), args.Error(3)
}

func (m *MockService) GetByID(ctx context.Context, clientID int64) (*Client, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Client), args.Error(1)
}

func (m *MockService) RefreshToken(ctx context.Context, refreshToken string) (string, *Client, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(1) == nil {
		return "", nil, args.Error(2)
	}
	return args.String(0), args.Get(1).(*Client), args.Error(2)
}

func newRouter(svc Service, clientID int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(svc)
	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/refresh", h.Refresh)
	r.GET("/me", func(c *gin.Context) {
		if clientID != 0 {
			c.Set("client_id", clientID)
		}
		c.Next()
	}, h.Me)
	return r
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterHandler(t *testing.T) {
	body := `{"full_name":"Anna","phone":"+79990000001","password":"password123","referral_code":"FRIEND01"}`

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "created", wantCode: http.StatusCreated},
		{name: "phone taken", err: ErrPhoneExists, wantCode: http.StatusConflict},
		{name: "bad referral code", err: ErrInvalidReferralCode, wantCode: http.StatusBadRequest},
		{name: "internal", err: errors.New("boom"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			call := svc.On("Register", mock.Anything, mock.MatchedBy(func(r RegisterRequest) bool {
				return r.Phone == "+79990000001" && r.ReferralCode == "FRIEND01"
			}))
			if tt.err != nil {
				call.Return(nil, "", "", tt.err)
			} else {
				call.Return(&Client{ID: 10, Phone: "+79990000001", ReferralCode: "ABCD1234"}, "access", "refresh", nil)
			}

			w := serve(newRouter(svc, 0), http.MethodPost, "/auth/register", body)
			assert.Equal(t, tt.wantCode, w.Code)

			if tt.err == nil {
				var resp LoginResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "access", resp.AccessToken)
				assert.Equal(t, "ABCD1234", resp.Client.ReferralCode)
				assert.NotContains(t, w.Body.String(), "password_hash")
			}
		})
	}
}

func TestRegisterHandler_ValidationError(t *testing.T) {
	svc := new(MockService)

	w := serve(newRouter(svc, 0), http.MethodPost, "/auth/register", `{"full_name":"A","phone":"89990000001","password":"short"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
}

func TestLoginHandler(t *testing.T) {
	svc := new(MockService)
	svc.On("Login", mock.Anything, LoginRequest{Phone: "+79990000001", Password: "wrong"}).
		Return(nil, "", "", ErrInvalidCredentials)
	svc.On("Login", mock.Anything, LoginRequest{Phone: "+79990000001", Password: "password123"}).
		Return(&Client{ID: 10}, "access", "refresh", nil)
	r := newRouter(svc, 0)

	w := serve(r, http.MethodPost, "/auth/login", `{"phone":"+79990000001","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodPost, "/auth/login", `{"phone":"+79990000001","password":"password123"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"refresh_token":"refresh"`)
}

func TestMeHandler(t *testing.T) {
	svc := new(MockService)
	svc.On("GetByID", mock.Anything, int64(10)).Return(&Client{ID: 10, FullName: "Anna"}, nil)

	w := serve(newRouter(svc, 10), http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"full_name":"Anna"`)

	w = serve(newRouter(svc, 0), http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshHandler(t *testing.T) {
	svc := new(MockService)
	svc.On("RefreshToken", mock.Anything, "good").Return("new-access", &Client{ID: 10}, nil)
	svc.On("RefreshToken", mock.Anything, "bad").Return("", nil, errors.New("invalid token"))
	r := newRouter(svc, 0)

	w := serve(r, http.MethodPost, "/auth/refresh", `{"refresh_token":"good"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "new-access")

	w = serve(r, http.MethodPost, "/auth/refresh", `{"refresh_token":"bad"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodPost, "/auth/refresh", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
