package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"EchoFM/config"
	"EchoFM/core/auth"
	"EchoFM/model"
)

// fakeUserRepo serves users from a map.
type fakeUserRepo struct {
	users map[int64]*model.User
}

func (r *fakeUserRepo) CreateUser(user *model.User) (int64, error) { return 0, nil }

func (r *fakeUserRepo) GetUserByID(id int64) (*model.User, error) {
	return r.users[id], nil
}

func (r *fakeUserRepo) GetUserByUsername(username string) (*model.User, error) {
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) GetUserByEmail(email string) (*model.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) UpdateProfile(userID int64, username, email, profileImage string) error {
	return nil
}

func (r *fakeUserRepo) UpdatePassword(userID int64, passwordHash string) error { return nil }

func (r *fakeUserRepo) DeactivateUser(userID int64) error {
	if u, ok := r.users[userID]; ok {
		u.IsActive = false
	}
	return nil
}

func newAuthTestHandler(t *testing.T, users *fakeUserRepo) *APIHandler {
	t.Helper()
	return NewAPIHandler(
		users, nil, nil, nil, nil, nil, nil,
		auth.NewTokenIssuer("test-secret", time.Hour),
		&config.Config{},
	)
}

func TestDeactivateAccount(t *testing.T) {
	hash, err := auth.HashPassword("password1")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	users := &fakeUserRepo{users: map[int64]*model.User{
		7: {ID: 7, Username: "alice", Email: "alice@example.com", PasswordHash: hash, IsActive: true},
	}}
	h := newAuthTestHandler(t, users)
	router := NewRouter(h)

	login := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			strings.NewReader(`{"username": "alice", "password": "password1"}`))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp
	}

	resp := login()
	if resp.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200; body %s", resp.Code, resp.Body.String())
	}
	var body authResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/auth/account", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("deactivate status = %d, want 200; body %s", resp.Code, resp.Body.String())
	}
	if users.users[7].IsActive {
		t.Error("account still active after deactivation")
	}

	// Deactivated accounts no longer authenticate.
	if resp := login(); resp.Code != http.StatusUnauthorized {
		t.Errorf("login after deactivation status = %d, want 401", resp.Code)
	}
}

func TestDeactivateAccountRequiresAuth(t *testing.T) {
	h := newAuthTestHandler(t, &fakeUserRepo{users: map[int64]*model.User{}})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodDelete, "/api/auth/account", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.Code)
	}
}
