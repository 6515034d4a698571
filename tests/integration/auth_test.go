//go:build integration

package integration

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/airq-auth/internal/domain"
	"github.com/bissquit/airq-auth/internal/identity/jwt"
	"github.com/bissquit/airq-auth/internal/pkg/httputil"
	"github.com/bissquit/airq-auth/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authResult struct {
	Success bool              `json:"success"`
	Token   string            `json:"token"`
	User    domain.PublicUser `json:"user"`
}

type errorResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"details"`
}

func registerUser(t *testing.T, client *testutil.Client, email, password string) authResult {
	t.Helper()
	resp, err := client.POST("/api/auth/register", map[string]string{
		"firstName": "Ada",
		"lastName":  "Lovelace",
		"email":     email,
		"password":  password,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result authResult
	testutil.DecodeJSON(t, resp, &result)
	return result
}

func countUsers(t *testing.T, email string) int {
	t.Helper()
	var n int
	err := testDB.QueryRow(context.Background(), `SELECT count(*) FROM users WHERE email = $1`, email).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestAuth_Register_Login_Me_Flow(t *testing.T) {
	client := newTestClient(t)
	email := testutil.RandomEmail()

	registered := registerUser(t, client, email, "s3cret!")
	assert.True(t, registered.Success)
	assert.NotEmpty(t, registered.Token)
	assert.Equal(t, email, registered.User.Email)
	assert.Equal(t, "Ada", registered.User.FirstName)
	assert.Equal(t, "Lovelace", registered.User.LastName)
	assert.Equal(t, domain.RoleUser, registered.User.Role)

	resp, err := client.POST("/api/auth/login", map[string]string{
		"email":    email,
		"password": "s3cret!",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loggedIn authResult
	testutil.DecodeJSON(t, resp, &loggedIn)
	assert.Equal(t, registered.User, loggedIn.User)

	resp, err = client.WithToken(loggedIn.Token).GET("/api/auth/me")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var me struct {
		Success bool              `json:"success"`
		User    domain.PublicUser `json:"user"`
	}
	testutil.DecodeJSON(t, resp, &me)
	assert.True(t, me.Success)
	assert.Equal(t, registered.User, me.User)
}

func TestAuth_PasswordIsStoredHashed(t *testing.T) {
	client := newTestClient(t)
	email := testutil.RandomEmail()
	registerUser(t, client, email, "s3cret!")

	var hash string
	err := testDB.QueryRow(context.Background(), `SELECT password_hash FROM users WHERE email = $1`, email).Scan(&hash)
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret!", hash)
	assert.True(t, strings.HasPrefix(hash, "$2"), "bcrypt hash expected")
}

func TestAuth_Register_DuplicateEmail(t *testing.T) {
	client := newTestClient(t)
	email := testutil.RandomEmail()
	registerUser(t, client, email, "s3cret!")

	resp, err := client.POST("/api/auth/register", map[string]string{
		"firstName": "Other",
		"lastName":  "Person",
		"email":     email,
		"password":  "different",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var result errorResult
	testutil.DecodeJSON(t, resp, &result)
	assert.False(t, result.Success)
	assert.Equal(t, "Email is already registered", result.Error)
	assert.Equal(t, 1, countUsers(t, email))
}

func TestAuth_Register_ConcurrentSameEmail(t *testing.T) {
	client := testutil.NewClient(testServer.URL)
	email := testutil.RandomEmail()

	const attempts = 5
	statuses := make([]int, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.POST("/api/auth/register", map[string]string{
				"firstName": "Ada",
				"lastName":  "Lovelace",
				"email":     email,
				"password":  "s3cret!",
			})
			if err != nil {
				return
			}
			statuses[i] = resp.StatusCode
			_ = resp.Body.Close()
		}()
	}
	wg.Wait()

	created := 0
	for _, s := range statuses {
		if s == http.StatusCreated {
			created++
		} else {
			assert.Equal(t, http.StatusBadRequest, s)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, countUsers(t, email))
}

func TestAuth_Register_ValidationError(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.POST("/api/auth/register", map[string]string{
		"email":    "not-an-email",
		"password": "s3cret!",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var result errorResult
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, "Validation Error", result.Error)
	assert.NotEmpty(t, result.Details)
}

func TestAuth_Login_InvalidCredentials(t *testing.T) {
	client := newTestClient(t)
	email := testutil.RandomEmail()
	registerUser(t, client, email, "s3cret!")

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", email, "wrong"},
		{"unknown email", testutil.RandomEmail(), "s3cret!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client.SetT(t)
			resp, err := client.POST("/api/auth/login", map[string]string{
				"email":    tt.email,
				"password": tt.password,
			})
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			var result errorResult
			testutil.DecodeJSON(t, resp, &result)
			assert.Equal(t, "Invalid email or password", result.Error)
		})
	}
}

func TestAuth_Login_MissingFields(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.POST("/api/auth/login", map[string]string{"email": "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var result errorResult
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, "Please provide email and password", result.Error)
}

func TestAuth_Me_RejectsBadTokens(t *testing.T) {
	client := newTestClient(t)
	registered := registerUser(t, client, testutil.RandomEmail(), "s3cret!")

	expired, err := jwt.NewAuthenticator(jwt.Config{
		SecretKey:     testConfig.JWT.SecretKey,
		TokenDuration: -time.Minute,
		Issuer:        testConfig.JWT.Issuer,
	}).GenerateToken(context.Background(), &domain.User{ID: registered.User.ID, Role: domain.RoleUser})
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"missing header", "", "missing authorization header"},
		{"wrong scheme", "Token " + registered.Token, "invalid authorization header format"},
		{"tampered token", "Bearer " + registered.Token + "x", "invalid or expired token"},
		{"expired token", "Bearer " + expired, "invalid or expired token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client.SetT(t)
			req, err := http.NewRequest(http.MethodGet, testServer.URL+"/api/auth/me", nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			resp, err := client.Do(req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			var result errorResult
			testutil.DecodeJSON(t, resp, &result)
			assert.False(t, result.Success)
			assert.Equal(t, tt.message, result.Error)
		})
	}
}

func TestAuth_Me_DeletedUser(t *testing.T) {
	client := newTestClient(t)
	email := testutil.RandomEmail()
	registered := registerUser(t, client, email, "s3cret!")

	_, err := testDB.Exec(context.Background(), `DELETE FROM users WHERE email = $1`, email)
	require.NoError(t, err)

	resp, err := client.WithToken(registered.Token).GET("/api/auth/me")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var result errorResult
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, "User not found", result.Error)
}

func TestAuth_InvalidJSON(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, testServer.URL+"/api/auth/login", strings.NewReader("{not json"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var result httputil.ErrorResponse
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, "invalid json", result.Error)
}

func TestService_Endpoints(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.GET("/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "AirQ API is running", testutil.ReadBody(t, resp))

	resp, err = client.GET("/readyz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = client.GET("/version")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}
