package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhaarna97/BookSwap/internal/auth"
	"github.com/dhaarna97/BookSwap/internal/auth/otp"
	"github.com/dhaarna97/BookSwap/internal/service/books"
	"github.com/dhaarna97/BookSwap/internal/service/users"
	"github.com/dhaarna97/BookSwap/internal/storage/memory"
	"github.com/dhaarna97/BookSwap/pkg/logger"
)

type testEnvelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Token   string          `json:"token"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	log := logger.New("httpapi-test", "error", "text")
	store := memory.New()
	tokens := auth.NewTokenManager("test-secret", time.Hour)

	srv := httptest.NewServer(NewRouter(Config{
		Users:     users.New(store, tokens, otp.NewMemoryCache(), log),
		Books:     books.New(store, store, log),
		Tokens:    tokens,
		UploadDir: t.TempDir(),
		Logger:    log,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, token string, body interface{}) (*http.Response, testEnvelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env testEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func registerAndLogin(t *testing.T, srv *httptest.Server, name, email string) string {
	t.Helper()

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/user/register", "", map[string]string{
		"name":            name,
		"email":           email,
		"password":        "hunter22",
		"confirmPassword": "hunter22",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/user/login", "", map[string]string{
		"email":    email,
		"password": "hunter22",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, env.Token)
	return env.Token
}

func TestExchangeFlow(t *testing.T) {
	srv := newTestServer(t)

	alice := registerAndLogin(t, srv, "Alice", "alice@example.com")
	bob := registerAndLogin(t, srv, "Bob", "bob@example.com")

	// Alice posts a book.
	resp, env := doJSON(t, http.MethodPost, srv.URL+"/books", alice, map[string]string{
		"title":     "Dune",
		"author":    "Frank Herbert",
		"condition": "Good",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Book posted successfully", env.Message)

	var posted struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &posted))
	require.NotEmpty(t, posted.ID)

	// The listing is public and carries owner info.
	resp, env = doJSON(t, http.MethodGet, srv.URL+"/books", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing []struct {
		ID        string `json:"id"`
		OwnerInfo struct {
			Name string `json:"name"`
		} `json:"ownerInfo"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &listing))
	require.Len(t, listing, 1)
	assert.Equal(t, "Alice", listing[0].OwnerInfo.Name)

	// Bob requests the book.
	resp, env = doJSON(t, http.MethodPost, srv.URL+"/books/"+posted.ID+"/request", bob, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Book request sent successfully", env.Message)

	var requested struct {
		TotalRequests int `json:"totalRequests"`
		Requests      []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &requested))
	require.Len(t, requested.Requests, 1)
	assert.Equal(t, "Pending", requested.Requests[0].Status)
	assert.Equal(t, 1, requested.TotalRequests)
	requestID := requested.Requests[0].ID

	// Alice sees the request among those she received.
	resp, env = doJSON(t, http.MethodGet, srv.URL+"/books/requests-received", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var received []struct {
		RequestID string `json:"requestId"`
		Requester struct {
			Name string `json:"name"`
		} `json:"requester"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &received))
	require.Len(t, received, 1)
	assert.Equal(t, requestID, received[0].RequestID)
	assert.Equal(t, "Bob", received[0].Requester.Name)

	// Alice accepts it.
	resp, env = doJSON(t, http.MethodPut, srv.URL+"/books/requests/"+requestID+"/accept", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Request accepted successfully", env.Message)

	// Bob sees the accepted request on his side.
	resp, env = doJSON(t, http.MethodGet, srv.URL+"/books/my-requests", bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var mine []struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, "Accepted", mine[0].Status)
}

func TestAuthRejections(t *testing.T) {
	srv := newTestServer(t)

	protected := []struct {
		method, path string
	}{
		{http.MethodGet, "/user/profile"},
		{http.MethodPost, "/books"},
		{http.MethodGet, "/books/my-books"},
		{http.MethodDelete, "/books/requests/some-id"},
	}

	for _, tc := range protected {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			resp, env := doJSON(t, tc.method, srv.URL+tc.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "no authorization token provided", env.Message)
		})
	}

	t.Run("garbage token", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodGet, srv.URL+"/user/profile", "Bearer not-a-token", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestOwnershipHiddenFromOutsiders(t *testing.T) {
	srv := newTestServer(t)

	alice := registerAndLogin(t, srv, "Alice", "alice@example.com")
	mallory := registerAndLogin(t, srv, "Mallory", "mallory@example.com")

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/books", alice, map[string]string{
		"title":     "Dune",
		"author":    "Frank Herbert",
		"condition": "Good",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var posted struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &posted))

	// Updating or deleting someone else's book looks exactly like a miss.
	title := "Stolen"
	resp, foreign := doJSON(t, http.MethodPut, srv.URL+"/books/"+posted.ID, mallory, map[string]*string{"title": &title})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, missing := doJSON(t, http.MethodPut, srv.URL+"/books/no-such-book", mallory, map[string]*string{"title": &title})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, missing.Message, foreign.Message)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/books/"+posted.ID, mallory, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// The owner still succeeds.
	resp, env = doJSON(t, http.MethodPut, srv.URL+"/books/"+posted.ID, alice, map[string]*string{"title": &title})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Book updated successfully", env.Message)
}

func TestValidationErrors(t *testing.T) {
	srv := newTestServer(t)
	alice := registerAndLogin(t, srv, "Alice", "alice@example.com")

	t.Run("bad condition", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/books", alice, map[string]string{
			"title":     "Dune",
			"author":    "Frank Herbert",
			"condition": "Mint",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("password mismatch", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/user/register", "", map[string]string{
			"name":            "Carol",
			"email":           "carol@example.com",
			"password":        "hunter22",
			"confirmPassword": "hunter23",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("duplicate email", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/user/register", "", map[string]string{
			"name":            "Alice Again",
			"email":           "alice@example.com",
			"password":        "hunter22",
			"confirmPassword": "hunter22",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown resolve action", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodPut, srv.URL+"/books/requests/some-id/shred", alice, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "healthy", status["status"])
}

func TestLoginDoesNotRevealAccounts(t *testing.T) {
	srv := newTestServer(t)
	registerAndLogin(t, srv, "Alice", "alice@example.com")

	cases := []map[string]string{
		{"email": "nobody@example.com", "password": "whatever1"},
		{"email": "alice@example.com", "password": "wrong-password"},
	}
	var messages []string
	for i, body := range cases {
		resp, env := doJSON(t, http.MethodPost, srv.URL+"/user/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, fmt.Sprintf("case %d", i))
		messages = append(messages, env.Message)
	}
	assert.Equal(t, messages[0], messages[1])
}
