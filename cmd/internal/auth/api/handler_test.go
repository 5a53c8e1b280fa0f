package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"authd/cmd/internal/auth/session"
	"authd/cmd/security/password"
)

type testEnv struct {
	srv   *httptest.Server
	store *session.MemoryStore
	svc   *session.Service
	now   time.Time
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	scfg := session.DefaultConfig()
	scfg.SigningSecret = "api-test-signing-secret-0123456789abcdef"

	tokens, err := session.NewAccessTokenManager(scfg)
	require.NoError(t, err)

	hasher := password.Config{
		Params: password.Argon2idParams{MemoryKiB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		Policy: password.Policy{MinLength: 1, MaxLength: 256},
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := session.NewMemoryStore()
	svc, err := session.NewService(scfg, store, tokens, hasher, session.WithLogger(log))
	require.NoError(t, err)

	env := &testEnv{store: store, svc: svc, now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	h, err := NewHandler(log, svc, cfg, WithClock(func() time.Time { return env.now }))
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux)
	env.srv = httptest.NewServer(mux)
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, header http.Header) (*http.Response, []byte) {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func (e *testEnv) post(t *testing.T, path string, body any) (*http.Response, []byte) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	return e.do(t, http.MethodPost, path, string(b), nil)
}

func decodeSession(t *testing.T, raw []byte) sessionResponse {
	t.Helper()
	var out sessionResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func decodeError(t *testing.T, raw []byte) apiError {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	return out.Error
}

func (e *testEnv) register(t *testing.T, email string) sessionResponse {
	t.Helper()
	resp, raw := e.post(t, "/auth/register", map[string]any{
		"email":       email,
		"password":    "correct horse battery staple",
		"displayName": "Ana",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	return decodeSession(t, raw)
}

func TestRegister_CreatedWithSession(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	resp, raw := env.post(t, "/auth/register", map[string]any{
		"email":       "  Ana@Example.COM ",
		"password":    "correct horse battery staple",
		"displayName": " Ana ",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	require.NotContains(t, string(raw), "passwordHash")
	require.NotContains(t, string(raw), "argon2id")

	out := decodeSession(t, raw)
	require.NotEmpty(t, out.User.ID)
	require.Equal(t, "ana@example.com", out.User.Email)
	require.Equal(t, "Ana", out.User.DisplayName)
	require.Equal(t, "user", out.User.Role)
	require.True(t, out.User.IsActive)
	require.NotEmpty(t, out.AccessToken)
	require.NotEmpty(t, out.RefreshToken)
	require.Equal(t, []string{"user"}, out.Roles)
	require.Equal(t, "user", out.DefaultRole)
	require.Equal(t, env.now.Add(7*24*time.Hour), out.RefreshTokenExpiresAt.UTC())
	require.Equal(t, env.now.Add(15*time.Minute), out.AccessTokenExpiresAt.UTC())
	require.Nil(t, out.PhotographerProfile)
}

func TestRegister_MissingFields(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	for _, body := range []map[string]any{
		{"password": "pw", "displayName": "A"},
		{"email": "a@example.com", "displayName": "A"},
		{"email": "a@example.com", "password": "pw", "displayName": "   "},
	} {
		resp, raw := env.post(t, "/auth/register", body)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "email, password and displayName are required", decodeError(t, raw).Message)
	}
}

func TestRegister_DuplicateEmailCaseInsensitive(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	env.register(t, "dup@example.com")

	resp, raw := env.post(t, "/auth/register", map[string]any{
		"email":       "DUP@example.com",
		"password":    "another password",
		"displayName": "Other",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "conflict", decodeError(t, raw).Code)
}

func TestRegister_UnknownRole(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	resp, _ := env.post(t, "/auth/register", map[string]any{
		"email":       "r@example.com",
		"password":    "pw",
		"displayName": "R",
		"role":        "superuser",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegister_PhotographerMergesNestedAndAliases(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	resp, raw := env.post(t, "/auth/register", map[string]any{
		"email":         "photo@example.com",
		"password":      "pw-photo",
		"displayName":   "Photo",
		"role":          "photographer",
		"phone":         "+55 11 99999-0000",
		"coverPhotoUrl": "https://cdn.test/cover.jpg",
		"acceptedTerms": "true",
		"photographerProfile": map[string]any{
			"biography":       "nested bio",
			"phoneNumber":     "nested phone",
			"profileImageUrl": "https://cdn.test/me.jpg",
			"socialLinks":     map[string]string{"instagram": "@photo"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	out := decodeSession(t, raw)
	require.Equal(t, "photographer", out.User.Role)
	require.Equal(t, []string{"photographer"}, out.Roles)
	require.NotNil(t, out.PhotographerProfile)

	p := out.PhotographerProfile
	require.Equal(t, "nested bio", *p.Biography)
	require.Equal(t, "+55 11 99999-0000", *p.PhoneNumber)
	require.Equal(t, "https://cdn.test/me.jpg", *p.ProfileImageURL)
	require.Equal(t, "https://cdn.test/cover.jpg", *p.CoverImageURL)
	require.Nil(t, p.WebsiteURL)
	require.True(t, p.AcceptedTerms)
	require.JSONEq(t, `{"instagram":"@photo"}`, string(p.SocialLinks))
}

func TestRegister_InvalidAcceptedTerms(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	resp, raw := env.do(t, http.MethodPost, "/auth/register",
		`{"email":"t@example.com","password":"pw","displayName":"T","acceptedTerms":"yes please"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_json", decodeError(t, raw).Code)
}

func TestLogin_SuccessAndUniformFailures(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	reg := env.register(t, "login@example.com")

	resp, raw := env.post(t, "/auth/login", map[string]any{
		"email":    "LOGIN@example.com",
		"password": "correct horse battery staple",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	out := decodeSession(t, raw)
	require.Equal(t, reg.User.ID, out.User.ID)
	require.NotEqual(t, reg.RefreshToken, out.RefreshToken)

	resp, raw = env.post(t, "/auth/login", map[string]any{"email": "login@example.com", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	wrongPw := decodeError(t, raw)

	resp, raw = env.post(t, "/auth/login", map[string]any{"email": "ghost@example.com", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, wrongPw, decodeError(t, raw))

	require.True(t, env.store.Accounts().SetActive(reg.User.ID, false))
	resp, raw = env.post(t, "/auth/login", map[string]any{
		"email":    "login@example.com",
		"password": "correct horse battery staple",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, wrongPw, decodeError(t, raw))
}

func TestLogin_MissingFields(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	resp, raw := env.post(t, "/auth/login", map[string]any{"email": "a@example.com"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "email and password are required", decodeError(t, raw).Message)
}

func TestRefresh_RotatesOnce(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	reg := env.register(t, "rot@example.com")

	env.now = env.now.Add(time.Minute)
	resp, raw := env.post(t, "/auth/refresh", map[string]any{"refreshToken": reg.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	next := decodeSession(t, raw)
	require.NotEqual(t, reg.RefreshToken, next.RefreshToken)

	resp, raw = env.post(t, "/auth/refresh", map[string]any{"refreshToken": reg.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid refresh token", decodeError(t, raw).Message)

	resp, _ = env.post(t, "/auth/refresh", map[string]any{"refreshToken": next.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRefresh_ExpiredAndUnknownLookAlike(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	reg := env.register(t, "exp@example.com")

	resp, raw := env.post(t, "/auth/refresh", map[string]any{"refreshToken": "not-a-real-token"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	unknown := decodeError(t, raw)

	env.now = env.now.Add(8 * 24 * time.Hour)
	resp, raw = env.post(t, "/auth/refresh", map[string]any{"refreshToken": reg.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, unknown, decodeError(t, raw))
}

func TestRefresh_DeactivatedAccountForbidden(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	reg := env.register(t, "gone@example.com")

	require.True(t, env.store.Accounts().SetActive(reg.User.ID, false))
	resp, raw := env.post(t, "/auth/refresh", map[string]any{"refreshToken": reg.RefreshToken})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "forbidden", decodeError(t, raw).Code)
}

func TestRefresh_MissingToken(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	resp, raw := env.post(t, "/auth/refresh", map[string]any{"refreshToken": "  "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "refreshToken is required", decodeError(t, raw).Message)
}

func TestLogout_IdempotentAndRevokes(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	reg := env.register(t, "bye@example.com")

	for i := 0; i < 2; i++ {
		resp, raw := env.post(t, "/auth/logout", map[string]any{"refreshToken": reg.RefreshToken})
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		require.Empty(t, raw)
	}

	resp, _ := env.post(t, "/auth/logout", map[string]any{"refreshToken": "never-issued"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = env.post(t, "/auth/refresh", map[string]any{"refreshToken": reg.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, raw := env.post(t, "/auth/logout", map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "refreshToken is required", decodeError(t, raw).Message)
}

func TestProfile_RequiresBearer(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	reg := env.register(t, "me@example.com")

	resp, raw := env.do(t, http.MethodGet, "/auth/profile", "", http.Header{
		"Authorization": {"bearer " + reg.AccessToken},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var out struct {
		ID          string   `json:"id"`
		Email       string   `json:"email"`
		Roles       []string `json:"roles"`
		DefaultRole string   `json:"defaultRole"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, reg.User.ID, out.ID)
	require.Equal(t, "me@example.com", out.Email)
	require.Equal(t, []string{"user"}, out.Roles)
	require.Equal(t, "user", out.DefaultRole)

	resp, raw = env.do(t, http.MethodGet, "/auth/profile", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "authentication token is required", decodeError(t, raw).Message)

	resp, raw = env.do(t, http.MethodGet, "/auth/profile", "", http.Header{
		"Authorization": {"Bearer " + reg.AccessToken + "x"},
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid or expired token", decodeError(t, raw).Message)

	env.now = env.now.Add(time.Hour)
	resp, _ = env.do(t, http.MethodGet, "/auth/profile", "", http.Header{
		"Authorization": {"Bearer " + reg.AccessToken},
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	resp, _ := env.do(t, http.MethodGet, "/auth/login", "", nil)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.Equal(t, http.MethodPost, resp.Header.Get("Allow"))

	resp, _ = env.do(t, http.MethodPost, "/auth/profile", "{}", nil)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMalformedBodies(t *testing.T) {
	env := newTestEnv(t, Config{MaxBodyBytes: 64})

	resp, raw := env.do(t, http.MethodPost, "/auth/login", `{"email":`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_json", decodeError(t, raw).Code)

	resp, _ = env.do(t, http.MethodPost, "/auth/login", `{"email":"a@b.c","password":"x"} {}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/auth/login", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	big := `{"email":"` + strings.Repeat("a", 128) + `@example.com","password":"x"}`
	resp, raw = env.do(t, http.MethodPost, "/auth/login", big, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	require.Equal(t, "body_too_large", decodeError(t, raw).Code)
}

func TestClientMeta_RecordedOnRefreshRow(t *testing.T) {
	env := newTestEnv(t, Config{TrustProxy: true})

	body, err := json.Marshal(map[string]any{"email": "ip@example.com", "password": "pw", "displayName": "IP"})
	require.NoError(t, err)
	resp, raw := env.do(t, http.MethodPost, "/auth/register", string(body), http.Header{
		"X-Forwarded-For": {"203.0.113.7, 10.0.0.1"},
		"User-Agent":      {"api-test/1.0"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	rows := env.store.RefreshRows(decodeSession(t, raw).User.ID)
	require.Len(t, rows, 1)
	require.Equal(t, "203.0.113.7", rows[0].IP.String())
	require.Equal(t, "api-test/1.0", rows[0].UserAgent)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.10:5555"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	r.Header.Set("X-Real-IP", "198.51.100.2")

	require.Equal(t, "192.0.2.10", clientIP(r, false).String())
	require.Equal(t, "198.51.100.1", clientIP(r, true).String())

	r.Header.Del("X-Forwarded-For")
	require.Equal(t, "198.51.100.2", clientIP(r, true).String())

	r.RemoteAddr = "garbage"
	r.Header.Del("X-Real-IP")
	require.Nil(t, clientIP(r, true))
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "", want: ""},
		{header: "Bearer abc", want: "abc"},
		{header: "bearer   abc  ", want: "abc"},
		{header: "Basic abc", want: ""},
		{header: "Bearer", want: ""},
	}
	for _, tc := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		require.Equal(t, tc.want, bearerToken(r), tc.header)
	}
}

func TestExtension_TopLevelWins(t *testing.T) {
	var req registerRequest
	require.NoError(t, json.NewDecoder(bytes.NewReader([]byte(`{
		"website": "https://alias.test",
		"cpf": "123",
		"acceptedTerms": 0,
		"photographerProfile": {"websiteUrl": "https://nested.test", "cpf": "999", "acceptedTerms": true, "socialLinks": null}
	}`))).Decode(&req))

	ext := req.extension()
	require.Equal(t, "https://alias.test", *ext.WebsiteURL)
	require.Equal(t, "123", *ext.CPF)
	require.NotNil(t, ext.AcceptedTerms)
	require.False(t, *ext.AcceptedTerms)
	require.Nil(t, ext.SocialLinks)
	require.Nil(t, ext.Biography)
}

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind session.Kind
		want int
	}{
		{session.KindInvalidArgument, http.StatusBadRequest},
		{session.KindConflict, http.StatusConflict},
		{session.KindUnauthorized, http.StatusUnauthorized},
		{session.KindForbidden, http.StatusForbidden},
		{session.KindNotFound, http.StatusNotFound},
		{session.KindUnavailable, http.StatusServiceUnavailable},
		{session.KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		got, _ := statusForKind(tc.kind)
		require.Equal(t, tc.want, got, tc.kind.String())
	}
}
