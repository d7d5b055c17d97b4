package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
	"github.com/yamdb/apiserver/internal/services"
	"github.com/yamdb/apiserver/internal/store/memstore"
	"github.com/yamdb/apiserver/types"
)

const testSecret = "test-secret"

type codeRecorder struct {
	codes map[string]string
}

func (c *codeRecorder) SendConfirmationCode(_ context.Context, email, code string) error {
	c.codes[email] = code
	return nil
}

type testAPI struct {
	t      *testing.T
	mem    *memstore.Store
	api    API
	mailer *codeRecorder
	router http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	mem := memstore.New()
	mailer := &codeRecorder{codes: map[string]string{}}
	reviews := services.NewReviewService(mem.Reviews(), mem.Titles())
	api := API{
		Users:      services.NewUserService(mem.Users(), mailer),
		Categories: services.NewTaxonomyService[types.Category](mem.Categories()),
		Genres:     services.NewTaxonomyService[types.Genre](mem.Genres()),
		Titles:     services.NewTitleService(mem.Titles(), mem.Categories(), mem.Genres()),
		Reviews:    reviews,
		Comments:   services.NewCommentService(mem.Comments(), reviews),
		JWTSecret:  testSecret,
		TokenTTL:   time.Hour,
	}

	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Route("/api", func(r chi.Router) {
		APIRouter(r, api)
	})

	return &testAPI{t: t, mem: mem, api: api, mailer: mailer, router: r}
}

func (a *testAPI) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	a.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		payload, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// user stores an account directly and returns it with a valid token.
func (a *testAPI) user(username string, role types.Role) (types.User, string) {
	a.t.Helper()

	user, err := a.mem.Users().Create(context.Background(), types.User{
		Username: username,
		Email:    username + "@example.com",
		Role:     role,
	})
	require.NoError(a.t, err)

	token, err := issueToken(user.ID, []byte(testSecret), time.Hour)
	require.NoError(a.t, err)
	return user, token
}

func (a *testAPI) title(name string, year int) types.Title {
	a.t.Helper()
	title, err := a.mem.Titles().Create(context.Background(), types.Title{Name: name, Year: year})
	require.NoError(a.t, err)
	return title
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
