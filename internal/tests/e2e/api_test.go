//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/yamdb/apiserver/config"
	"github.com/yamdb/apiserver/internal/db"
	"github.com/yamdb/apiserver/internal/handlers"
	"github.com/yamdb/apiserver/internal/server"
	"github.com/yamdb/apiserver/internal/services"
	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/types"
)

const migrationsURL = "file://../../db/migrations"

var (
	baseURL string
	users   *services.UserService
	inbox   = &codeInbox{codes: map[string]string{}}
)

// codeInbox stands in for the mail backend and keeps the last code per address.
type codeInbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *codeInbox) SendConfirmationCode(_ context.Context, email, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[email] = code
	return nil
}

func (c *codeInbox) code(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[email]
}

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx,
		"postgres:alpine",
		postgres.WithDatabase("yamdb"),
		postgres.WithUsername("yamdb"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres: %v\n", err)
		os.Exit(1)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
		_ = container.Terminate(context.Background())
		os.Exit(1)
	}

	if err := db.MigrateUp(migrationsURL, dsn); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = container.Terminate(context.Background())
		os.Exit(1)
	}

	conn, err := db.OpenDSN(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		_ = container.Terminate(context.Background())
		os.Exit(1)
	}

	srv := httptest.NewServer(server.NewRouter(config.HTTPConfig{}, newAPI(conn)))
	baseURL = srv.URL + "/api"

	code := m.Run()

	srv.Close()
	_ = conn.Close()
	_ = container.Terminate(context.Background())
	os.Exit(code)
}

func newAPI(conn *sql.DB) handlers.API {
	categories := store.NewCategoryRepository(conn)
	genres := store.NewGenreRepository(conn)
	titles := store.NewTitleRepository(conn)
	reviews := services.NewReviewService(store.NewReviewRepository(conn), titles)
	users = services.NewUserService(store.NewUserRepository(conn), inbox)

	return handlers.API{
		Users:      users,
		Categories: services.NewTaxonomyService[types.Category](categories),
		Genres:     services.NewTaxonomyService[types.Genre](genres),
		Titles:     services.NewTitleService(titles, categories, genres),
		Reviews:    reviews,
		Comments:   services.NewCommentService(store.NewCommentRepository(conn), reviews),
		JWTSecret:  "e2e-secret",
		TokenTTL:   time.Hour,
	}
}

func TestCatalogAndReviewLifecycle(t *testing.T) {
	suffix := time.Now().UnixNano()
	adminToken := login(t, fmt.Sprintf("boss_%d", suffix))
	if _, err := users.EnsureAdmin(context.Background(), fmt.Sprintf("boss_%d", suffix), ""); err != nil {
		t.Fatalf("promote admin: %v", err)
	}
	aliceToken := login(t, fmt.Sprintf("alice_%d", suffix))
	bobToken := login(t, fmt.Sprintf("bob_%d", suffix))

	category := fmt.Sprintf("films-%d", suffix)
	genre := fmt.Sprintf("drama-%d", suffix)
	call(t, http.MethodPost, "/categories/", aliceToken, map[string]string{"name": "Films", "slug": category}, http.StatusForbidden, nil)
	call(t, http.MethodPost, "/categories/", adminToken, map[string]string{"name": "Films", "slug": category}, http.StatusCreated, nil)
	call(t, http.MethodPost, "/genres/", adminToken, map[string]string{"name": "Drama", "slug": genre}, http.StatusCreated, nil)

	var title types.Title
	call(t, http.MethodPost, "/titles/", adminToken, map[string]any{
		"name":     "The Godfather",
		"year":     1972,
		"genre":    []string{genre},
		"category": category,
	}, http.StatusCreated, &title)
	if title.ID == 0 {
		t.Fatalf("expected title id to be set")
	}
	if title.Category == nil || title.Category.Slug != category {
		t.Fatalf("unexpected category: %+v", title.Category)
	}
	if len(title.Genres) != 1 || title.Genres[0].Slug != genre {
		t.Fatalf("unexpected genres: %+v", title.Genres)
	}
	if title.Rating != nil {
		t.Fatalf("expected no rating before reviews, got %v", *title.Rating)
	}

	reviewsPath := fmt.Sprintf("/titles/%d/reviews/", title.ID)
	var review types.Review
	call(t, http.MethodPost, reviewsPath, aliceToken, map[string]any{"text": "Classic.", "score": 9}, http.StatusCreated, &review)
	call(t, http.MethodPost, reviewsPath, aliceToken, map[string]any{"text": "Again.", "score": 1}, http.StatusBadRequest, nil)
	call(t, http.MethodPost, reviewsPath, bobToken, map[string]any{"text": "Long.", "score": 6}, http.StatusCreated, nil)

	call(t, http.MethodGet, fmt.Sprintf("/titles/%d/", title.ID), "", nil, http.StatusOK, &title)
	if title.Rating == nil || *title.Rating != 7.5 {
		t.Fatalf("unexpected rating: %v", title.Rating)
	}

	reviewPath := fmt.Sprintf("%s%d/", reviewsPath, review.ID)
	call(t, http.MethodPatch, reviewPath, bobToken, map[string]any{"score": 1}, http.StatusForbidden, nil)
	call(t, http.MethodPatch, reviewPath, aliceToken, map[string]any{"score": 10}, http.StatusOK, &review)
	if review.Score != 10 {
		t.Fatalf("unexpected score after update: %d", review.Score)
	}

	var comment types.Comment
	call(t, http.MethodPost, reviewPath+"comments/", bobToken, map[string]string{"text": "Agreed."}, http.StatusCreated, &comment)
	if comment.Author != fmt.Sprintf("bob_%d", suffix) {
		t.Fatalf("unexpected comment author: %q", comment.Author)
	}

	var comments handlers.ListResponse[types.Comment]
	call(t, http.MethodGet, reviewPath+"comments/", "", nil, http.StatusOK, &comments)
	if comments.Count != 1 {
		t.Fatalf("expected 1 comment, got %d", comments.Count)
	}

	call(t, http.MethodDelete, fmt.Sprintf("/genres/%s/", genre), adminToken, nil, http.StatusNoContent, nil)
	call(t, http.MethodDelete, fmt.Sprintf("/categories/%s/", category), adminToken, nil, http.StatusNoContent, nil)
	call(t, http.MethodGet, fmt.Sprintf("/titles/%d/", title.ID), "", nil, http.StatusOK, &title)
	if title.Category != nil || len(title.Genres) != 0 {
		t.Fatalf("expected title to be detached from taxonomy, got %+v", title)
	}

	call(t, http.MethodDelete, fmt.Sprintf("/titles/%d/", title.ID), adminToken, nil, http.StatusNoContent, nil)
	call(t, http.MethodGet, reviewPath, "", nil, http.StatusNotFound, nil)
}

func TestSignupRejectsTakenEmail(t *testing.T) {
	suffix := time.Now().UnixNano()
	email := fmt.Sprintf("carol_%d@example.com", suffix)

	call(t, http.MethodPost, "/auth/signup/", "", map[string]string{"username": fmt.Sprintf("carol_%d", suffix), "email": email}, http.StatusOK, nil)
	call(t, http.MethodPost, "/auth/signup/", "", map[string]string{"username": fmt.Sprintf("dave_%d", suffix), "email": email}, http.StatusBadRequest, nil)
	call(t, http.MethodPost, "/auth/token/", "", map[string]string{"username": fmt.Sprintf("carol_%d", suffix), "confirmation_code": "nope"}, http.StatusBadRequest, nil)
}

func TestUserDeleteCascades(t *testing.T) {
	suffix := time.Now().UnixNano()
	adminName := fmt.Sprintf("root_%d", suffix)
	adminToken := login(t, adminName)
	if _, err := users.EnsureAdmin(context.Background(), adminName, ""); err != nil {
		t.Fatalf("promote admin: %v", err)
	}
	eveName := fmt.Sprintf("eve_%d", suffix)
	eveToken := login(t, eveName)

	var title types.Title
	call(t, http.MethodPost, "/titles/", adminToken, map[string]any{"name": "Solaris", "year": 1972}, http.StatusCreated, &title)

	var review types.Review
	reviewsPath := fmt.Sprintf("/titles/%d/reviews/", title.ID)
	call(t, http.MethodPost, reviewsPath, eveToken, map[string]any{"text": "Slow.", "score": 4}, http.StatusCreated, &review)

	call(t, http.MethodDelete, "/users/"+eveName+"/", adminToken, nil, http.StatusNoContent, nil)
	call(t, http.MethodGet, fmt.Sprintf("%s%d/", reviewsPath, review.ID), "", nil, http.StatusNotFound, nil)
	call(t, http.MethodGet, "/users/me/", eveToken, nil, http.StatusUnauthorized, nil)
}

// login signs a user up and exchanges the mailed code for a token.
func login(t *testing.T, username string) string {
	t.Helper()

	email := username + "@example.com"
	call(t, http.MethodPost, "/auth/signup/", "", map[string]string{"username": username, "email": email}, http.StatusOK, nil)

	code := inbox.code(email)
	if code == "" {
		t.Fatalf("no confirmation code mailed to %s", email)
	}

	var resp handlers.TokenResponse
	call(t, http.MethodPost, "/auth/token/", "", map[string]string{"username": username, "confirmation_code": code}, http.StatusOK, &resp)
	if resp.Token == "" {
		t.Fatalf("missing token for %s", username)
	}
	return resp.Token
}

func call(t *testing.T, method, path, token string, payload any, wantStatus int, out any) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		msg, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status %d, want %d: %s", method, path, resp.StatusCode, wantStatus, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
}
