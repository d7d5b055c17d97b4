package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/internal/store/memstore"
	"github.com/yamdb/apiserver/internal/validation"
	"github.com/yamdb/apiserver/types"
)

type recordingMailer struct {
	codes map[string][]string
	err   error
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{codes: map[string][]string{}}
}

func (m *recordingMailer) SendConfirmationCode(_ context.Context, email, code string) error {
	m.codes[email] = append(m.codes[email], code)
	return m.err
}

func (m *recordingMailer) last(email string) string {
	codes := m.codes[email]
	if len(codes) == 0 {
		return ""
	}
	return codes[len(codes)-1]
}

func newUserService(t *testing.T) (*UserService, *memstore.Store, *recordingMailer) {
	t.Helper()
	mem := memstore.New()
	mailer := newRecordingMailer()
	return NewUserService(mem.Users(), mailer), mem, mailer
}

func fieldErrors(t *testing.T, err error) validation.Errors {
	t.Helper()
	var errs validation.Errors
	require.True(t, errors.As(err, &errs), "expected validation errors, got %v", err)
	return errs
}

func TestSignupCreatesUserAndSendsCode(t *testing.T) {
	svc, _, mailer := newUserService(t)
	ctx := context.Background()

	user, err := svc.Signup(ctx, SignupRequest{Username: "bob", Email: "b@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "bob", user.Username)
	assert.Equal(t, types.RoleUser, user.Role)

	code := mailer.last("b@x.com")
	assert.Len(t, code, confirmationCodeLength)

	verified, err := svc.VerifyConfirmationCode(ctx, TokenRequest{Username: "bob", ConfirmationCode: code})
	require.NoError(t, err)
	assert.Equal(t, user.ID, verified.ID)
}

func TestSignupRepeatRequiresExactEmail(t *testing.T) {
	svc, mem, mailer := newUserService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupRequest{Username: "bob", Email: "b@x.com"})
	require.NoError(t, err)

	_, err = svc.Signup(ctx, SignupRequest{Username: "bob", Email: "B@X.com"})
	assert.Contains(t, fieldErrors(t, err), "username")
	assert.Empty(t, mailer.codes["B@X.com"])
	assert.Len(t, mailer.codes["b@x.com"], 1)

	_, total, err := mem.Users().List(ctx, types.NameFilter{}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestSignupRepeatIssuesNewCodeWithoutDuplicate(t *testing.T) {
	svc, mem, mailer := newUserService(t)
	ctx := context.Background()

	first, err := svc.Signup(ctx, SignupRequest{Username: "bob", Email: "b@x.com"})
	require.NoError(t, err)
	second, err := svc.Signup(ctx, SignupRequest{Username: "bob", Email: "b@x.com"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, mailer.codes["b@x.com"], 2)

	_, total, err := mem.Users().List(ctx, types.NameFilter{}, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, err = svc.VerifyConfirmationCode(ctx, TokenRequest{Username: "bob", ConfirmationCode: mailer.last("b@x.com")})
	assert.NoError(t, err)
}

func TestSignupRejectsTakenUsernameOrEmail(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupRequest{Username: "bob", Email: "b@x.com"})
	require.NoError(t, err)

	_, err = svc.Signup(ctx, SignupRequest{Username: "bob", Email: "other@x.com"})
	assert.Contains(t, fieldErrors(t, err), "username")

	_, err = svc.Signup(ctx, SignupRequest{Username: "alice", Email: "b@x.com"})
	assert.Contains(t, fieldErrors(t, err), "email")
}

func TestSignupValidation(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   SignupRequest
		field string
	}{
		{name: "missing username", req: SignupRequest{Email: "a@x.com"}, field: "username"},
		{name: "missing email", req: SignupRequest{Username: "alice"}, field: "email"},
		{name: "reserved username", req: SignupRequest{Username: "me", Email: "a@x.com"}, field: "username"},
		{name: "bad characters", req: SignupRequest{Username: "al ice", Email: "a@x.com"}, field: "username"},
		{name: "bad email", req: SignupRequest{Username: "alice", Email: "nope"}, field: "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Signup(ctx, tt.req)
			assert.Contains(t, fieldErrors(t, err), tt.field)
		})
	}
}

func TestSignupSwallowsMailerFailure(t *testing.T) {
	svc, _, mailer := newUserService(t)
	mailer.err = errors.New("smtp down")

	_, err := svc.Signup(context.Background(), SignupRequest{Username: "bob", Email: "b@x.com"})
	assert.NoError(t, err)
}

func TestVerifyConfirmationCode(t *testing.T) {
	svc, _, mailer := newUserService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupRequest{Username: "bob", Email: "b@x.com"})
	require.NoError(t, err)

	_, err = svc.VerifyConfirmationCode(ctx, TokenRequest{Username: "bob", ConfirmationCode: "wrong"})
	assert.Contains(t, fieldErrors(t, err), "confirmation_code")

	_, err = svc.VerifyConfirmationCode(ctx, TokenRequest{Username: "ghost", ConfirmationCode: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.VerifyConfirmationCode(ctx, TokenRequest{Username: "bob"})
	assert.Contains(t, fieldErrors(t, err), "confirmation_code")

	// The code stays valid after use.
	code := mailer.last("b@x.com")
	for range 2 {
		_, err = svc.VerifyConfirmationCode(ctx, TokenRequest{Username: "bob", ConfirmationCode: code})
		assert.NoError(t, err)
	}
}

func TestVerifyRejectsUserWithoutCode(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, UserCreateRequest{Username: "carol", Email: "c@x.com"})
	require.NoError(t, err)

	_, err = svc.VerifyConfirmationCode(ctx, TokenRequest{Username: "carol", ConfirmationCode: "anything"})
	assert.Contains(t, fieldErrors(t, err), "confirmation_code")
}

func TestUpdateIgnoresRoleForSelf(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	user, err := svc.Create(ctx, UserCreateRequest{Username: "carol", Email: "c@x.com"})
	require.NoError(t, err)

	admin := types.RoleAdmin
	bio := "hello"
	updated, err := svc.Update(ctx, user, UserPatchRequest{Role: &admin, Bio: &bio}, false)
	require.NoError(t, err)
	assert.Equal(t, types.RoleUser, updated.Role)
	assert.Equal(t, "hello", updated.Bio)

	updated, err = svc.Update(ctx, updated, UserPatchRequest{Role: &admin}, true)
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, updated.Role)
}

func TestUpdateRejectsInvalidRoleAndTakenEmail(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	carol, err := svc.Create(ctx, UserCreateRequest{Username: "carol", Email: "c@x.com"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, UserCreateRequest{Username: "dave", Email: "d@x.com"})
	require.NoError(t, err)

	role := types.Role("superuser")
	_, err = svc.Update(ctx, carol, UserPatchRequest{Role: &role}, true)
	assert.Contains(t, fieldErrors(t, err), "role")

	email := "d@x.com"
	_, err = svc.Update(ctx, carol, UserPatchRequest{Email: &email}, true)
	assert.Contains(t, fieldErrors(t, err), "email")

	same := "c@x.com"
	_, err = svc.Update(ctx, carol, UserPatchRequest{Email: &same}, true)
	assert.NoError(t, err)
}

func TestEnsureAdmin(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	created, err := svc.EnsureAdmin(ctx, "root", "root@x.com")
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, created.Role)
	assert.True(t, created.IsStaff)

	user, err := svc.Create(ctx, UserCreateRequest{Username: "erin", Email: "e@x.com"})
	require.NoError(t, err)
	promoted, err := svc.EnsureAdmin(ctx, "erin", "")
	require.NoError(t, err)
	assert.Equal(t, user.ID, promoted.ID)
	assert.True(t, promoted.IsAdminOrStaff())
}

func TestConflictToValidation(t *testing.T) {
	err := conflictToValidation(&store.ConflictError{Constraint: "users_email_key"})
	assert.Contains(t, fieldErrors(t, err), "email")

	err = conflictToValidation(&store.ConflictError{Constraint: "unique_author_review"})
	assert.Contains(t, fieldErrors(t, err), "non_field_errors")

	plain := errors.New("boom")
	assert.Equal(t, plain, conflictToValidation(plain))
}

func TestGenerateConfirmationCode(t *testing.T) {
	a, err := generateConfirmationCode()
	require.NoError(t, err)
	b, err := generateConfirmationCode()
	require.NoError(t, err)

	assert.Len(t, a, confirmationCodeLength)
	assert.NotEqual(t, a, b)
	for _, r := range a {
		assert.Contains(t, confirmationCodeAlphabet, string(r))
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, clampLimit(0))
	assert.Equal(t, 5, clampLimit(5))
	assert.Equal(t, 100, clampLimit(1000))
}
