package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/yamdb/apiserver/internal/logging"
	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/internal/validation"
	"github.com/yamdb/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	confirmationCodeLength   = 15
	confirmationCodeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	List(ctx context.Context, filter types.NameFilter, offset, limit int) ([]types.User, int, error)
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	SetConfirmationCode(ctx context.Context, id int, codeHash string) error
	Delete(ctx context.Context, id int) error
}

// CodeMailer delivers confirmation codes.
type CodeMailer interface {
	SendConfirmationCode(ctx context.Context, email, code string) error
}

// SignupRequest is the payload of the self-registration endpoint.
type SignupRequest struct {
	Username string `json:"username" validate:"required,max=150,username"`
	Email    string `json:"email" validate:"required,max=254,email"`
}

// TokenRequest exchanges a confirmation code for an access token.
type TokenRequest struct {
	Username         string `json:"username" validate:"required"`
	ConfirmationCode string `json:"confirmation_code" validate:"required"`
}

// UserCreateRequest is the admin payload for creating a user.
type UserCreateRequest struct {
	Username  string     `json:"username" validate:"required,max=150,username"`
	Email     string     `json:"email" validate:"required,max=254,email"`
	FirstName string     `json:"first_name" validate:"max=150"`
	LastName  string     `json:"last_name" validate:"max=150"`
	Bio       string     `json:"bio"`
	Role      types.Role `json:"role" validate:"omitempty,oneof=user moderator admin"`
}

// UserPatchRequest is a partial update; nil fields are left untouched.
type UserPatchRequest struct {
	Username  *string     `json:"username" validate:"omitnil,max=150,username"`
	Email     *string     `json:"email" validate:"omitnil,max=254,email"`
	FirstName *string     `json:"first_name" validate:"omitnil,max=150"`
	LastName  *string     `json:"last_name" validate:"omitnil,max=150"`
	Bio       *string     `json:"bio"`
	Role      *types.Role `json:"role" validate:"omitnil,oneof=user moderator admin"`
}

// UserService encapsulates identity use-cases: signup, confirmation codes and user management.
type UserService struct {
	repo   UserRepository
	mailer CodeMailer
}

func NewUserService(repo UserRepository, mailer CodeMailer) *UserService {
	return &UserService{repo: repo, mailer: mailer}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

func (s *UserService) List(ctx context.Context, filter types.NameFilter, offset, limit int) ([]types.User, int, error) {
	return s.repo.List(ctx, filter, offset, clampLimit(limit))
}

// Signup registers a user, or re-issues a code when the exact username and
// email pair is already registered, and mails a fresh confirmation code.
func (s *UserService) Signup(ctx context.Context, req SignupRequest) (types.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.Struct(req); err != nil {
		return types.User{}, err
	}

	user, err := s.repo.GetByUsername(ctx, req.Username)
	switch {
	case err == nil && user.Email == req.Email:
		return user, s.issueConfirmationCode(ctx, user)
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return types.User{}, err
	}

	if err := s.checkAvailable(ctx, req.Username, req.Email, 0); err != nil {
		return types.User{}, err
	}

	user, err = s.repo.Create(ctx, types.User{
		Username: req.Username,
		Email:    req.Email,
		Role:     types.RoleUser,
	})
	if err != nil {
		return types.User{}, conflictToValidation(err)
	}
	return user, s.issueConfirmationCode(ctx, user)
}

// VerifyConfirmationCode returns the user when code matches the last issued code.
// An unknown username yields store.ErrNotFound.
func (s *UserService) VerifyConfirmationCode(ctx context.Context, req TokenRequest) (types.User, error) {
	if err := validation.Struct(req); err != nil {
		return types.User{}, err
	}

	user, err := s.repo.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		return types.User{}, err
	}
	if user.ConfirmationCodeHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(user.ConfirmationCodeHash), []byte(req.ConfirmationCode)) != nil {
		return types.User{}, validation.Field("confirmation_code", "Invalid confirmation code.")
	}
	return user, nil
}

// Create adds a user on behalf of an administrator. No confirmation code is mailed.
func (s *UserService) Create(ctx context.Context, req UserCreateRequest) (types.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.Struct(req); err != nil {
		return types.User{}, err
	}
	if err := s.checkAvailable(ctx, req.Username, req.Email, 0); err != nil {
		return types.User{}, err
	}

	role := req.Role
	if role == "" {
		role = types.RoleUser
	}
	user, err := s.repo.Create(ctx, types.User{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Bio:       req.Bio,
		Role:      role,
	})
	if err != nil {
		return types.User{}, conflictToValidation(err)
	}
	return user, nil
}

// Update applies a partial update. When allowRole is false the role field is ignored,
// which is how users edit their own profile.
func (s *UserService) Update(ctx context.Context, user types.User, req UserPatchRequest, allowRole bool) (types.User, error) {
	if req.Username != nil {
		trimmed := strings.TrimSpace(*req.Username)
		req.Username = &trimmed
	}
	if req.Email != nil {
		trimmed := strings.TrimSpace(*req.Email)
		req.Email = &trimmed
	}
	if !allowRole {
		req.Role = nil
	}
	if err := validation.Struct(req); err != nil {
		return types.User{}, err
	}

	username, email := user.Username, user.Email
	if req.Username != nil {
		username = *req.Username
	}
	if req.Email != nil {
		email = *req.Email
	}
	if err := s.checkAvailable(ctx, username, email, user.ID); err != nil {
		return types.User{}, err
	}

	user.Username = username
	user.Email = email
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Bio != nil {
		user.Bio = *req.Bio
	}
	if req.Role != nil {
		user.Role = *req.Role
	}

	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		return types.User{}, conflictToValidation(err)
	}
	return updated, nil
}

func (s *UserService) Delete(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}

// EnsureAdmin creates an admin account or promotes an existing one, setting the staff flag.
func (s *UserService) EnsureAdmin(ctx context.Context, username, email string) (types.User, error) {
	user, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, store.ErrNotFound) {
		user, err = s.Create(ctx, UserCreateRequest{Username: username, Email: email, Role: types.RoleAdmin})
		if err != nil {
			return types.User{}, err
		}
	} else if err != nil {
		return types.User{}, err
	}

	user.Role = types.RoleAdmin
	user.IsStaff = true
	return s.repo.Update(ctx, user)
}

// IssueConfirmationCode generates, stores and mails a new code for user.
func (s *UserService) IssueConfirmationCode(ctx context.Context, user types.User) error {
	return s.issueConfirmationCode(ctx, user)
}

func (s *UserService) issueConfirmationCode(ctx context.Context, user types.User) error {
	code, err := generateConfirmationCode()
	if err != nil {
		return fmt.Errorf("generate confirmation code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash confirmation code: %w", err)
	}
	if err := s.repo.SetConfirmationCode(ctx, user.ID, string(hash)); err != nil {
		return err
	}

	// Delivery is best effort: the code stays valid and can be re-requested.
	if s.mailer != nil {
		if err := s.mailer.SendConfirmationCode(ctx, user.Email, code); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("username", user.Username).Msg("failed to send confirmation code")
		}
	}
	return nil
}

// checkAvailable reports username/email collisions with users other than selfID.
func (s *UserService) checkAvailable(ctx context.Context, username, email string, selfID int) error {
	errs := validation.Errors{}

	existing, err := s.repo.GetByUsername(ctx, username)
	if err == nil && existing.ID != selfID {
		errs.Add("username", "A user with that username already exists.")
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	existing, err = s.repo.GetByEmail(ctx, email)
	if err == nil && existing.ID != selfID {
		errs.Add("email", "A user with that email already exists.")
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// conflictToValidation turns a unique violation lost to a concurrent writer
// into the same field error the pre-check would have produced.
func conflictToValidation(err error) error {
	var conflict *store.ConflictError
	if !errors.As(err, &conflict) {
		return err
	}
	switch {
	case strings.Contains(conflict.Constraint, "username"):
		return validation.Field("username", "A user with that username already exists.")
	case strings.Contains(conflict.Constraint, "email"):
		return validation.Field("email", "A user with that email already exists.")
	case strings.Contains(conflict.Constraint, "slug"):
		return validation.Field("slug", "An entry with this slug already exists.")
	case conflict.Constraint == "unique_author_review":
		return validation.Field("non_field_errors", duplicateReviewMessage)
	default:
		return validation.Field("non_field_errors", "The record conflicts with an existing one.")
	}
}

func generateConfirmationCode() (string, error) {
	alphabetLen := big.NewInt(int64(len(confirmationCodeAlphabet)))
	code := make([]byte, confirmationCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		code[i] = confirmationCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// clampLimit mirrors the handler-side bounds so services stay safe when called directly.
func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
