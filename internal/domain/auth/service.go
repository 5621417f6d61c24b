// Package auth issues identity tokens, authenticates bearer tokens and runs
// the password reset flow.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/eshop/internal/apperr"
	"github.com/xenking/eshop/internal/domain/user"
)

// ResetCodeTTL is how long an emailed reset code stays valid.
const ResetCodeTTL = 10 * time.Minute

var (
	ErrNotLoggedIn         = apperr.Unauthorized("You are not logged in, please login to get access.")
	ErrBadCredentials      = apperr.Unauthorized("Incorrect email or password.")
	ErrUserGone            = apperr.Unauthorized("The user belonging to this token no longer exists.")
	ErrPasswordChanged     = apperr.Unauthorized("User recently changed password. Please log in again.")
	ErrInactive            = apperr.Unauthorized("This account is deactivated, please login again.")
	ErrForbidden           = apperr.Forbidden("You are not allowed to perform this action.")
	ErrNoUserWithEmail     = apperr.NotFound("There is no user with that email address.")
	ErrResetCodeInvalid    = apperr.Invalid("Reset code is invalid or has expired.")
	ErrResetCodeUnverified = apperr.Invalid("Reset code has not been verified.")
)

// Mailer delivers plain-text email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SignupInput struct {
	Name            string `json:"name" binding:"required,min=3,max=64"`
	Email           string `json:"email" binding:"required,email"`
	Phone           string `json:"phone" binding:"omitempty,e164"`
	Password        string `json:"password" binding:"required,min=6"`
	PasswordConfirm string `json:"passwordConfirm" binding:"required"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type ForgotPasswordInput struct {
	Email string `json:"email" binding:"required,email"`
}

type VerifyResetCodeInput struct {
	ResetCode string `json:"resetCode" binding:"required,len=6,numeric"`
}

type ResetPasswordInput struct {
	Email       string `json:"email" binding:"required,email"`
	NewPassword string `json:"newPassword" binding:"required,min=6"`
}

// Session is the result of a successful sign-in.
type Session struct {
	User  *user.User
	Token string
}

// Service authenticates callers against the account store.
type Service struct {
	users  user.Repository
	tokens *Tokens
	mailer Mailer
	now    func() time.Time
}

func NewService(users user.Repository, tokens *Tokens, mailer Mailer) *Service {
	return &Service{users: users, tokens: tokens, mailer: mailer, now: time.Now}
}

// Signup registers a regular user and signs them in.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	u, err := user.New(user.CreateInput{
		Name:            in.Name,
		Email:           in.Email,
		Phone:           in.Phone,
		Password:        in.Password,
		PasswordConfirm: in.PasswordConfirm,
		Role:            user.RoleUser,
	})
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, errors.Wrap(err, "create user")
	}
	return s.session(u)
}

// Login checks credentials. Signing in reactivates a deactivated account.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, user.NormalizeEmail(in.Email))
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, errors.Wrap(err, "lookup user")
	}
	if !user.CheckPassword(u.PasswordHash, in.Password) {
		return nil, ErrBadCredentials
	}
	if !u.Active {
		if err := s.users.SetActive(ctx, u.ID, true); err != nil {
			return nil, errors.Wrap(err, "reactivate user")
		}
		u.Active = true
	}
	return s.session(u)
}

func (s *Service) session(u *user.User) (*Session, error) {
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: token}, nil
}

// Authenticate resolves a bearer token to the caller's identity.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNotLoggedIn
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Identity{}, err
	}
	u, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, user.ErrNotFound) {
		return Identity{}, ErrUserGone
	}
	if err != nil {
		return Identity{}, errors.Wrap(err, "lookup user")
	}
	if u.ChangedPasswordAfter(claims.IssuedAt) {
		return Identity{}, ErrPasswordChanged
	}
	if !u.Active {
		return Identity{}, ErrInactive
	}
	return Identity{UserID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}, nil
}

// Require authorizes the identity for the roles.
func Require(id Identity, roles ...user.Role) error {
	if !Authorize(id, roles...) {
		return ErrForbidden
	}
	return nil
}

// ForgotPassword stores a hashed one-time code and emails it to the user.
func (s *Service) ForgotPassword(ctx context.Context, in ForgotPasswordInput) error {
	u, err := s.users.GetByEmail(ctx, user.NormalizeEmail(in.Email))
	if errors.Is(err, user.ErrNotFound) {
		return ErrNoUserWithEmail
	}
	if err != nil {
		return errors.Wrap(err, "lookup user")
	}

	code, err := newResetCode()
	if err != nil {
		return err
	}
	hash := hashResetCode(code)
	expires := s.now().Add(ResetCodeTTL)
	if err := s.users.SetResetCode(ctx, u.ID, &hash, &expires, false); err != nil {
		return errors.Wrap(err, "store reset code")
	}

	body := fmt.Sprintf("Hi %s,\n\nWe received a request to reset the password on your account.\n"+
		"%s\nEnter this code to complete the reset. It expires in %d minutes.\n",
		u.Name, code, int(ResetCodeTTL.Minutes()))
	if err := s.mailer.Send(ctx, u.Email, "Your password reset code (valid for 10 min)", body); err != nil {
		if clearErr := s.users.SetResetCode(ctx, u.ID, nil, nil, false); clearErr != nil {
			zctx.From(ctx).Warn("Clear reset code", zap.String("user_id", u.ID), zap.Error(clearErr))
		}
		return errors.Wrap(err, "send reset code")
	}
	return nil
}

// VerifyResetCode marks an unexpired code as verified.
func (s *Service) VerifyResetCode(ctx context.Context, in VerifyResetCodeInput) error {
	u, err := s.users.GetByResetCode(ctx, hashResetCode(in.ResetCode), s.now())
	if errors.Is(err, user.ErrNotFound) {
		return ErrResetCodeInvalid
	}
	if err != nil {
		return errors.Wrap(err, "lookup reset code")
	}
	return s.users.SetResetCode(ctx, u.ID, u.ResetCodeHash, u.ResetExpiresAt, true)
}

// ResetPassword replaces the password once the reset code was verified.
func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, user.NormalizeEmail(in.Email))
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrNoUserWithEmail
	}
	if err != nil {
		return nil, errors.Wrap(err, "lookup user")
	}
	if !u.ResetVerified {
		return nil, ErrResetCodeUnverified
	}

	hash, err := user.HashPassword(in.NewPassword)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetPassword(ctx, u.ID, hash, s.now()); err != nil {
		return nil, errors.Wrap(err, "set password")
	}
	if err := s.users.SetResetCode(ctx, u.ID, nil, nil, false); err != nil {
		return nil, errors.Wrap(err, "clear reset code")
	}
	u.PasswordHash = hash
	return s.session(u)
}

// IssueToken signs a fresh token for the user, e.g. after a password change.
func (s *Service) IssueToken(userID string) (string, error) {
	return s.tokens.Issue(userID)
}

func newResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", errors.Wrap(err, "generate reset code")
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func hashResetCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
