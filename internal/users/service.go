package users

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/auth"
	"github.com/ariefcatur/go-marketplace/internal/paging"
	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, u User, p *Producer) error
	ByEmail(ctx context.Context, email string) (User, error)
	ByID(ctx context.Context, id string) (User, error)
	List(ctx context.Context, f Filter) ([]User, int, error)
	Update(ctx context.Context, id string, p Patch) (User, error)
	Delete(ctx context.Context, id string) error
}

type tokenIssuer interface {
	Issue(userID string, role auth.Role) (string, time.Time, error)
}

type Service struct {
	repo   Repository
	tokens tokenIssuer
	now    func() time.Time
}

func NewService(repo Repository, tokens tokenIssuer) *Service {
	return &Service{repo: repo, tokens: tokens, now: time.Now}
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	if in.Role == "" {
		in.Role = auth.RoleClient
	}
	if in.Role != auth.RoleClient && in.Role != auth.RoleProducer {
		return User{}, ErrInvalidRole
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	now := s.now().UTC()
	u := User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: hash,
		Name:         in.Name,
		Role:         in.Role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	var p *Producer
	if u.Role == auth.RoleProducer {
		if strings.TrimSpace(in.ProducerName) == "" {
			return User{}, ErrProducerName
		}
		p = &Producer{
			ID:          uuid.NewString(),
			UserID:      u.ID,
			Name:        in.ProducerName,
			Description: in.Description,
			CreatedAt:   now,
		}
		u.ProducerID = &p.ID
	}
	if err := s.repo.Create(ctx, u, p); err != nil {
		return User{}, err
	}
	slog.InfoContext(ctx, "user registered", "user_id", u.ID, "role", u.Role)
	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.repo.ByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if !u.Active {
		return Session{}, ErrInactive
	}
	tok, exp, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: tok, ExpiresAt: exp, User: u}, nil
}

func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	return s.repo.ByID(ctx, userID)
}

func (s *Service) SetTelegramChat(ctx context.Context, userID string, chatID *int64) (User, error) {
	return s.repo.Update(ctx, userID, Patch{TelegramChatID: chatID})
}

func (s *Service) List(ctx context.Context, f Filter) (paging.Result[User], error) {
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return paging.Result[User]{}, err
	}
	return paging.NewResult(items, total, f.Params), nil
}

// Update is the admin patch. An admin cannot demote or deactivate themselves.
func (s *Service) Update(ctx context.Context, actor auth.Principal, id string, p Patch) (User, error) {
	if p.Role != nil && !p.Role.Valid() {
		return User{}, ErrInvalidRole
	}
	if actor.UserID == id && ((p.Role != nil && *p.Role != auth.RoleAdmin) || (p.Active != nil && !*p.Active)) {
		return User{}, auth.ErrSelfLockout
	}
	u, err := s.repo.Update(ctx, id, p)
	if err != nil {
		return User{}, err
	}
	slog.InfoContext(ctx, "user updated", "user_id", id, "by", actor.UserID)
	return u, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Principal, id string) error {
	if actor.UserID == id {
		return auth.ErrSelfLockout
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "user deleted", "user_id", id, "by", actor.UserID)
	return nil
}
