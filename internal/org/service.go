package org

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/requestcontext"
)

// TokenIssuer mints access tokens for authenticated organizations.
type TokenIssuer interface {
	GenerateAccessToken(orgID id.OrgID, role id.Role, expiresIn time.Duration) (string, error)
}

const accessTokenTTL = 24 * time.Hour

// Service handles registration, authentication and the directory.
type Service struct {
	store  Store
	tokens TokenIssuer
	logger *slog.Logger
}

func NewService(store Store, tokens TokenIssuer, logger *slog.Logger) *Service {
	return &Service{store: store, tokens: tokens, logger: logger}
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	Name        string
	CompanyName string
	Email       string
	Password    string
	Role        string
}

// RegisterResult pairs the new organization with its first access token and
// role-dispatched landing path.
type RegisterResult struct {
	Org           Public
	Token         string
	DashboardPath string
}

// Register creates an organization with an immutable identity: a fresh id, a
// ledger address derived from it, and the declared role.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	role, err := id.ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Email) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "name and email are required")
	}
	if len(in.Password) < 8 {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "hash password", err)
	}

	orgID := id.NewOrgID()
	org := &Organization{
		ID:           orgID,
		Name:         strings.TrimSpace(in.Name),
		CompanyName:  strings.TrimSpace(in.CompanyName),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Role:         role,
		Address:      id.DeriveAddress(orgID),
		CreatedAt:    requestcontext.Now(ctx),
		PasswordHash: hash,
	}
	if err := s.store.Create(ctx, org); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "an organization with this email already exists")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "create organization", err)
	}

	token, err := s.tokens.GenerateAccessToken(org.ID, org.Role, accessTokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "issue token", err)
	}

	s.logger.InfoContext(ctx, "organization registered",
		"org_id", org.ID.String(),
		"role", string(org.Role),
	)
	return &RegisterResult{
		Org:           org.ToPublic(),
		Token:         token,
		DashboardPath: id.DashboardPath(org.Role),
	}, nil
}

// Login authenticates by email and password.
func (s *Service) Login(ctx context.Context, email, password string) (*RegisterResult, error) {
	org, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthenticated, "invalid credentials")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "find organization", err)
	}
	if bcrypt.CompareHashAndPassword(org.PasswordHash, []byte(password)) != nil {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "invalid credentials")
	}

	token, err := s.tokens.GenerateAccessToken(org.ID, org.Role, accessTokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "issue token", err)
	}
	return &RegisterResult{
		Org:           org.ToPublic(),
		Token:         token,
		DashboardPath: id.DashboardPath(org.Role),
	}, nil
}

// Get returns one organization by id.
func (s *Service) Get(ctx context.Context, orgID id.OrgID) (*Organization, error) {
	org, err := s.store.FindByID(ctx, orgID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "organization not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "find organization", err)
	}
	return org, nil
}

// AddressOf resolves an organization to its ledger address.
func (s *Service) AddressOf(ctx context.Context, orgID id.OrgID) (id.Address, error) {
	org, err := s.Get(ctx, orgID)
	if err != nil {
		return "", err
	}
	return org.Address, nil
}

// GetByAddress resolves a ledger address to its organization.
func (s *Service) GetByAddress(ctx context.Context, addr id.Address) (*Organization, error) {
	org, err := s.store.FindByAddress(ctx, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no organization with this ledger address")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "find organization", err)
	}
	return org, nil
}

// Directory lists every other organization, for partnership requests.
func (s *Service) Directory(ctx context.Context, caller id.OrgID) ([]Public, error) {
	orgs, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "list organizations", err)
	}
	out := make([]Public, 0, len(orgs))
	for _, org := range orgs {
		if org.ID == caller {
			continue
		}
		out = append(out, org.ToPublic())
	}
	return out, nil
}
