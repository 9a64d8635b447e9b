package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"skibook/internal/auth"
	"skibook/internal/bonus"
	"skibook/internal/events"
	"skibook/internal/logger"

	"github.com/google/uuid"
)

var (
	ErrPhoneExists         = errors.New("phone already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidReferralCode = errors.New("referral code not found")
	ErrInvalidBirthDate    = errors.New("birth date must be YYYY-MM-DD and in the past")
)

const (
	referralCodeLength   = 8
	referralCodeAttempts = 3
)

// BonusAwarder is the part of the bonus engine registration triggers.
type BonusAwarder interface {
	CheckAndAwardBonus(ctx context.Context, t bonus.Type, clientID int64, ev bonus.EventData) ([]bonus.Award, error)
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Client, string, string, error)
	Login(ctx context.Context, req LoginRequest) (*Client, string, string, error)
	GetByID(ctx context.Context, clientID int64) (*Client, error)
	RefreshToken(ctx context.Context, refreshToken string) (string, *Client, error)
}

type service struct {
	repo      Repository
	bonuses   BonusAwarder
	publisher events.Publisher
	jwtSecret string
	now       func() time.Time
}

func NewService(repo Repository, bonuses BonusAwarder, publisher events.Publisher, jwtSecret string) Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &service{
		repo:      repo,
		bonuses:   bonuses,
		publisher: publisher,
		jwtSecret: jwtSecret,
		now:       time.Now,
	}
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*Client, string, string, error) {
	phone := normalizePhone(req.Phone)
	exists, err := s.repo.PhoneExists(ctx, phone)
	if err != nil {
		return nil, "", "", err
	}
	if exists {
		return nil, "", "", ErrPhoneExists
	}

	nc := NewClient{
		FullName: strings.TrimSpace(req.FullName),
		Phone:    phone,
		Role:     auth.RoleClient,
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		nc.Email = &email
	}
	if req.BirthDate != "" {
		bd, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil || !bd.Before(s.now()) {
			return nil, "", "", ErrInvalidBirthDate
		}
		nc.BirthDate = &bd
	}

	var referrer *Client
	if code := strings.ToUpper(strings.TrimSpace(req.ReferralCode)); code != "" {
		referrer, err = s.repo.FindByReferralCode(ctx, code)
		if errors.Is(err, ErrClientNotFound) {
			return nil, "", "", ErrInvalidReferralCode
		}
		if err != nil {
			return nil, "", "", err
		}
		nc.ReferredBy = &referrer.ID
	}

	nc.PasswordHash, err = auth.HashPassword(req.Password)
	if err != nil {
		return nil, "", "", err
	}

	client, err := s.create(ctx, nc)
	if err != nil {
		return nil, "", "", err
	}

	access, refresh, err := auth.GenerateTokens(client.ID, client.Phone, client.Role, s.jwtSecret, s.jwtSecret)
	if err != nil {
		return nil, "", "", err
	}

	s.afterRegister(ctx, client, referrer)
	return client, access, refresh, nil
}

// create retries with a fresh referral code when the generated one collides.
func (s *service) create(ctx context.Context, nc NewClient) (*Client, error) {
	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		nc.ReferralCode = newReferralCode()
		client, err := s.repo.Create(ctx, nc)
		if err == nil {
			return client, nil
		}
		if !errors.Is(err, ErrDuplicate) {
			return nil, err
		}
		exists, lookupErr := s.repo.PhoneExists(ctx, nc.Phone)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if exists {
			return nil, ErrPhoneExists
		}
	}
	return nil, fmt.Errorf("could not allocate a unique referral code after %d attempts", referralCodeAttempts)
}

func (s *service) afterRegister(ctx context.Context, client *Client, referrer *Client) {
	if s.bonuses != nil {
		if _, err := s.bonuses.CheckAndAwardBonus(ctx, bonus.TypeRegistration, client.ID, bonus.EventData{}); err != nil {
			logger.Error("registration bonus failed", "client_id", client.ID, "error", err)
		}
		if referrer != nil {
			ev := bonus.EventData{ReferredClientID: client.ID}
			if _, err := s.bonuses.CheckAndAwardBonus(ctx, bonus.TypeReferral, referrer.ID, ev); err != nil {
				logger.Error("referral bonus failed", "client_id", referrer.ID, "referred_client_id", client.ID, "error", err)
			}
		}
	}

	payload := map[string]any{"client_id": client.ID, "phone": client.Phone}
	if referrer != nil {
		payload["referred_by"] = referrer.ID
	}
	if err := s.publisher.Publish(ctx, events.ClientRegistered, payload); err != nil {
		logger.Warn("publish event failed", "event", events.ClientRegistered, "error", err)
	}
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*Client, string, string, error) {
	client, err := s.repo.FindByPhone(ctx, normalizePhone(req.Phone))
	if err != nil {
		return nil, "", "", ErrInvalidCredentials
	}

	if !auth.CheckPassword(client.PasswordHash, req.Password) {
		return nil, "", "", ErrInvalidCredentials
	}

	access, refresh, err := auth.GenerateTokens(client.ID, client.Phone, client.Role, s.jwtSecret, s.jwtSecret)
	if err != nil {
		return nil, "", "", err
	}
	return client, access, refresh, nil
}

func (s *service) GetByID(ctx context.Context, clientID int64) (*Client, error) {
	return s.repo.FindByID(ctx, clientID)
}

func (s *service) RefreshToken(ctx context.Context, refreshToken string) (string, *Client, error) {
	_, claims, err := auth.RefreshAccessToken(refreshToken, s.jwtSecret, s.jwtSecret)
	if err != nil {
		return "", nil, err
	}

	client, err := s.repo.FindByID(ctx, claims.ClientID)
	if err != nil {
		return "", nil, ErrClientNotFound
	}

	access, err := auth.GenerateAccessToken(client.ID, client.Phone, client.Role, s.jwtSecret)
	if err != nil {
		return "", nil, err
	}
	return access, client, nil
}

func normalizePhone(phone string) string {
	return strings.Join(strings.Fields(phone), "")
}

func newReferralCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(id[:referralCodeLength])
}
