package anonymous

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/logging"
	"storefront/internal/repository/session"
	"go.uber.org/zap"
)

// SessionTTL is the lifetime of an anonymous cart session and its cookie.
const SessionTTL = 7 * 24 * time.Hour

type Service struct {
	sessions session.Repository
	ttl      time.Duration
	logger   *zap.Logger
}

func New(sessions session.Repository, logger *zap.Logger) *Service {
	return &Service{sessions: sessions, ttl: SessionTTL, logger: logging.OrNop(logger)}
}

// Issue mints and registers a fresh anonymous session token.
func (s *Service) Issue(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 3; attempt++ {
		token, err := randomToken()
		if err != nil {
			return "", fmt.Errorf("generate session token: %w", err)
		}
		err = s.sessions.Register(ctx, token, s.ttl)
		if errors.Is(err, domain.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return "", err
		}
		s.logger.Debug("anonymous session issued")
		return token, nil
	}
	return "", errors.New("could not mint a unique session token")
}

// Resolve maps a cookie token to its cart owner. ok is false when the token
// is malformed, unknown or expired; the caller should then Issue a new one.
func (s *Service) Resolve(ctx context.Context, token string) (domain.CartOwner, bool, error) {
	if !wellFormed(token) {
		return domain.CartOwner{}, false, nil
	}
	active, err := s.sessions.Active(ctx, token)
	if err != nil {
		return domain.CartOwner{}, false, err
	}
	if !active {
		return domain.CartOwner{}, false, nil
	}
	if err := s.sessions.Touch(ctx, token, s.ttl); err != nil {
		s.logger.Warn("anonymous session touch failed", zap.Error(err))
	}
	return domain.AnonymousOwner(token), true, nil
}

func (s *Service) TTLSeconds() int {
	return int(s.ttl.Seconds())
}
