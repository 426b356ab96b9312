package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"postbox/auth"
	"postbox/domain"
	perrors "postbox/errors"
	"postbox/observability"
	"postbox/repositories"
	"postbox/runtime"
)

type IAuthService interface {
	Login(ctx context.Context, username, password string) (domain.LoginResult, error)
	Logout(ctx context.Context, token string) error
	LogoutEverywhere(ctx context.Context) (int, error)
	Authenticate(ctx context.Context, token string) (context.Context, error)
}

// AuthService opens and closes sessions. A session is a registry entry plus
// a signed token handed to the caller; both must agree for a call to be
// authenticated.
type AuthService struct {
	log                   *slog.Logger
	participantRepository repositories.IParticipantRepository
	messageRepository     repositories.IMessageRepository
	hasher                auth.Hasher
	tokens                *auth.TokenIssuer
	sessions              *runtime.Registry
	monitor               *observability.Monitor
	clock                 Clock
	newID                 IDGenerator
}

func NewAuthService(
	log *slog.Logger,
	participantRepository repositories.IParticipantRepository,
	messageRepository repositories.IMessageRepository,
	hasher auth.Hasher,
	tokens *auth.TokenIssuer,
	sessions *runtime.Registry,
	monitor *observability.Monitor,
) *AuthService {
	return &AuthService{
		log:                   log,
		participantRepository: participantRepository,
		messageRepository:     messageRepository,
		hasher:                hasher,
		tokens:                tokens,
		sessions:              sessions,
		monitor:               monitor,
		clock:                 UTCNow,
		newID:                 NewUUID,
	}
}

func (s *AuthService) WithClock(clock Clock) *AuthService {
	s.clock = clock
	return s
}

func (s *AuthService) WithIDGenerator(newID IDGenerator) *AuthService {
	s.newID = newID
	return s
}

func (s *AuthService) Login(_ context.Context, username, password string) (domain.LoginResult, error) {
	// 1. Retrieve the participant through the username index
	participant, err := s.participantRepository.FindByUsername(username)
	if errors.Is(err, perrors.ErrNotFound) {
		s.monitor.Incr(observability.OpLoginFailed)
		return domain.LoginResult{}, perrors.ErrInvalidUsername
	}
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("find participant: %w", err)
	}

	// 2. Compare the provided password with the stored hash
	match, err := s.hasher.Compare(password, participant.PasswordHash)
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("compare password: %w", err)
	}
	if !match {
		s.monitor.Incr(observability.OpLoginFailed)
		s.log.Info("Login refused", "participant_id", participant.ID)
		return domain.LoginResult{}, perrors.ErrInvalidPassword
	}

	// 3. Issue the token and count unread messages before anything is written
	sessionID, err := s.newID()
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("session id: %w", err)
	}
	token, expiresAt, err := s.tokens.Generate(sessionID, participant.ID)
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("%w: %v", perrors.ErrTokenGeneration, err)
	}
	unread, err := s.messageRepository.CountUnreadFor(participant.ID)
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("count unread: %w", err)
	}

	// 4. Stamp the login and open the session
	now := s.clock()
	if _, err = s.participantRepository.Update(participant.ID, func(p *domain.Participant) error {
		p.LastLogin = &now
		p.UpdatedAt = &now
		return nil
	}); err != nil {
		return domain.LoginResult{}, fmt.Errorf("stamp last login: %w", err)
	}

	session := domain.Session{
		ID:            sessionID,
		ParticipantID: participant.ID,
		Token:         token,
		IssuedAt:      now,
		ExpiresAt:     expiresAt,
	}
	s.sessions.Open(session)
	s.monitor.Incr(observability.OpLogin)
	s.log.Info("Participant logged in", "participant_id", participant.ID, "session_id", sessionID, "unread", unread)

	return domain.LoginResult{Session: session, Unread: unread}, nil
}

// Logout closes the session behind token. Anything that does not resolve to
// an open session is reported as ErrNoActiveSession.
func (s *AuthService) Logout(_ context.Context, token string) error {
	session, err := s.resolve(token)
	if err != nil {
		return perrors.ErrNoActiveSession
	}
	if !s.sessions.Close(session.ID) {
		return perrors.ErrNoActiveSession
	}
	s.monitor.Incr(observability.OpLogout)
	s.log.Info("Participant logged out", "participant_id", session.ParticipantID, "session_id", session.ID)
	return nil
}

// LogoutEverywhere closes every session of the authenticated participant,
// the current one included.
func (s *AuthService) LogoutEverywhere(ctx context.Context) (int, error) {
	participantID, ok := auth.ParticipantID(ctx)
	if !ok {
		return 0, perrors.ErrNotAuthenticated
	}
	closed := s.sessions.CloseAllFor(participantID)
	s.log.Info("Participant logged out everywhere", "participant_id", participantID, "sessions", closed)
	return closed, nil
}

// Authenticate resolves token and returns a context carrying the caller identity.
func (s *AuthService) Authenticate(ctx context.Context, token string) (context.Context, error) {
	session, err := s.resolve(token)
	if err != nil {
		return ctx, perrors.ErrNotAuthenticated
	}
	return auth.WithIdentity(ctx, session.ParticipantID, session.ID), nil
}

func (s *AuthService) resolve(token string) (domain.Session, error) {
	if token == "" {
		return domain.Session{}, perrors.ErrNoActiveSession
	}
	claims, err := s.tokens.Validate(token)
	if err != nil {
		if auth.IsExpired(err) {
			s.log.Debug("Expired session token presented")
		}
		return domain.Session{}, err
	}
	session, ok := s.sessions.Lookup(claims.ID)
	if !ok || session.ParticipantID != claims.ParticipantID {
		return domain.Session{}, perrors.ErrNoActiveSession
	}
	return session, nil
}
