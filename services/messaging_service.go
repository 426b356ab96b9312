package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"postbox/auth"
	"postbox/domain"
	perrors "postbox/errors"
	"postbox/moderation"
	"postbox/observability"
	"postbox/repositories"
	"postbox/search"

	"github.com/samber/lo"
)

type IMessagingService interface {
	Register(ctx context.Context, username, password string) (domain.ParticipantView, error)
	Send(ctx context.Context, title, body, recipientID string) (domain.Message, error)
	EditMessage(ctx context.Context, id, title, body, recipientID string) (domain.Message, error)
	DeleteMessage(ctx context.Context, id string) (domain.Message, error)
	ListAll(ctx context.Context) ([]domain.Message, error)
	MyUnread(ctx context.Context) ([]domain.Message, error)
	Search(ctx context.Context, phrase string) ([]domain.Message, error)
	Discover(ctx context.Context, input string) ([]domain.Message, error)
	GetByID(ctx context.Context, id string) (domain.Message, error)
	ListParticipants(ctx context.Context) ([]domain.ParticipantView, error)
	Reindex(ctx context.Context) (int, error)
}

// MessagingService holds the access-control rules. The caller identity is
// read from the context, where AuthService.Authenticate put it.
type MessagingService struct {
	log                   *slog.Logger
	participantRepository repositories.IParticipantRepository
	messageRepository     repositories.IMessageRepository
	index                 search.MessageIndex
	moderator             *moderation.Moderator
	hasher                auth.Hasher
	policy                auth.Policy
	monitor               *observability.Monitor
	searchLimit           int
	clock                 Clock
	newID                 IDGenerator
}

func NewMessagingService(
	log *slog.Logger,
	participantRepository repositories.IParticipantRepository,
	messageRepository repositories.IMessageRepository,
	index search.MessageIndex,
	moderator *moderation.Moderator,
	hasher auth.Hasher,
	policy auth.Policy,
	monitor *observability.Monitor,
	searchLimit int,
) *MessagingService {
	return &MessagingService{
		log:                   log,
		participantRepository: participantRepository,
		messageRepository:     messageRepository,
		index:                 index,
		moderator:             moderator,
		hasher:                hasher,
		policy:                policy,
		monitor:               monitor,
		searchLimit:           searchLimit,
		clock:                 UTCNow,
		newID:                 NewUUID,
	}
}

func (s *MessagingService) WithClock(clock Clock) *MessagingService {
	s.clock = clock
	return s
}

func (s *MessagingService) WithIDGenerator(newID IDGenerator) *MessagingService {
	s.newID = newID
	return s
}

func (s *MessagingService) Register(_ context.Context, username, password string) (domain.ParticipantView, error) {
	// 1. Validate business rules before any expensive cryptographic operation
	if err := s.policy.ValidateRegister(auth.RegisterRequest{Username: username, Password: password}); err != nil {
		return domain.ParticipantView{}, err
	}

	// 2. Fail fast on a known username, the insert re-checks atomically
	if _, err := s.participantRepository.FindByUsername(username); err == nil {
		return domain.ParticipantView{}, perrors.ErrUsernameTaken
	} else if !errors.Is(err, perrors.ErrNotFound) {
		return domain.ParticipantView{}, fmt.Errorf("find participant: %w", err)
	}

	// 3. Hash the password, the repository never sees it in clear
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return domain.ParticipantView{}, fmt.Errorf("hashing failed: %w", err)
	}
	id, err := s.newID()
	if err != nil {
		return domain.ParticipantView{}, fmt.Errorf("participant id: %w", err)
	}

	participant := domain.Participant{
		ID:           id,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.clock(),
	}
	if err = s.participantRepository.Insert(participant); err != nil {
		if errors.Is(err, perrors.ErrDuplicateUsername) {
			return domain.ParticipantView{}, perrors.ErrUsernameTaken
		}
		return domain.ParticipantView{}, fmt.Errorf("insert participant: %w", err)
	}

	s.monitor.Incr(observability.OpRegister)
	s.log.Info("Participant registered", "participant_id", id)
	return participant.View(), nil
}

func (s *MessagingService) Send(ctx context.Context, title, body, recipientID string) (domain.Message, error) {
	senderID, ok := auth.ParticipantID(ctx)
	if !ok {
		return domain.Message{}, perrors.ErrNotAuthenticated
	}
	if err := s.checkDraft(domain.Draft{Title: title, Body: body, RecipientID: recipientID}); err != nil {
		return domain.Message{}, err
	}

	id, err := s.newID()
	if err != nil {
		return domain.Message{}, fmt.Errorf("message id: %w", err)
	}
	message := domain.Message{
		ID:          id,
		Title:       s.censor(title),
		Body:        s.censor(body),
		SenderID:    senderID,
		RecipientID: recipientID,
		CreatedAt:   s.clock(),
	}
	if err = s.messageRepository.Insert(message); err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	s.indexMessage(message)

	s.monitor.Incr(observability.OpSend)
	s.log.Debug("Message sent", "message_id", id, "sender_id", senderID, "recipient_id", recipientID)
	return message, nil
}

// EditMessage replaces title, body and recipient. Checks run inside the
// store transaction: existence, then ownership, then the new payload.
// The read flag is left as it is.
func (s *MessagingService) EditMessage(ctx context.Context, id, title, body, recipientID string) (domain.Message, error) {
	callerID, _ := auth.ParticipantID(ctx)
	draft := domain.Draft{Title: title, Body: body, RecipientID: recipientID}

	message, err := s.messageRepository.Update(id, func(m *domain.Message) error {
		if !m.OwnedBy(callerID) {
			return perrors.ErrForbidden
		}
		if err := s.checkDraft(draft); err != nil {
			return err
		}
		now := s.clock()
		m.Title = s.censor(draft.Title)
		m.Body = s.censor(draft.Body)
		m.RecipientID = draft.RecipientID
		m.UpdatedAt = &now
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	s.indexMessage(message)

	s.monitor.Incr(observability.OpEdit)
	s.log.Debug("Message edited", "message_id", id, "sender_id", callerID)
	return message, nil
}

func (s *MessagingService) DeleteMessage(ctx context.Context, id string) (domain.Message, error) {
	callerID, _ := auth.ParticipantID(ctx)

	message, err := s.messageRepository.Remove(id, func(m domain.Message) error {
		if !m.OwnedBy(callerID) {
			return perrors.ErrForbidden
		}
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	if err = s.index.Remove(id); err != nil {
		s.log.Error("Failed to remove message from search index", "message_id", id, "error", err)
	}

	s.monitor.Incr(observability.OpDelete)
	s.log.Debug("Message deleted", "message_id", id, "sender_id", callerID)
	return message, nil
}

func (s *MessagingService) ListAll(_ context.Context) ([]domain.Message, error) {
	return s.messageRepository.ListAll()
}

// MyUnread hands out the caller's unread messages and marks them read.
// A message is returned by exactly one call.
func (s *MessagingService) MyUnread(ctx context.Context) ([]domain.Message, error) {
	participantID, ok := auth.ParticipantID(ctx)
	if !ok {
		return nil, perrors.ErrNotAuthenticated
	}
	messages, err := s.messageRepository.ClaimUnreadFor(participantID)
	if err != nil {
		if len(messages) == 0 {
			return nil, fmt.Errorf("claim unread: %w", err)
		}
		// Already marked read, so they are delivered now or never.
		s.log.Warn("Unread claim stopped early", "participant_id", participantID,
			"claimed", len(messages), "error", err)
	}
	if len(messages) == 0 {
		return nil, perrors.ErrNoUnread
	}
	s.monitor.Incr(observability.OpUnreadClaim)
	return messages, nil
}

func (s *MessagingService) Search(_ context.Context, phrase string) ([]domain.Message, error) {
	messages, err := s.messageRepository.FindContaining(phrase)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, perrors.ErrNoMatches
	}
	return messages, nil
}

// Discover runs a ranked full-text query, see search.ParseQuery for the syntax.
func (s *MessagingService) Discover(ctx context.Context, input string) ([]domain.Message, error) {
	query := search.ParseQuery(input, s.searchLimit)
	if query.Empty() {
		return nil, fmt.Errorf("%w: query has no search terms", perrors.ErrInvalidInput)
	}
	ids, err := s.index.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		message, err := s.messageRepository.Get(id)
		if errors.Is(err, perrors.ErrNotFound) {
			s.log.Warn("Search index returned a deleted message", "message_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	s.monitor.Incr(observability.OpDiscover)
	if len(messages) == 0 {
		return nil, perrors.ErrNoMatches
	}
	return messages, nil
}

func (s *MessagingService) GetByID(_ context.Context, id string) (domain.Message, error) {
	return s.messageRepository.Get(id)
}

// ListParticipants never exposes password hashes.
func (s *MessagingService) ListParticipants(_ context.Context) ([]domain.ParticipantView, error) {
	participants, err := s.participantRepository.ListAll()
	if err != nil {
		return nil, err
	}
	return lo.Map(participants, func(p domain.Participant, _ int) domain.ParticipantView {
		return p.View()
	}), nil
}

// Reindex makes the search index mirror the message store.
func (s *MessagingService) Reindex(ctx context.Context) (int, error) {
	messages, err := s.messageRepository.ListAll()
	if err != nil {
		return 0, err
	}
	if err = s.index.Rebuild(ctx, messages); err != nil {
		return 0, err
	}
	s.log.Info("Search index rebuilt", "messages", len(messages))
	return len(messages), nil
}

func (s *MessagingService) checkDraft(draft domain.Draft) error {
	if err := s.policy.ValidateMessage(auth.MessageRequest{
		Title:       draft.Title,
		Body:        draft.Body,
		RecipientID: draft.RecipientID,
	}); err != nil {
		return err
	}
	exists, err := s.participantRepository.Exists(draft.RecipientID)
	if err != nil {
		return fmt.Errorf("check recipient: %w", err)
	}
	if !exists {
		return perrors.ErrRecipientNotFound
	}
	return nil
}

func (s *MessagingService) censor(text string) string {
	censored, words := s.moderator.Censor(text)
	if len(words) > 0 {
		s.log.Debug("Censored words replaced", "count", len(words))
	}
	return censored
}

// The store is the source of truth: an indexing failure is logged and
// repaired by the next Reindex.
func (s *MessagingService) indexMessage(message domain.Message) {
	if err := s.index.Index(message); err != nil {
		s.log.Error("Failed to index message", "message_id", message.ID, "error", err)
	}
}
