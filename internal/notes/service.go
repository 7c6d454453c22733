package notes

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meetcore/interview-rtc/internal/auth"
)

// Service gates note operations on the admitted role and delegates
// persistence to the injected store. All operations are ack-based: the
// caller waits for the store round-trip before acknowledging, but only
// the requesting connection waits, never the room.
type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

func (s *Service) authorize(role auth.Role) error {
	if role != auth.RoleInterviewer {
		return ErrForbidden
	}
	return nil
}

// Add creates a note on the candidate's application and returns it.
func (s *Service) Add(ctx context.Context, role auth.Role, candidateID, content string) (Note, error) {
	if err := s.authorize(role); err != nil {
		return Note{}, err
	}
	n := Note{
		ID:        uuid.New().String(),
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Add(ctx, candidateID, n); err != nil {
		s.logger.Warn("note add failed", zap.String("candidate", candidateID), zap.Error(err))
		return Note{}, err
	}
	return n, nil
}

// Update rewrites a note's content, preserving its creation time.
func (s *Service) Update(ctx context.Context, role auth.Role, candidateID, noteID, content string) (Note, error) {
	if err := s.authorize(role); err != nil {
		return Note{}, err
	}
	n, err := s.store.Update(ctx, candidateID, noteID, content)
	if err != nil {
		s.logger.Warn("note update failed",
			zap.String("candidate", candidateID), zap.String("note", noteID), zap.Error(err))
		return Note{}, err
	}
	return n, nil
}

// Delete removes a note.
func (s *Service) Delete(ctx context.Context, role auth.Role, candidateID, noteID string) error {
	if err := s.authorize(role); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, candidateID, noteID); err != nil {
		s.logger.Warn("note delete failed",
			zap.String("candidate", candidateID), zap.String("note", noteID), zap.Error(err))
		return err
	}
	return nil
}

// List returns every note on the candidate's application.
func (s *Service) List(ctx context.Context, role auth.Role, candidateID string) ([]Note, error) {
	if err := s.authorize(role); err != nil {
		return nil, err
	}
	ns, err := s.store.List(ctx, candidateID)
	if err != nil {
		s.logger.Warn("note list failed", zap.String("candidate", candidateID), zap.Error(err))
		return nil, err
	}
	return ns, nil
}
