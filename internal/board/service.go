package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"pinboard.dev/internal/auth"
	"pinboard.dev/internal/ids"
	"pinboard.dev/internal/obs"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 500
	maxColorLength       = 32
	maxItems             = 50
	maxItemLength        = 500
	defaultColor         = "yellow"
)

// Gate is the authorization surface the board service depends on.
type Gate interface {
	Member(ctx context.Context, id auth.Identity) (*auth.User, error)
	Authorize(ctx context.Context, id auth.Identity, action auth.Action, load auth.ResourceLoader) (*auth.User, error)
}

// Service exposes board and note operations. Every method passes the caller
// through the gate before touching data.
type Service struct {
	store  Store
	gate   Gate
	now    func() time.Time
	logger *zap.Logger
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithLogger overrides the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(store Store, gate Gate, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("board: store is required")
	}
	if gate == nil {
		return nil, errors.New("board: gate is required")
	}
	s := &Service{store: store, gate: gate, now: time.Now, logger: obs.Logger().Named("board")}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) ListBoards(ctx context.Context, id auth.Identity) ([]Board, error) {
	user, err := s.gate.Member(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.store.ListBoards(ctx, user.OrganizationID)
}

func (s *Service) CreateBoard(ctx context.Context, id auth.Identity, name, description string) (*Board, error) {
	user, err := s.gate.Member(ctx, id)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return nil, fmt.Errorf("%w: board name must be 1-%d characters", ErrInvalidInput, maxNameLength)
	}
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return nil, fmt.Errorf("%w: description too long", ErrInvalidInput)
	}
	now := s.now().UTC()
	b := &Board{
		ID:             ids.New(),
		OrganizationID: user.OrganizationID,
		Name:           name,
		Description:    description,
		CreatedBy:      user.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateBoard(ctx, b); err != nil {
		return nil, fmt.Errorf("create board: %w", err)
	}
	s.logger.Info("board created", zap.String("board_id", b.ID), zap.String("organization_id", b.OrganizationID))
	return b, nil
}

func (s *Service) GetBoard(ctx context.Context, id auth.Identity, boardID string) (*Board, error) {
	user, err := s.gate.Authorize(ctx, id, auth.ActionRead, s.boardResource(boardID))
	if err != nil {
		return nil, err
	}
	return s.store.GetBoard(ctx, user.OrganizationID, boardID)
}

// ListNotes returns the active notes of a board.
func (s *Service) ListNotes(ctx context.Context, id auth.Identity, boardID string) ([]Note, error) {
	user, err := s.gate.Authorize(ctx, id, auth.ActionRead, s.boardResource(boardID))
	if err != nil {
		return nil, err
	}
	return s.store.ListNotes(ctx, user.OrganizationID, boardID)
}

// ListArchivedNotes returns archived, non-deleted notes across all boards of
// the caller's organization, most recently updated first.
func (s *Service) ListArchivedNotes(ctx context.Context, id auth.Identity) ([]Note, error) {
	user, err := s.gate.Member(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.store.ListArchivedNotes(ctx, user.OrganizationID)
}

func (s *Service) CreateNote(ctx context.Context, id auth.Identity, boardID string, in NewNote) (*Note, error) {
	user, err := s.gate.Authorize(ctx, id, auth.ActionWrite, s.boardResource(boardID))
	if err != nil {
		return nil, err
	}
	color := strings.TrimSpace(in.Color)
	if color == "" {
		color = defaultColor
	}
	if len(color) > maxColorLength {
		return nil, fmt.Errorf("%w: color too long", ErrInvalidInput)
	}
	if len(in.Items) > maxItems {
		return nil, fmt.Errorf("%w: at most %d checklist items", ErrInvalidInput, maxItems)
	}
	now := s.now().UTC()
	n := &Note{
		ID:        ids.New(),
		BoardID:   boardID,
		Color:     color,
		CreatedBy: user.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, content := range in.Items {
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		if utf8.RuneCountInString(content) > maxItemLength {
			return nil, fmt.Errorf("%w: checklist item too long", ErrInvalidInput)
		}
		n.ChecklistItems = append(n.ChecklistItems, ChecklistItem{
			ID:      ids.New(),
			NoteID:  n.ID,
			Content: content,
			Order:   len(n.ChecklistItems),
		})
	}
	if err := s.store.CreateNote(ctx, n); err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}
	return s.store.GetNote(ctx, user.OrganizationID, n.ID)
}

func (s *Service) ArchiveNote(ctx context.Context, id auth.Identity, noteID string) (*Note, error) {
	user, err := s.gate.Authorize(ctx, id, auth.ActionWrite, s.noteResource(noteID))
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return s.store.SetArchived(ctx, user.OrganizationID, noteID, &now, now)
}

func (s *Service) RestoreNote(ctx context.Context, id auth.Identity, noteID string) (*Note, error) {
	user, err := s.gate.Authorize(ctx, id, auth.ActionWrite, s.noteResource(noteID))
	if err != nil {
		return nil, err
	}
	return s.store.SetArchived(ctx, user.OrganizationID, noteID, nil, s.now().UTC())
}

// DeleteNote soft-deletes a note; it disappears from every listing.
func (s *Service) DeleteNote(ctx context.Context, id auth.Identity, noteID string) error {
	user, err := s.gate.Authorize(ctx, id, auth.ActionWrite, s.noteResource(noteID))
	if err != nil {
		return err
	}
	return s.store.SoftDelete(ctx, user.OrganizationID, noteID, s.now().UTC())
}

func (s *Service) ToggleChecklistItem(ctx context.Context, id auth.Identity, noteID, itemID string, checked bool) (*ChecklistItem, error) {
	user, err := s.gate.Authorize(ctx, id, auth.ActionWrite, s.noteResource(noteID))
	if err != nil {
		return nil, err
	}
	return s.store.SetItemChecked(ctx, user.OrganizationID, noteID, itemID, checked, s.now().UTC())
}

func (s *Service) boardResource(boardID string) auth.ResourceLoader {
	return func(ctx context.Context) (auth.Resource, error) {
		orgID, err := s.store.BoardOrganization(ctx, boardID)
		if err != nil {
			return auth.Resource{}, ownerError(err)
		}
		return auth.Resource{Kind: auth.KindBoard, ID: boardID, OrganizationID: orgID}, nil
	}
}

func (s *Service) noteResource(noteID string) auth.ResourceLoader {
	return func(ctx context.Context) (auth.Resource, error) {
		orgID, err := s.store.NoteOrganization(ctx, noteID)
		if err != nil {
			return auth.Resource{}, ownerError(err)
		}
		return auth.Resource{Kind: auth.KindNote, ID: noteID, OrganizationID: orgID}, nil
	}
}

func ownerError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return auth.ErrNotFound
	}
	return err
}
