package board

import (
	"context"
	"time"
)

// Store persists boards and notes. Every method except the *Organization
// lookups filters by orgID, so ids from another organization behave as missing.
type Store interface {
	ListBoards(ctx context.Context, orgID string) ([]Board, error)
	CreateBoard(ctx context.Context, b *Board) error
	GetBoard(ctx context.Context, orgID, boardID string) (*Board, error)

	// BoardOrganization returns the owning organization of a board.
	BoardOrganization(ctx context.Context, boardID string) (string, error)
	// NoteOrganization returns the owning organization of a note through its
	// board, regardless of archived or deleted state.
	NoteOrganization(ctx context.Context, noteID string) (string, error)

	ListNotes(ctx context.Context, orgID, boardID string) ([]Note, error)
	ListArchivedNotes(ctx context.Context, orgID string) ([]Note, error)
	CreateNote(ctx context.Context, n *Note) error
	GetNote(ctx context.Context, orgID, noteID string) (*Note, error)
	// SetArchived stamps or clears archived_at on a non-deleted note.
	SetArchived(ctx context.Context, orgID, noteID string, archivedAt *time.Time, now time.Time) (*Note, error)
	// SoftDelete stamps deleted_at on a non-deleted note.
	SoftDelete(ctx context.Context, orgID, noteID string, now time.Time) error
	SetItemChecked(ctx context.Context, orgID, noteID, itemID string, checked bool, now time.Time) (*ChecklistItem, error)
}
