package board

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("board: not found")
	ErrInvalidInput = errors.New("board: invalid input")
)

// Board groups notes and belongs to exactly one organization.
type Board struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organizationId"`
	Name           string    `db:"name" json:"name"`
	Description    string    `db:"description" json:"description"`
	CreatedBy      string    `db:"created_by" json:"createdBy"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// UserSummary is the public projection of a note's author.
type UserSummary struct {
	ID    string `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
	Image string `db:"image" json:"image"`
}

// BoardRef is the projection of a note's board.
type BoardRef struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Note is a sticky note. ArchivedAt separates active from archived notes;
// DeletedAt hides a note from every listing.
type Note struct {
	ID             string          `db:"id" json:"id"`
	BoardID        string          `db:"board_id" json:"boardId"`
	Color          string          `db:"color" json:"color"`
	CreatedBy      string          `db:"created_by" json:"createdBy"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
	ArchivedAt     *time.Time      `db:"archived_at" json:"archivedAt"`
	DeletedAt      *time.Time      `db:"deleted_at" json:"-"`
	ChecklistItems []ChecklistItem `db:"-" json:"checklistItems"`
	Author         UserSummary     `db:"user" json:"user"`
	Board          BoardRef        `db:"board" json:"board"`
}

// Archived reports whether the note is in the archive view.
func (n Note) Archived() bool { return n.ArchivedAt != nil }

// Deleted reports whether the note was soft-deleted.
func (n Note) Deleted() bool { return n.DeletedAt != nil }

// ChecklistItem is one line of a note.
type ChecklistItem struct {
	ID      string `db:"id" json:"id"`
	NoteID  string `db:"note_id" json:"noteId"`
	Content string `db:"content" json:"content"`
	Checked bool   `db:"checked" json:"checked"`
	Order   int    `db:"position" json:"order"`
}

// NewNote is the input for creating a note.
type NewNote struct {
	Color string   `json:"color"`
	Items []string `json:"items"`
}
