package board

import (
	"context"
	"sort"
	"sync"
	"time"

	"pinboard.dev/internal/auth"
)

// UserFinder resolves note authors for MemoryStore.
type UserFinder interface {
	Find(ctx context.Context, id string) (*auth.User, error)
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	users  UserFinder
	boards map[string]Board
	notes  map[string]Note
}

// NewMemoryStore returns an empty store. users may be nil, in which case
// note authors carry only their id.
func NewMemoryStore(users UserFinder) *MemoryStore {
	return &MemoryStore{
		users:  users,
		boards: make(map[string]Board),
		notes:  make(map[string]Note),
	}
}

func (m *MemoryStore) ListBoards(_ context.Context, orgID string) ([]Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Board, 0)
	for _, b := range m.boards {
		if b.OrganizationID == orgID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) CreateBoard(_ context.Context, b *Board) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boards[b.ID] = *b
	return nil
}

func (m *MemoryStore) GetBoard(_ context.Context, orgID, boardID string) (*Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boards[boardID]
	if !ok || b.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *MemoryStore) BoardOrganization(_ context.Context, boardID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boards[boardID]
	if !ok {
		return "", ErrNotFound
	}
	return b.OrganizationID, nil
}

func (m *MemoryStore) NoteOrganization(_ context.Context, noteID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[noteID]
	if !ok {
		return "", ErrNotFound
	}
	b, ok := m.boards[n.BoardID]
	if !ok {
		return "", ErrNotFound
	}
	return b.OrganizationID, nil
}

func (m *MemoryStore) ListNotes(ctx context.Context, orgID, boardID string) ([]Note, error) {
	return m.listNotes(ctx, func(n Note, b Board) bool {
		return b.OrganizationID == orgID && n.BoardID == boardID && !n.Archived() && !n.Deleted()
	}, false)
}

func (m *MemoryStore) ListArchivedNotes(ctx context.Context, orgID string) ([]Note, error) {
	return m.listNotes(ctx, func(n Note, b Board) bool {
		return b.OrganizationID == orgID && n.Archived() && !n.Deleted()
	}, true)
}

func (m *MemoryStore) listNotes(ctx context.Context, keep func(Note, Board) bool, byUpdated bool) ([]Note, error) {
	m.mu.Lock()
	out := make([]Note, 0)
	for _, n := range m.notes {
		b, ok := m.boards[n.BoardID]
		if ok && keep(n, b) {
			out = append(out, m.decorate(n, b))
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].CreatedAt, out[j].CreatedAt
		if byUpdated {
			ti, tj = out[i].UpdatedAt, out[j].UpdatedAt
			return ti.After(tj) || ti.Equal(tj) && out[i].ID > out[j].ID
		}
		return ti.Before(tj) || ti.Equal(tj) && out[i].ID < out[j].ID
	})
	for i := range out {
		out[i].Author = m.author(ctx, out[i].CreatedBy)
	}
	return out, nil
}

func (m *MemoryStore) CreateNote(_ context.Context, n *Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.boards[n.BoardID]; !ok {
		return ErrNotFound
	}
	cp := *n
	cp.ChecklistItems = append([]ChecklistItem(nil), n.ChecklistItems...)
	m.notes[n.ID] = cp
	return nil
}

func (m *MemoryStore) GetNote(ctx context.Context, orgID, noteID string) (*Note, error) {
	m.mu.Lock()
	n, ok := m.notes[noteID]
	b, bok := m.boards[n.BoardID]
	if !ok || !bok || b.OrganizationID != orgID || n.Deleted() {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	out := m.decorate(n, b)
	m.mu.Unlock()
	out.Author = m.author(ctx, out.CreatedBy)
	return &out, nil
}

func (m *MemoryStore) SetArchived(ctx context.Context, orgID, noteID string, archivedAt *time.Time, now time.Time) (*Note, error) {
	m.mu.Lock()
	n, ok := m.liveNote(orgID, noteID)
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if archivedAt != nil {
		at := *archivedAt
		n.ArchivedAt = &at
	} else {
		n.ArchivedAt = nil
	}
	n.UpdatedAt = now
	m.notes[noteID] = n
	m.mu.Unlock()
	return m.GetNote(ctx, orgID, noteID)
}

func (m *MemoryStore) SoftDelete(_ context.Context, orgID, noteID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.liveNote(orgID, noteID)
	if !ok {
		return ErrNotFound
	}
	n.DeletedAt = &now
	n.UpdatedAt = now
	m.notes[noteID] = n
	return nil
}

func (m *MemoryStore) SetItemChecked(_ context.Context, orgID, noteID, itemID string, checked bool, now time.Time) (*ChecklistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.liveNote(orgID, noteID)
	if !ok {
		return nil, ErrNotFound
	}
	items := append([]ChecklistItem(nil), n.ChecklistItems...)
	for i := range items {
		if items[i].ID == itemID {
			items[i].Checked = checked
			n.ChecklistItems = items
			n.UpdatedAt = now
			m.notes[noteID] = n
			item := items[i]
			return &item, nil
		}
	}
	return nil, ErrNotFound
}

// liveNote returns a non-deleted note of orgID. Callers hold m.mu.
func (m *MemoryStore) liveNote(orgID, noteID string) (Note, bool) {
	n, ok := m.notes[noteID]
	if !ok || n.Deleted() {
		return Note{}, false
	}
	b, ok := m.boards[n.BoardID]
	if !ok || b.OrganizationID != orgID {
		return Note{}, false
	}
	return n, true
}

func (m *MemoryStore) decorate(n Note, b Board) Note {
	n.Board = BoardRef{ID: b.ID, Name: b.Name}
	n.ChecklistItems = append([]ChecklistItem{}, n.ChecklistItems...)
	sort.Slice(n.ChecklistItems, func(i, j int) bool { return n.ChecklistItems[i].Order < n.ChecklistItems[j].Order })
	return n
}

func (m *MemoryStore) author(ctx context.Context, userID string) UserSummary {
	summary := UserSummary{ID: userID}
	if m.users == nil {
		return summary
	}
	if u, err := m.users.Find(ctx, userID); err == nil {
		summary.Name = u.Name
		summary.Email = u.Email
		summary.Image = u.Image
	}
	return summary
}
