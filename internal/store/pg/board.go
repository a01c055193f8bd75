package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"pinboard.dev/internal/board"
)

var _ board.Store = (*BoardStore)(nil)

// BoardStore implements board.Store with sqlx struct scanning.
type BoardStore struct {
	db *sqlx.DB
}

// NewBoardStore wraps db directly; most callers go through Store.Boards.
func NewBoardStore(db *sqlx.DB) *BoardStore { return &BoardStore{db: db} }

const boardColumns = `id, organization_id, name, description, created_by, created_at, updated_at`

func (s *BoardStore) ListBoards(ctx context.Context, orgID string) ([]board.Board, error) {
	boards := []board.Board{}
	err := s.db.SelectContext(ctx, &boards, `
		select `+boardColumns+`
		from boards
		where organization_id = $1
		order by created_at desc, id desc
	`, orgID)
	return boards, err
}

func (s *BoardStore) CreateBoard(ctx context.Context, b *board.Board) error {
	_, err := s.db.NamedExecContext(ctx, `
		insert into boards (id, organization_id, name, description, created_by, created_at, updated_at)
		values (:id, :organization_id, :name, :description, :created_by, :created_at, :updated_at)
	`, b)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return board.ErrNotFound
	}
	return err
}

func (s *BoardStore) GetBoard(ctx context.Context, orgID, boardID string) (*board.Board, error) {
	var b board.Board
	err := s.db.GetContext(ctx, &b, `select `+boardColumns+` from boards where organization_id = $1 and id = $2`, orgID, boardID)
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (s *BoardStore) BoardOrganization(ctx context.Context, boardID string) (string, error) {
	var orgID string
	if err := s.db.GetContext(ctx, &orgID, `select organization_id from boards where id = $1`, boardID); err != nil {
		return "", notFound(err)
	}
	return orgID, nil
}

func (s *BoardStore) NoteOrganization(ctx context.Context, noteID string) (string, error) {
	var orgID string
	err := s.db.GetContext(ctx, &orgID, `
		select b.organization_id
		from notes n
		join boards b on b.id = n.board_id
		where n.id = $1
	`, noteID)
	if err != nil {
		return "", notFound(err)
	}
	return orgID, nil
}

const noteSelect = `
	select n.id, n.board_id, n.color, n.created_by, n.created_at, n.updated_at, n.archived_at, n.deleted_at,
	       n.created_by as "user.id",
	       coalesce(u.name, '') as "user.name",
	       coalesce(u.email, '') as "user.email",
	       coalesce(u.image, '') as "user.image",
	       b.id as "board.id", b.name as "board.name"
	from notes n
	join boards b on b.id = n.board_id
	left join users u on u.id = n.created_by
`

func (s *BoardStore) ListNotes(ctx context.Context, orgID, boardID string) ([]board.Note, error) {
	notes := []board.Note{}
	err := s.db.SelectContext(ctx, &notes, noteSelect+`
		where b.organization_id = $1
		  and n.board_id = $2
		  and n.archived_at is null
		  and n.deleted_at is null
		order by n.created_at asc, n.id asc
	`, orgID, boardID)
	if err != nil {
		return nil, err
	}
	return notes, s.attachItems(ctx, notes)
}

func (s *BoardStore) ListArchivedNotes(ctx context.Context, orgID string) ([]board.Note, error) {
	notes := []board.Note{}
	err := s.db.SelectContext(ctx, &notes, noteSelect+`
		where b.organization_id = $1
		  and n.archived_at is not null
		  and n.deleted_at is null
		order by n.updated_at desc, n.id desc
	`, orgID)
	if err != nil {
		return nil, err
	}
	return notes, s.attachItems(ctx, notes)
}

func (s *BoardStore) attachItems(ctx context.Context, notes []board.Note) error {
	if len(notes) == 0 {
		return nil
	}
	ids := make([]string, len(notes))
	index := make(map[string]int, len(notes))
	for i, n := range notes {
		ids[i] = n.ID
		index[n.ID] = i
		notes[i].ChecklistItems = []board.ChecklistItem{}
	}
	query, args, err := sqlx.In(`
		select id, note_id, content, checked, position
		from checklist_items
		where note_id in (?)
		order by note_id, position
	`, ids)
	if err != nil {
		return err
	}
	var items []board.ChecklistItem
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), args...); err != nil {
		return err
	}
	for _, it := range items {
		if i, ok := index[it.NoteID]; ok {
			notes[i].ChecklistItems = append(notes[i].ChecklistItems, it)
		}
	}
	return nil
}

func (s *BoardStore) CreateNote(ctx context.Context, n *board.Note) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.NamedExecContext(ctx, `
		insert into notes (id, board_id, color, created_by, created_at, updated_at)
		values (:id, :board_id, :color, :created_by, :created_at, :updated_at)
	`, n); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return board.ErrNotFound
		}
		return err
	}
	if len(n.ChecklistItems) > 0 {
		if _, err := tx.NamedExecContext(ctx, `
			insert into checklist_items (id, note_id, content, checked, position)
			values (:id, :note_id, :content, :checked, :position)
		`, n.ChecklistItems); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *BoardStore) GetNote(ctx context.Context, orgID, noteID string) (*board.Note, error) {
	var n board.Note
	err := s.db.GetContext(ctx, &n, noteSelect+`
		where b.organization_id = $1 and n.id = $2 and n.deleted_at is null
	`, orgID, noteID)
	if err != nil {
		return nil, notFound(err)
	}
	notes := []board.Note{n}
	if err := s.attachItems(ctx, notes); err != nil {
		return nil, err
	}
	return &notes[0], nil
}

func (s *BoardStore) SetArchived(ctx context.Context, orgID, noteID string, archivedAt *time.Time, now time.Time) (*board.Note, error) {
	res, err := s.db.ExecContext(ctx, `
		update notes n
		set archived_at = $3, updated_at = $4
		from boards b
		where b.id = n.board_id
		  and b.organization_id = $1
		  and n.id = $2
		  and n.deleted_at is null
	`, orgID, noteID, archivedAt, now)
	if err := affectedOne(res, err); err != nil {
		return nil, err
	}
	return s.GetNote(ctx, orgID, noteID)
}

func (s *BoardStore) SoftDelete(ctx context.Context, orgID, noteID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update notes n
		set deleted_at = $3, updated_at = $3
		from boards b
		where b.id = n.board_id
		  and b.organization_id = $1
		  and n.id = $2
		  and n.deleted_at is null
	`, orgID, noteID, now)
	return affectedOne(res, err)
}

func (s *BoardStore) SetItemChecked(ctx context.Context, orgID, noteID, itemID string, checked bool, now time.Time) (*board.ChecklistItem, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var item board.ChecklistItem
	err = tx.QueryRowxContext(ctx, `
		update checklist_items ci
		set checked = $4
		from notes n
		join boards b on b.id = n.board_id
		where ci.note_id = n.id
		  and b.organization_id = $1
		  and n.id = $2
		  and ci.id = $3
		  and n.deleted_at is null
		returning ci.id, ci.note_id, ci.content, ci.checked, ci.position
	`, orgID, noteID, itemID, checked).StructScan(&item)
	if err != nil {
		return nil, notFound(err)
	}
	if _, err := tx.ExecContext(ctx, `update notes set updated_at = $2 where id = $1`, noteID, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &item, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return board.ErrNotFound
	}
	return err
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return board.ErrNotFound
	}
	return nil
}
