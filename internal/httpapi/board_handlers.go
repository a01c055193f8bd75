package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pinboard.dev/internal/audit"
	"pinboard.dev/internal/auth"
	"pinboard.dev/internal/board"
)

type createBoardRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type toggleItemRequest struct {
	Checked *bool `json:"checked"`
}

func (a *API) listBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := a.boards.ListBoards(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"boards": nonNil(boards)})
}

func (a *API) createBoard(w http.ResponseWriter, r *http.Request) {
	var req createBoardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	b, err := a.boards.CreateBoard(r.Context(), auth.IdentityFromContext(r.Context()), req.Name, req.Description)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "board.created", map[string]any{"board_id": b.ID})
	writeJSON(w, http.StatusCreated, map[string]any{"board": b})
}

func (a *API) getBoard(w http.ResponseWriter, r *http.Request) {
	b, err := a.boards.GetBoard(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "boardID"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"board": b})
}

func (a *API) listNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := a.boards.ListNotes(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "boardID"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": nonNil(notes)})
}

func (a *API) listArchivedNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := a.boards.ListArchivedNotes(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": nonNil(notes)})
}

func (a *API) createNote(w http.ResponseWriter, r *http.Request) {
	var req board.NewNote
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	boardID := chi.URLParam(r, "boardID")
	n, err := a.boards.CreateNote(r.Context(), auth.IdentityFromContext(r.Context()), boardID, req)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "note.created", map[string]any{"board_id": boardID, "note_id": n.ID})
	writeJSON(w, http.StatusCreated, map[string]any{"note": n})
}

func (a *API) archiveNote(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	n, err := a.boards.ArchiveNote(r.Context(), auth.IdentityFromContext(r.Context()), noteID)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "note.archived", map[string]any{"note_id": noteID})
	writeJSON(w, http.StatusOK, map[string]any{"note": n})
}

func (a *API) restoreNote(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	n, err := a.boards.RestoreNote(r.Context(), auth.IdentityFromContext(r.Context()), noteID)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "note.restored", map[string]any{"note_id": noteID})
	writeJSON(w, http.StatusOK, map[string]any{"note": n})
}

func (a *API) deleteNote(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	if err := a.boards.DeleteNote(r.Context(), auth.IdentityFromContext(r.Context()), noteID); err != nil {
		a.handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "note.deleted", map[string]any{"note_id": noteID})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) toggleItem(w http.ResponseWriter, r *http.Request) {
	var req toggleItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Checked == nil {
		writeError(w, r, http.StatusBadRequest, "checked is required")
		return
	}
	item, err := a.boards.ToggleChecklistItem(r.Context(), auth.IdentityFromContext(r.Context()),
		chi.URLParam(r, "noteID"), chi.URLParam(r, "itemID"), *req.Checked)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
