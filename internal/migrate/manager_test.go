package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	m, err := NewManager(db)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	versions, err := m.Versions()
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(versions) != 3 || versions[0] != 1 || versions[1] != 2 || versions[2] != 3 {
		t.Fatalf("unexpected versions %v", versions)
	}
}

func TestEmbeddedSchemaCoversStores(t *testing.T) {
	var all strings.Builder
	err := fs.WalkDir(embedded, embeddedDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		b, err := fs.ReadFile(embedded, path)
		if err != nil {
			return err
		}
		all.Write(b)
		return nil
	})
	if err != nil {
		t.Fatalf("walk embedded: %v", err)
	}
	schema := all.String()
	for _, table := range []string{"organizations", "users", "verification_tokens", "sessions", "boards", "notes", "checklist_items", "redeemed_invitations"} {
		if !strings.Contains(schema, "create table if not exists "+table+" (") {
			t.Fatalf("missing table %s", table)
		}
	}
	if !strings.Contains(schema, "primary key (identifier, token_hash)") {
		t.Fatal("verification tokens must be keyed by identifier and hash")
	}
	if !strings.Contains(schema, "email            text not null unique,") {
		t.Fatal("user email must be unique for atomic upsert")
	}
}

func TestNewManagerRejectsMissingDir(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	if _, err := NewManager(db, WithDir("/definitely/not/here")); err == nil {
		t.Fatal("expected error for missing dir")
	}
	if _, err := NewManager(nil); err == nil {
		t.Fatal("expected error for nil db")
	}
}
