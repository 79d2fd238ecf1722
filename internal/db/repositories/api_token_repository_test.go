package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/runledger/runledger/internal/db/models"
)

var tokenCols = []string{"id", "project_id", "token_hash", "created_at"}

func newTokenRepo(t *testing.T) (*APITokenRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAPITokenRepository(db), mock
}

func TestAPITokenCreate_Success(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectQuery("INSERT INTO api_tokens").
		WithArgs("proj-1", "abc123").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("tok-1", time.Now()))

	tok := &models.APIToken{ProjectID: "proj-1", TokenHash: "abc123"}
	if err := repo.Create(context.Background(), tok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.ID != "tok-1" {
		t.Errorf("ID = %q, want tok-1", tok.ID)
	}
}

func TestAPITokenCreate_HashCollision(t *testing.T) {
	repo, mock := newTokenRepo(t)
	mock.ExpectQuery("INSERT INTO api_tokens").
		WillReturnError(&pq.Error{Code: "23505", Constraint: ConstraintTokenHash})

	err := repo.Create(context.Background(), &models.APIToken{ProjectID: "proj-1", TokenHash: "abc123"})
	if !ClassifyViolation(err).Is(UniqueViolation, ConstraintTokenHash) {
		t.Errorf("expected unique violation on token hash, got %v", err)
	}
}

func TestAPITokenGetByHash(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock := newTokenRepo(t)
		mock.ExpectQuery("SELECT.*FROM api_tokens.*WHERE token_hash").
			WithArgs("abc123").
			WillReturnRows(sqlmock.NewRows(tokenCols).AddRow("tok-1", "proj-1", "abc123", time.Now()))

		tok, err := repo.GetByHash(context.Background(), "abc123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok == nil || tok.ProjectID != "proj-1" {
			t.Errorf("got %+v", tok)
		}
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newTokenRepo(t)
		mock.ExpectQuery("SELECT.*FROM api_tokens.*WHERE token_hash").
			WillReturnRows(sqlmock.NewRows(tokenCols))

		tok, err := repo.GetByHash(context.Background(), "nope")
		if err != nil || tok != nil {
			t.Errorf("got %+v, %v; want nil, nil", tok, err)
		}
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newTokenRepo(t)
		mock.ExpectQuery("SELECT.*FROM api_tokens").WillReturnError(errDB)

		if _, err := repo.GetByHash(context.Background(), "abc123"); !errors.Is(err, errDB) {
			t.Errorf("expected wrapped errDB, got %v", err)
		}
	})
}
