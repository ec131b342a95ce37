package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"docket/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_GetByID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	tests := []struct {
		name         string
		userID       uint
		mockBehavior func()
		wantCode     string
	}{
		{
			name:   "Success",
			userID: 1,
			mockBehavior: func() {
				rows := sqlmock.NewRows([]string{"id", "username", "email", "role", "is_qc"}).
					AddRow(1, "inspector", "inspector@docket.local", "INSPECTOR", true)
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "users"."id" = $1 AND "users"."deleted_at" IS NULL ORDER BY "users"."id" LIMIT $2`)).
					WithArgs(1, 1).
					WillReturnRows(rows)
			},
		},
		{
			name:   "Not Found",
			userID: 99,
			mockBehavior: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "users"."id" = $1`)).
					WithArgs(99, 1).
					WillReturnRows(sqlmock.NewRows([]string{"id"}))
			},
			wantCode: models.CodeNotFound,
		},
		{
			name:   "Database Error",
			userID: 2,
			mockBehavior: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "users"."id" = $1`)).
					WithArgs(2, 1).
					WillReturnError(errors.New("connection timeout"))
			},
			wantCode: models.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockBehavior()
			user, err := repo.GetByID(ctx, tt.userID)

			if tt.wantCode != "" {
				assert.Nil(t, user)
				assert.Equal(t, tt.wantCode, models.ErrorCode(err))
			} else if assert.NoError(t, err) {
				assert.Equal(t, "inspector", user.Username)
				assert.Equal(t, models.RoleInspector, user.Role)
				assert.True(t, user.IsQC)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestProjectRepository_CreateDuplicatePrefix(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewProjectRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "projects"`).
		WillReturnError(errors.New(`ERROR: duplicate key value violates unique constraint "idx_projects_code_prefix" (SQLSTATE 23505)`))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Project{CodePrefix: "RMS", Title: "Records"})
	assert.Equal(t, models.CodeDuplicateCodePrefix, models.ErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemRepository_CreateCollisionIsAllocationConflict(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewItemRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "items"`).
		WillReturnError(errors.New(`ERROR: duplicate key value violates unique constraint "idx_items_full_id" (SQLSTATE 23505)`))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Item{FullID: "NUM-3", Title: "x", ProjectID: 1})
	assert.Equal(t, models.CodeAllocationConflict, models.ErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestRepository_TransitionLosesRace(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewChangeRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "change_requests" SET .* WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.Transition(context.Background(), 5, models.ChangePending, models.ChangeApproved,
		&Review{ReviewerID: 2, At: time.Now()})
	assert.Equal(t, models.CodeInvalidState, models.ErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestRepository_TransitionApplies(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewChangeRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "change_requests" SET .* WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Transition(context.Background(), 5, models.ChangeRejected, models.ChangeResubmitted, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_MarkReadForeignRow(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewNotificationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "notifications" SET "is_read"=$1 WHERE id = $2 AND user_id = $3`)).
		WithArgs(true, 10, 3).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.MarkRead(context.Background(), 3, 10)
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemRepository_GetForUpdateLocksRow(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewItemRepository(db)

	rows := sqlmock.NewRows([]string{"id", "full_id", "title", "project_id", "is_deleted"}).
		AddRow(4, "QM-1", "Scope", 1, false)
	mock.ExpectQuery(`SELECT \* FROM "items" WHERE "items"\."id" = \$1 .*FOR UPDATE`).
		WillReturnRows(rows)

	item, err := repo.GetForUpdate(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, "QM-1", item.FullID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
