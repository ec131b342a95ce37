package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docket/internal/models"
	"docket/internal/testutil"
)

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "SUB")
	other := testutil.CreateProject(t, f.db, "SUO")
	parent := testutil.CreateItem(t, f.db, p.ID, nil, "SUB-1")
	testutil.CreateItem(t, f.db, p.ID, &parent.ID, "SUB-1-1")
	foreign := testutil.CreateItem(t, f.db, other.ID, nil, "SUO-1")
	missing := uint(9999)

	tests := []struct {
		name  string
		actor models.Actor
		in    SubmitInput
		code  string
	}{
		{"viewer", f.viewer.Actor(), SubmitInput{Type: models.ChangeCreate, ProjectID: p.ID, Payload: models.CreatePayload{Title: "x"}}, models.CodeUnauthorized},
		{"unknown type", f.editor.Actor(), SubmitInput{Type: "MOVE"}, models.CodeValidation},
		{"create without title", f.editor.Actor(), SubmitInput{Type: models.ChangeCreate, ProjectID: p.ID, Payload: models.CreatePayload{}}, models.CodeValidation},
		{"create without project", f.editor.Actor(), SubmitInput{Type: models.ChangeCreate, Payload: models.CreatePayload{Title: "x"}}, models.CodeValidation},
		{"create in missing project", f.editor.Actor(), SubmitInput{Type: models.ChangeCreate, ProjectID: 9999, Payload: models.CreatePayload{Title: "x"}}, models.CodeNotFound},
		{"create under foreign parent", f.editor.Actor(), SubmitInput{Type: models.ChangeCreate, ProjectID: p.ID, ParentID: &foreign.ID, Payload: models.CreatePayload{Title: "x"}}, models.CodeNotFound},
		{"payload mismatch", f.editor.Actor(), SubmitInput{Type: models.ChangeUpdate, ItemID: &parent.ID, Payload: models.CreatePayload{Title: "x"}}, models.CodeValidation},
		{"update without item", f.editor.Actor(), SubmitInput{Type: models.ChangeUpdate, Payload: models.UpdatePayload{Title: "x"}}, models.CodeValidation},
		{"update missing item", f.editor.Actor(), SubmitInput{Type: models.ChangeUpdate, ItemID: &missing, Payload: models.UpdatePayload{Title: "x"}}, models.CodeNotFound},
		{"delete with children", f.editor.Actor(), SubmitInput{Type: models.ChangeDelete, ItemID: &parent.ID}, models.CodeHasChildren},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.changes.Submit(context.Background(), tt.actor, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.code, models.ErrorCode(err))
		})
	}
}

func TestSubmit_DerivesTargetFromItem(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "DRV")
	parent := testutil.CreateItem(t, f.db, p.ID, nil, "DRV-1")
	child := testutil.CreateItem(t, f.db, p.ID, &parent.ID, "DRV-1-1")

	cr, err := f.changes.Submit(context.Background(), f.editor.Actor(), SubmitInput{
		Type: models.ChangeUpdate, ItemID: &child.ID, Payload: models.UpdatePayload{Title: "renamed"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ChangePending, cr.Status)
	assert.Equal(t, p.ID, cr.TargetProjectID)
	require.NotNil(t, cr.TargetParentID)
	assert.Equal(t, parent.ID, *cr.TargetParentID)
	assert.JSONEq(t, `{"title":"renamed","content":""}`, string(cr.Payload))
}

func TestListPending_FIFOAndReviewerOnly(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "FIF")
	first := f.submitCreate(p.ID, nil, "first")
	second := f.submitCreate(p.ID, nil, "second")

	pending, err := f.changes.ListPending(context.Background(), f.inspector.Actor())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)

	hidden, err := f.changes.ListPending(context.Background(), f.editor.Actor())
	require.NoError(t, err)
	assert.Empty(t, hidden)
}

func TestResubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "RSB")
	cr := f.submitCreate(p.ID, nil, "needs work")

	assert.True(t, models.IsCode(f.changes.MarkResubmitted(ctx, f.editor.Actor(), cr.ID), models.CodeInvalidState))

	_, err := f.approval.Reject(ctx, f.inspector.Actor(), cr.ID, "add scope")
	require.NoError(t, err)
	note := models.Notification{UserID: f.editor.ID, Type: models.NotificationChangeRejected, Title: "t", ChangeRequestID: &cr.ID}
	require.NoError(t, f.db.Create(&note).Error)

	rejected, err := f.changes.ListRejected(ctx, f.editor.Actor())
	require.NoError(t, err)
	require.Len(t, rejected, 1)

	_, err = f.changes.GetRejectedDetail(ctx, f.inspector.Actor(), cr.ID)
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))
	detail, err := f.changes.GetRejectedDetail(ctx, f.editor.Actor(), cr.ID)
	require.NoError(t, err)
	assert.Equal(t, "add scope", detail.ReviewNote)

	assert.True(t, models.IsCode(f.changes.MarkResubmitted(ctx, f.inspector.Actor(), cr.ID), models.CodeUnauthorized))

	next, err := f.changes.Submit(ctx, f.editor.Actor(), SubmitInput{
		Type: models.ChangeCreate, ProjectID: p.ID, ResubmitOf: &cr.ID,
		Payload: models.CreatePayload{Title: "needs work", Content: "scope added"},
	})
	require.NoError(t, err)
	require.NotNil(t, next.ResubmittedFromID)
	assert.Equal(t, cr.ID, *next.ResubmittedFromID)
	assert.Equal(t, models.ChangeResubmitted, f.statusOf(cr.ID))

	require.NoError(t, f.db.First(&note, note.ID).Error)
	assert.True(t, note.IsRead)

	rejected, err = f.changes.ListRejected(ctx, f.editor.Actor())
	require.NoError(t, err)
	assert.Empty(t, rejected)

	_, err = f.changes.Submit(ctx, f.editor.Actor(), SubmitInput{
		Type: models.ChangeCreate, ProjectID: p.ID, ResubmitOf: &cr.ID, Payload: models.CreatePayload{Title: "again"},
	})
	assert.True(t, models.IsCode(err, models.CodeInvalidState))
}
