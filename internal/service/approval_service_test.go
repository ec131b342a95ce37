package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"docket/internal/models"
	"docket/internal/testutil"
)

func TestApprove_CreateRecordsHistoryAndOpensQC(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "DOC")
	ctx := context.Background()

	cr := f.submitCreate(p.ID, nil, "Quality manual")
	approved, err := f.approval.Approve(ctx, f.inspector.Actor(), cr.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ChangeApproved, approved.Status)
	require.NotNil(t, approved.ReviewedByID)
	assert.Equal(t, f.inspector.ID, *approved.ReviewedByID)
	assert.NotNil(t, approved.ReviewedAt)
	require.NotNil(t, approved.ItemID)

	var item models.Item
	require.NoError(t, f.db.First(&item, *approved.ItemID).Error)
	assert.Equal(t, "DOC-1", item.FullID)
	assert.Equal(t, "Quality manual", item.Title)
	assert.NotNil(t, item.PublishedAt)

	var history []models.ItemHistory
	require.NoError(t, f.db.Where("item_id = ?", item.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].Version)
	assert.Equal(t, models.ChangeCreate, history[0].ChangeType)
	assert.Equal(t, f.editor.ID, history[0].SubmittedByID)
	assert.Equal(t, "qc-documents/test.pdf", history[0].ISODocPath)

	a := f.approvalFor(item.ID)
	assert.Equal(t, models.QCPendingQC, a.Status)
	assert.Equal(t, history[0].ID, a.ItemHistoryID)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, models.NotificationChangeApproved, sent[0].Type)
	assert.Equal(t, f.editor.ID, sent[0].UserID)
	assert.Equal(t, "DOC-1", f.docs.last().History.ItemFullID)
}

func TestApprove_RequiresReviewer(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "AUT")
	cr := f.submitCreate(p.ID, nil, "x")

	_, err := f.approval.Approve(context.Background(), f.editor.Actor(), cr.ID)
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))

	_, err = f.approval.Reject(context.Background(), f.viewer.Actor(), cr.ID, "no")
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))
}

func TestApprove_OnlyPending(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "STA")
	ctx := context.Background()

	cr := f.submitCreate(p.ID, nil, "x")
	_, err := f.approval.Approve(ctx, f.inspector.Actor(), cr.ID)
	require.NoError(t, err)

	_, err = f.approval.Approve(ctx, f.inspector.Actor(), cr.ID)
	assert.True(t, models.IsCode(err, models.CodeInvalidState))
	_, err = f.approval.Reject(ctx, f.inspector.Actor(), cr.ID, "late")
	assert.True(t, models.IsCode(err, models.CodeInvalidState))

	var count int64
	require.NoError(t, f.db.Model(&models.Item{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestApprove_UpdateOverwritesContent(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "UPD")
	ctx := context.Background()
	item := f.create(p.ID, nil, "draft")

	atts := []models.Attachment{{Name: "spec.pdf", Path: "attachments/spec.pdf", Size: 10}}
	cr, err := f.changes.Submit(ctx, f.editor.Actor(), SubmitInput{
		Type:    models.ChangeUpdate,
		ItemID:  &item.ID,
		Payload: models.UpdatePayload{Title: "final", Content: "body", Attachments: &atts},
	})
	require.NoError(t, err)
	_, err = f.approval.Approve(ctx, f.inspector.Actor(), cr.ID)
	require.NoError(t, err)

	var got models.Item
	require.NoError(t, f.db.First(&got, item.ID).Error)
	assert.Equal(t, "final", got.Title)
	assert.Equal(t, "body", got.Content)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "spec.pdf", got.Attachments[0].Name)
	assert.Equal(t, item.FullID, got.FullID)

	var versions []int
	require.NoError(t, f.db.Model(&models.ItemHistory{}).Where("item_id = ?", item.ID).Order("version").Pluck("version", &versions).Error)
	assert.Equal(t, []int{1, 2}, versions)
}

func TestApprove_ConcurrentUpdatesGetDistinctVersions(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "VER")
	ctx := context.Background()
	item := f.create(p.ID, nil, "draft")

	const n = 4
	ids := make([]uint, n)
	for i := range ids {
		cr, err := f.changes.Submit(ctx, f.editor.Actor(), SubmitInput{
			Type:    models.ChangeUpdate,
			ItemID:  &item.ID,
			Payload: models.UpdatePayload{Title: "rev", Content: "body"},
		})
		require.NoError(t, err)
		ids[i] = cr.ID
	}

	errs := make(chan error, n)
	for _, id := range ids {
		go func(id uint) {
			_, err := f.approval.Approve(ctx, f.inspector.Actor(), id)
			errs <- err
		}(id)
	}
	for range ids {
		assert.NoError(t, <-errs)
	}

	var versions []int
	require.NoError(t, f.db.Model(&models.ItemHistory{}).Where("item_id = ?", item.ID).Order("version").Pluck("version", &versions).Error)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, versions)
}

func TestApprove_UpdateOfDeletedItemIsTargetMissing(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "TM")
	ctx := context.Background()
	item := f.create(p.ID, nil, "doomed")

	cr, err := f.changes.Submit(ctx, f.editor.Actor(), SubmitInput{
		Type: models.ChangeUpdate, ItemID: &item.ID, Payload: models.UpdatePayload{Title: "late edit"},
	})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.Item{}).Where("id = ?", item.ID).Update("is_deleted", true).Error)

	_, err = f.approval.Approve(ctx, f.inspector.Actor(), cr.ID)
	assert.True(t, models.IsCode(err, models.CodeTargetMissing))

	assert.Equal(t, models.ChangePending, f.statusOf(cr.ID))
}

func TestApprove_DeleteWithLiveChildrenFails(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "DEL")
	ctx := context.Background()
	parent := f.create(p.ID, nil, "parent")

	cr, err := f.changes.Submit(ctx, f.editor.Actor(), SubmitInput{Type: models.ChangeDelete, ItemID: &parent.ID})
	require.NoError(t, err)

	// A child approved between submission and review blocks the delete.
	f.create(p.ID, &parent.ID, "late child")

	_, err = f.approval.Approve(ctx, f.inspector.Actor(), cr.ID)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeHasChildren))

	var got models.Item
	require.NoError(t, f.db.First(&got, parent.ID).Error)
	assert.False(t, got.IsDeleted)

	assert.Equal(t, models.ChangePending, f.statusOf(cr.ID))
}

func TestApprove_DeleteWaitsForChildGroup(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "LCK")
	ctx := context.Background()
	item := f.create(p.ID, nil, "leaf")

	cr, err := f.changes.Submit(ctx, f.editor.Actor(), SubmitInput{Type: models.ChangeDelete, ItemID: &item.ID})
	require.NoError(t, err)

	// A child allocation under the item is in flight.
	unlock := f.approval.alloc.Lock(p.ID, &item.ID)
	done := make(chan error, 1)
	go func() {
		_, err := f.approval.Approve(ctx, f.inspector.Actor(), cr.ID)
		done <- err
	}()

	select {
	case err := <-done:
		unlock()
		t.Fatalf("delete applied while a child allocation held the group: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	testutil.CreateItem(t, f.db, p.ID, &item.ID, "LCK-1-1")
	unlock()

	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("delete never resumed")
	}
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeHasChildren))
	assert.Equal(t, models.ChangePending, f.statusOf(cr.ID))
}

func TestApprove_DeleteSoftDeletes(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "SFT")
	ctx := context.Background()
	item := f.create(p.ID, nil, "leaf")

	cr, err := f.changes.Submit(ctx, f.editor.Actor(), SubmitInput{
		Type: models.ChangeDelete, ItemID: &item.ID, Payload: models.DeletePayload{Reason: "obsolete"},
	})
	require.NoError(t, err)
	_, err = f.approval.Approve(ctx, f.inspector.Actor(), cr.ID)
	require.NoError(t, err)

	var got models.Item
	require.NoError(t, f.db.First(&got, item.ID).Error)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, "SFT-1", got.FullID)
}

func TestApprove_CreateRelatesBothDirectionsAndSkipsDeleted(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "RLT")
	ctx := context.Background()
	live := testutil.CreateItem(t, f.db, p.ID, nil, "RLT-1")
	gone := testutil.CreateItem(t, f.db, p.ID, nil, "RLT-2")
	require.NoError(t, f.db.Model(gone).Update("is_deleted", true).Error)

	cr, err := f.changes.Submit(ctx, f.editor.Actor(), SubmitInput{
		Type:      models.ChangeCreate,
		ProjectID: p.ID,
		Payload:   models.CreatePayload{Title: "linked", RelatedItemIDs: []uint{live.ID, gone.ID, 4242}},
	})
	require.NoError(t, err)
	approved, err := f.approval.Approve(ctx, f.inspector.Actor(), cr.ID)
	require.NoError(t, err)

	var edges []models.ItemRelation
	require.NoError(t, f.db.Find(&edges).Error)
	assert.ElementsMatch(t, []models.ItemRelation{
		{ItemID: *approved.ItemID, RelatedID: live.ID},
		{ItemID: live.ID, RelatedID: *approved.ItemID},
	}, stripRelationTimes(edges))
}

func stripRelationTimes(edges []models.ItemRelation) []models.ItemRelation {
	out := make([]models.ItemRelation, len(edges))
	for i, e := range edges {
		out[i] = models.ItemRelation{ItemID: e.ItemID, RelatedID: e.RelatedID}
	}
	return out
}

func TestApprove_IsAtomicUnderInjectedFailure(t *testing.T) {
	boom := errors.New("injected failure")

	t.Run("create", func(t *testing.T) {
		f := newFixture(t)
		p := testutil.CreateProject(t, f.db, "ATM")
		cr := f.submitCreate(p.ID, nil, "never")
		f.approval.afterApply = func(*gorm.DB, *models.ChangeRequest) error { return boom }

		_, err := f.approval.Approve(context.Background(), f.inspector.Actor(), cr.ID)
		require.ErrorIs(t, err, boom)

		for _, model := range []interface{}{&models.Item{}, &models.ItemHistory{}, &models.QCDocumentApproval{}} {
			var n int64
			require.NoError(t, f.db.Model(model).Count(&n).Error)
			assert.Zero(t, n)
		}
		var got models.ChangeRequest
		require.NoError(t, f.db.First(&got, cr.ID).Error)
		assert.Equal(t, models.ChangePending, got.Status)
		assert.Nil(t, got.ItemID)
		assert.Empty(t, f.notifier.all())

		// The request is still approvable once the fault clears.
		f.approval.afterApply = nil
		approved, err := f.approval.Approve(context.Background(), f.inspector.Actor(), cr.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ChangeApproved, approved.Status)
	})

	t.Run("delete", func(t *testing.T) {
		f := newFixture(t)
		p := testutil.CreateProject(t, f.db, "ATD")
		item := f.create(p.ID, nil, "kept")
		cr, err := f.changes.Submit(context.Background(), f.editor.Actor(), SubmitInput{Type: models.ChangeDelete, ItemID: &item.ID})
		require.NoError(t, err)
		f.approval.afterApply = func(*gorm.DB, *models.ChangeRequest) error { return boom }

		_, err = f.approval.Approve(context.Background(), f.inspector.Actor(), cr.ID)
		require.ErrorIs(t, err, boom)

		var got models.Item
		require.NoError(t, f.db.First(&got, item.ID).Error)
		assert.False(t, got.IsDeleted)
	})
}

func TestApprove_AllocationConflictIsRetriedThenSurfaced(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "RTY")
	root := testutil.CreateItem(t, f.db, p.ID, nil, "RTY-1")
	// A row outside the root sibling group squats on the next root identifier.
	testutil.CreateItem(t, f.db, p.ID, &root.ID, "RTY-2")

	cr := f.submitCreate(p.ID, nil, "collides")
	_, err := f.approval.Approve(context.Background(), f.inspector.Actor(), cr.ID)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeAllocationConflict))

	var got models.ChangeRequest
	require.NoError(t, f.db.First(&got, cr.ID).Error)
	assert.Equal(t, models.ChangePending, got.Status)
}

func TestApprove_DocumentFailureDoesNotFailApproval(t *testing.T) {
	f := newFixture(t)
	f.docs.err = errRender
	p := testutil.CreateProject(t, f.db, "DGF")

	item := f.create(p.ID, nil, "still approved")

	var h models.ItemHistory
	require.NoError(t, f.db.Where("item_id = ?", item.ID).First(&h).Error)
	assert.Empty(t, h.ISODocPath)
}

func TestReject_NotifiesSubmitterAndLeavesTree(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "REJ")
	cr := f.submitCreate(p.ID, nil, "nope")

	rejected, err := f.approval.Reject(context.Background(), f.inspector.Actor(), cr.ID, "missing references")
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRejected, rejected.Status)
	assert.Equal(t, "missing references", rejected.ReviewNote)

	var n int64
	require.NoError(t, f.db.Model(&models.Item{}).Count(&n).Error)
	assert.Zero(t, n)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, models.NotificationChangeRejected, sent[0].Type)
	assert.Contains(t, sent[0].Message, "missing references")
	require.NotNil(t, sent[0].ChangeRequestID)
	assert.Equal(t, cr.ID, *sent[0].ChangeRequestID)
}
