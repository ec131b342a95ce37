package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"docket/internal/docgen"
	"docket/internal/models"
	"docket/internal/testutil"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) all() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Notification(nil), r.sent...)
}

// docStub records every generated record and returns path, or fails when err is set.
type docStub struct {
	mu      sync.Mutex
	path    string
	err     error
	records []docgen.Record
}

func (d *docStub) Generate(_ context.Context, rec docgen.Record) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = append(d.records, rec)
	return d.path, d.err
}

func (d *docStub) last() docgen.Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.records[len(d.records)-1]
}

var errRender = errors.New("renderer unavailable")

// fixture wires every workflow service onto one sqlite database.
type fixture struct {
	t        *testing.T
	db       *gorm.DB
	notifier *recordingNotifier
	docs     *docStub
	changes  *ChangeRequestService
	approval *ApprovalService
	qc       *QCService

	editor    *models.User
	inspector *models.User
	qcUser    *models.User
	pmUser    *models.User
	viewer    *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &fixture{
		t:        t,
		db:       db,
		notifier: &recordingNotifier{},
		docs:     &docStub{path: "qc-documents/test.pdf"},
	}
	collab := Collaborators{Notifier: f.notifier, Docs: f.docs}
	f.changes = NewChangeRequestService(db)
	f.approval = NewApprovalService(db, NewAllocator(), collab)
	f.qc = NewQCService(db, collab)

	f.editor = testutil.CreateUser(t, db, models.RoleEditor, false, false)
	f.inspector = testutil.CreateUser(t, db, models.RoleInspector, false, false)
	f.qcUser = testutil.CreateUser(t, db, models.RoleInspector, true, false)
	f.pmUser = testutil.CreateUser(t, db, models.RoleInspector, false, true)
	f.viewer = testutil.CreateUser(t, db, models.RoleViewer, false, false)
	return f
}

func (f *fixture) submitCreate(projectID uint, parentID *uint, title string) *models.ChangeRequest {
	f.t.Helper()
	cr, err := f.changes.Submit(context.Background(), f.editor.Actor(), SubmitInput{
		Type:      models.ChangeCreate,
		Payload:   models.CreatePayload{Title: title, Content: "<p>" + title + "</p>"},
		ProjectID: projectID,
		ParentID:  parentID,
	})
	require.NoError(f.t, err)
	return cr
}

// create submits and approves a CREATE request and returns the new item.
func (f *fixture) create(projectID uint, parentID *uint, title string) *models.Item {
	f.t.Helper()
	cr := f.submitCreate(projectID, parentID, title)
	approved, err := f.approval.Approve(context.Background(), f.inspector.Actor(), cr.ID)
	require.NoError(f.t, err)
	require.NotNil(f.t, approved.ItemID)

	var item models.Item
	require.NoError(f.t, f.db.First(&item, *approved.ItemID).Error)
	return &item
}

// approvalFor returns the QC approval opened for the item's latest version.
func (f *fixture) approvalFor(itemID uint) *models.QCDocumentApproval {
	f.t.Helper()
	var a models.QCDocumentApproval
	require.NoError(f.t, f.db.
		Joins("JOIN item_histories ih ON ih.id = qc_document_approvals.item_history_id").
		Where("ih.item_id = ?", itemID).
		Order("qc_document_approvals.id DESC").
		First(&a).Error)
	return &a
}

func (f *fixture) statusOf(changeRequestID uint) models.ChangeStatus {
	f.t.Helper()
	var cr models.ChangeRequest
	require.NoError(f.t, f.db.First(&cr, changeRequestID).Error)
	return cr.Status
}
