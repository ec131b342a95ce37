package service

import (
	"context"

	"gorm.io/gorm"

	"docket/internal/docgen"
	"docket/internal/middleware"
	"docket/internal/models"
	"docket/internal/observability"
)

// documentRenderer regenerates the QC document of an item history version. Failures are logged and
// counted; the workflow transition that triggered the render has already committed.
type documentRenderer struct {
	db   *gorm.DB
	docs docgen.Generator
}

// render builds the record for historyID, with sign-off fields from approval when given, and
// stores the resulting document path on the history row.
func (d documentRenderer) render(ctx context.Context, stage string, historyID uint, approval *models.QCDocumentApproval) {
	st := newStores(d.db)

	rec, err := d.record(ctx, st, historyID, approval)
	if err == nil {
		var path string
		path, err = d.docs.Generate(ctx, rec)
		if err == nil && path != "" {
			err = st.history.SetDocumentPath(ctx, historyID, path)
		}
	}
	if err != nil {
		observability.DocumentGenerationFailures.WithLabelValues(stage).Inc()
		middleware.Logger.WarnContext(ctx, "qc document generation failed",
			"stage", stage, "item_history_id", historyID, "error", err)
	}
}

func (d documentRenderer) record(ctx context.Context, st stores, historyID uint, approval *models.QCDocumentApproval) (docgen.Record, error) {
	h, err := st.history.GetByID(ctx, historyID)
	if err != nil {
		return docgen.Record{}, err
	}
	rec := docgen.Record{History: *h, SubmissionDate: h.CreatedAt}
	if h.SubmittedBy != nil {
		rec.SubmitterName = h.SubmittedBy.Username
	}
	if p, err := st.projects.GetByID(ctx, h.ProjectID); err == nil {
		rec.ProjectTitle = p.Title
	}
	rec.ReviewerName = d.username(ctx, st, h.ReviewedByID)

	if approval != nil {
		rec.QCNote = deref(approval.QCNote)
		rec.QCDate = approval.QCApprovedAt
		rec.QCUser = d.username(ctx, st, approval.QCApprovedByID)
		rec.PMNote = deref(approval.PMNote)
		rec.PMDate = approval.PMApprovedAt
		rec.PMUser = d.username(ctx, st, approval.PMApprovedByID)
	}
	return rec, nil
}

func (d documentRenderer) username(ctx context.Context, st stores, id *uint) string {
	if id == nil {
		return ""
	}
	u, err := st.users.GetByID(ctx, *id)
	if err != nil {
		return ""
	}
	return u.Username
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
