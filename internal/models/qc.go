package models

import "time"

// QCStatus is the sign-off stage of a generated document.
type QCStatus string

const (
	QCPendingQC        QCStatus = "PENDING_QC"
	QCPendingPM        QCStatus = "PENDING_PM"
	QCRevisionRequired QCStatus = "REVISION_REQUIRED"
	QCCompleted        QCStatus = "COMPLETED"
)

// DefaultApprovalNote is recorded when a QC or PM approver leaves the note blank.
const DefaultApprovalNote = "同意"

// QCDocumentApproval tracks QC then PM sign-off of one item history version.
type QCDocumentApproval struct {
	ID             uint                 `gorm:"primaryKey" json:"id"`
	ItemHistoryID  uint                 `gorm:"not null;uniqueIndex" json:"item_history_id"`
	ItemHistory    *ItemHistory         `gorm:"foreignKey:ItemHistoryID" json:"item_history,omitempty"`
	Status         QCStatus             `gorm:"type:varchar(20);not null;default:'PENDING_QC';index" json:"status"`
	QCApprovedByID *uint                `json:"qc_approved_by_id"`
	QCApprovedBy   *User                `gorm:"foreignKey:QCApprovedByID" json:"qc_approved_by,omitempty"`
	QCApprovedAt   *time.Time           `json:"qc_approved_at"`
	QCNote         *string              `gorm:"type:text" json:"qc_note"`
	PMApprovedByID *uint                `json:"pm_approved_by_id"`
	PMApprovedBy   *User                `gorm:"foreignKey:PMApprovedByID" json:"pm_approved_by,omitempty"`
	PMApprovedAt   *time.Time           `json:"pm_approved_at"`
	PMNote         *string              `gorm:"type:text" json:"pm_note"`
	RevisionCount  int                  `gorm:"not null;default:0" json:"revision_count"`
	Revisions      []QCDocumentRevision `gorm:"foreignKey:ApprovalID" json:"revisions,omitempty"`
	CreatedAt      time.Time            `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (QCDocumentApproval) TableName() string {
	return "qc_document_approvals"
}

// QCDocumentRevision is a revision request raised against an approval. At most one is open
// (ResolvedAt nil) per approval.
type QCDocumentRevision struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	ApprovalID            uint       `gorm:"not null;uniqueIndex:idx_qc_revision_number" json:"approval_id"`
	RevisionNumber        int        `gorm:"not null;uniqueIndex:idx_qc_revision_number" json:"revision_number"`
	RequestedByID         uint       `gorm:"not null" json:"requested_by_id"`
	RequestedBy           *User      `gorm:"foreignKey:RequestedByID" json:"requested_by,omitempty"`
	RequestNote           string     `gorm:"type:text;not null" json:"request_note"`
	RequestedAt           time.Time  `json:"requested_at"`
	ResolvedAt            *time.Time `json:"resolved_at"`
	ResolvedItemHistoryID *uint      `json:"resolved_item_history_id"`
}

// TableName specifies the table name for GORM.
func (QCDocumentRevision) TableName() string {
	return "qc_document_revisions"
}
