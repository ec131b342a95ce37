package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ChangeType is the kind of mutation a change request proposes.
type ChangeType string

const (
	ChangeCreate ChangeType = "CREATE"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Valid reports whether t is a known change type.
func (t ChangeType) Valid() bool {
	return t == ChangeCreate || t == ChangeUpdate || t == ChangeDelete
}

// ChangeStatus is the lifecycle state of a change request.
type ChangeStatus string

const (
	ChangePending     ChangeStatus = "PENDING"
	ChangeApproved    ChangeStatus = "APPROVED"
	ChangeRejected    ChangeStatus = "REJECTED"
	ChangeResubmitted ChangeStatus = "RESUBMITTED"
)

// ChangeRequest is a proposed item mutation waiting for review. Data holds the encoded Payload.
type ChangeRequest struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Type              ChangeType      `gorm:"type:varchar(10);not null" json:"type"`
	Status            ChangeStatus    `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	Data              string          `gorm:"type:text;not null" json:"-"`
	Payload           json.RawMessage `gorm:"-" json:"payload,omitempty"`
	TargetProjectID   uint            `gorm:"not null;index" json:"target_project_id"`
	TargetProject     *Project        `gorm:"foreignKey:TargetProjectID" json:"target_project,omitempty"`
	TargetParentID    *uint           `json:"target_parent_id"`
	ItemID            *uint           `gorm:"index" json:"item_id"`
	Item              *Item           `gorm:"foreignKey:ItemID" json:"item,omitempty"`
	SubmittedByID     uint            `gorm:"not null;index" json:"submitted_by_id"`
	SubmittedBy       *User           `gorm:"foreignKey:SubmittedByID" json:"submitted_by,omitempty"`
	ReviewedByID      *uint           `json:"reviewed_by_id"`
	ReviewedBy        *User           `gorm:"foreignKey:ReviewedByID" json:"reviewed_by,omitempty"`
	ReviewNote        string          `gorm:"type:text" json:"review_note"`
	ResubmittedFromID *uint           `json:"resubmitted_from_id"`
	ReviewedAt        *time.Time      `json:"reviewed_at"`
	CreatedAt         time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (ChangeRequest) TableName() string {
	return "change_requests"
}

// AfterFind exposes the stored payload body to JSON clients.
func (cr *ChangeRequest) AfterFind(_ *gorm.DB) error {
	var env payloadEnvelope
	if err := json.Unmarshal([]byte(cr.Data), &env); err == nil && len(env.Data) > 0 {
		cr.Payload = env.Data
	}
	return nil
}

// Decode returns the typed payload, validated against the request type.
func (cr *ChangeRequest) Decode() (Payload, error) {
	return DecodePayload(cr.Type, cr.Data)
}

// Payload is one variant of the change-request tagged union.
type Payload interface {
	ChangeType() ChangeType
	Validate() error
}

// CreatePayload proposes a new item under the request's target project and parent.
type CreatePayload struct {
	Title          string       `json:"title"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	RelatedItemIDs []uint       `json:"related_item_ids,omitempty"`
}

func (CreatePayload) ChangeType() ChangeType { return ChangeCreate }

func (p CreatePayload) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return NewValidationError("title is required")
	}
	return nil
}

// UpdatePayload replaces an item's title and content. Attachments are replaced only when present.
type UpdatePayload struct {
	Title       string        `json:"title"`
	Content     string        `json:"content"`
	Attachments *[]Attachment `json:"attachments,omitempty"`
}

func (UpdatePayload) ChangeType() ChangeType { return ChangeUpdate }

func (p UpdatePayload) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return NewValidationError("title is required")
	}
	return nil
}

// DeletePayload soft-deletes the target item.
type DeletePayload struct {
	Reason string `json:"reason,omitempty"`
}

func (DeletePayload) ChangeType() ChangeType { return ChangeDelete }

func (DeletePayload) Validate() error { return nil }

type payloadEnvelope struct {
	Type ChangeType      `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodePayload validates p and serializes it with its variant tag.
func EncodePayload(p Payload) (string, error) {
	if p == nil {
		return "", NewValidationError("payload is required")
	}
	if err := p.Validate(); err != nil {
		return "", err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return "", NewInternalError(err)
	}
	out, err := json.Marshal(payloadEnvelope{Type: p.ChangeType(), Data: body})
	if err != nil {
		return "", NewInternalError(err)
	}
	return string(out), nil
}

// DecodePayload parses raw as the variant for t. A tag mismatch, unknown fields or a payload that
// fails validation is a validation error.
func DecodePayload(t ChangeType, raw string) (Payload, error) {
	var env payloadEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, NewValidationError(fmt.Sprintf("malformed change payload: %v", err))
	}
	if env.Type != t {
		return nil, NewValidationError(fmt.Sprintf("payload tagged %q does not match request type %q", env.Type, t))
	}
	return ParsePayload(t, env.Data)
}

// ParsePayload decodes an untagged payload body as the variant for t and validates it.
func ParsePayload(t ChangeType, data json.RawMessage) (Payload, error) {
	var p Payload
	switch t {
	case ChangeCreate:
		var v CreatePayload
		if err := strictUnmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	case ChangeUpdate:
		var v UpdatePayload
		if err := strictUnmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	case ChangeDelete:
		var v DeletePayload
		if len(data) > 0 && string(data) != "null" {
			if err := strictUnmarshal(data, &v); err != nil {
				return nil, err
			}
		}
		p = v
	default:
		return nil, NewValidationError(fmt.Sprintf("unknown change type %q", t))
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func strictUnmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return NewValidationError("payload body is empty")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return NewValidationError(fmt.Sprintf("malformed change payload: %v", err))
	}
	return nil
}
