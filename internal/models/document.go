package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentType classifies an uploaded income document
type DocumentType string

const (
	DocTypePayStub   DocumentType = "pay_stub"
	DocTypeW2        DocumentType = "w2"
	DocType1099      DocumentType = "1099"
	DocType1040      DocumentType = "1040"
	DocTypeScheduleC DocumentType = "schedule_c"
	DocTypeScheduleE DocumentType = "schedule_e"
	DocTypeK1        DocumentType = "k1"
	DocTypeVOE       DocumentType = "voe"
	DocTypeOther     DocumentType = "other"
)

// KnownDocumentType reports whether t is one of the declared document types
func KnownDocumentType(t DocumentType) bool {
	switch t {
	case DocTypePayStub, DocTypeW2, DocType1099, DocType1040,
		DocTypeScheduleC, DocTypeScheduleE, DocTypeK1, DocTypeVOE, DocTypeOther:
		return true
	}
	return false
}

// OCRStatus tracks the extraction lifecycle of a document.
// Transitions: pending -> processing -> success | failed.
// A manual reprocess resets a terminal status back to pending.
type OCRStatus string

const (
	OCRPending    OCRStatus = "pending"
	OCRProcessing OCRStatus = "processing"
	OCRSuccess    OCRStatus = "success"
	OCRFailed     OCRStatus = "failed"
)

// IncomeDocument represents one uploaded income document for a borrower
type IncomeDocument struct {
	ID          uuid.UUID      `json:"id"`
	BorrowerID  string         `json:"borrower_id"`
	DocType     DocumentType   `json:"doc_type"`
	FileRef     string         `json:"file_ref"`
	OCRStatus   OCRStatus      `json:"ocr_status"`
	Fields      DocumentFields `json:"fields"`
	Confidence  float64        `json:"confidence"`
	PeriodStart *time.Time     `json:"period_start,omitempty"`
	PeriodEnd   *time.Time     `json:"period_end,omitempty"`
	YearToDate  bool           `json:"year_to_date"`
	ErrorDetail string         `json:"error_detail,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
