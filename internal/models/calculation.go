package models

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// Agency identifies the investor rule-set a calculation was run under
type Agency string

const (
	AgencyFannie  Agency = "fannie"
	AgencyFreddie Agency = "freddie"
)

// KnownAgency reports whether a is a supported agency
func KnownAgency(a Agency) bool {
	return a == AgencyFannie || a == AgencyFreddie
}

// Sentinel errors surfaced by the calculation service and stores
var (
	ErrUnknownAgency      = errors.New("unknown agency")
	ErrUnknownLoanProgram = errors.New("unknown loan program")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrCalcNotFound       = errors.New("calculation not found")
)

// Warning is one structured caveat attached to a calculation
type Warning struct {
	Code       string     `json:"code"`
	Message    string     `json:"message"`
	DocumentID *uuid.UUID `json:"document_id,omitempty"`
	Field      string     `json:"field,omitempty"`
}

// Warning codes
const (
	WarnFrequencyAssumed  = "pay_frequency_assumed"
	WarnMissingFields     = "missing_required_fields"
	WarnUnsupportedType   = "unsupported_document_type"
	WarnNegativeIncome    = "negative_self_employment_income"
	WarnManualEntryNeeded = "manual_entry_required"
)

// TraceSign marks a trace amount as an addition or subtraction
type TraceSign string

const (
	SignPlus  TraceSign = "+"
	SignMinus TraceSign = "-"
)

// CalculationTraceItem is one line of the audit trail, tying a dollar figure
// in the result back to a source form line and year
type CalculationTraceItem struct {
	Year          int       `json:"year,omitempty"`
	SourceForm    string    `json:"source_form"`
	LineItem      string    `json:"line_item"`
	Description   string    `json:"description"`
	Amount        float64   `json:"amount"`
	Sign          TraceSign `json:"sign"`
	AllocatedTo   string    `json:"allocated_to"`
	AllocationPct *float64  `json:"allocation_pct,omitempty"`
}

// SignedAmount returns the amount with its sign applied
func (t CalculationTraceItem) SignedAmount() float64 {
	if t.Sign == SignMinus {
		return -t.Amount
	}
	return t.Amount
}

// IncomeCalculation is one immutable calculation run. Recalculation always
// creates a new row; the latest run for a borrower is the one with the
// greatest creation timestamp.
type IncomeCalculation struct {
	ID                  uuid.UUID              `json:"id"`
	BorrowerID          string                 `json:"borrower_id"`
	Agency              Agency                 `json:"agency"`
	LoanProgram         string                 `json:"loan_program"`
	ResultMonthlyIncome float64                `json:"result_monthly_income"`
	Confidence          float64                `json:"confidence"`
	Warnings            []Warning              `json:"warnings"`
	MissingInputs       []string               `json:"missing_inputs"`
	Overrides           map[string]float64     `json:"overrides,omitempty"`
	Components          []IncomeComponent      `json:"components"`
	Trace               []CalculationTraceItem `json:"calculation_trace"`
	CalculationVersion  string                 `json:"calculation_version"`
	CreatedAt           time.Time              `json:"created_at"`
}

// SumComponents re-derives the stored total from the components so the
// summation invariant stays verifiable
func (c IncomeCalculation) SumComponents() float64 {
	var sum float64
	for _, comp := range c.Components {
		sum += comp.EffectiveMonthly()
	}
	return RoundCents(sum)
}

// RoundCents rounds half-up (away from zero) to 2 decimal places. Applied
// only at the point of final monthly-amount computation, never at
// intermediate steps.
func RoundCents(v float64) float64 {
	if v < 0 {
		return -math.Floor(-v*100+0.5) / 100
	}
	return math.Floor(v*100+0.5) / 100
}
