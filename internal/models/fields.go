package models

import (
	"encoding/json"
	"fmt"
)

// PayFrequency is the declared pay cadence on a pay stub
type PayFrequency string

const (
	FreqWeekly      PayFrequency = "weekly"
	FreqBiweekly    PayFrequency = "biweekly"
	FreqSemimonthly PayFrequency = "semimonthly"
	FreqMonthly     PayFrequency = "monthly"
)

// PeriodsPerYear maps a pay frequency to its annualization factor.
// The second return value is false when the frequency is missing or
// unrecognized; callers fall back to monthly and must surface a warning.
func PeriodsPerYear(f PayFrequency) (float64, bool) {
	switch f {
	case FreqWeekly:
		return 52, true
	case FreqBiweekly:
		return 26, true
	case FreqSemimonthly:
		return 24, true
	case FreqMonthly:
		return 12, true
	}
	return 12, false
}

// PayStubFields holds the extracted fields of a pay stub
type PayStubFields struct {
	EmployeeName      string       `json:"employee_name,omitempty"`
	EmployerName      string       `json:"employer_name,omitempty"`
	PayPeriodStart    string       `json:"pay_period_start,omitempty"`
	PayPeriodEnd      string       `json:"pay_period_end,omitempty"`
	PayFrequency      PayFrequency `json:"pay_frequency,omitempty"`
	HourlyRate        float64      `json:"hourly_rate,omitempty"`
	HoursCurrent      float64      `json:"hours_current,omitempty"`
	GrossCurrent      float64      `json:"gross_current,omitempty"`
	OvertimeCurrent   float64      `json:"ot_current,omitempty"`
	BonusCurrent      float64      `json:"bonus_current,omitempty"`
	CommissionCurrent float64      `json:"commission_current,omitempty"`
	HoursYTD          float64      `json:"hours_ytd,omitempty"`
	GrossYTD          float64      `json:"gross_ytd,omitempty"`
}

// W2Fields holds the extracted fields of a W-2
type W2Fields struct {
	EmployerName    string  `json:"employer_name,omitempty"`
	Wages           float64 `json:"wages,omitempty"`             // Box 1
	FedTaxWithheld  float64 `json:"fed_tax_withheld,omitempty"`  // Box 2
	SocialSecWages  float64 `json:"ss_wages,omitempty"`          // Box 3
	TaxYear         int     `json:"tax_year,omitempty"`
}

// ScheduleCFields holds the extracted fields of a Schedule C
type ScheduleCFields struct {
	BusinessName        string  `json:"business_name,omitempty"`
	GrossReceipts       float64 `json:"gross_receipts,omitempty"`
	NetProfit           float64 `json:"net_profit,omitempty"`
	Depreciation        float64 `json:"depreciation,omitempty"`
	HomeOfficeDeduction float64 `json:"home_office_deduction,omitempty"`
	TaxYear             int     `json:"tax_year,omitempty"`
}

// K1EntityType distinguishes S-corp from partnership K-1s
type K1EntityType string

const (
	K1SCorp       K1EntityType = "s_corp"
	K1Partnership K1EntityType = "partnership"
)

// K1Fields holds the extracted fields of a Schedule K-1
type K1Fields struct {
	EntityName     string       `json:"entity_name,omitempty"`
	EntityType     K1EntityType `json:"entity_type,omitempty"`
	OrdinaryIncome float64      `json:"ordinary_income,omitempty"` // Box 1
	AllocationPct  float64      `json:"allocation_pct,omitempty"`  // ownership %, 100 when absent
	TaxYear        int          `json:"tax_year,omitempty"`
}

// VOEFields holds the extracted fields of a verification of employment
type VOEFields struct {
	EmployerName          string  `json:"employer_name,omitempty"`
	VerifiedMonthlyIncome float64 `json:"verified_monthly_income,omitempty"`
	EmploymentStart       string  `json:"employment_start,omitempty"`
}

// DocumentFields is a tagged union of per-document-type field sets.
// Exactly one variant is populated for an extracted document; the variant
// matches the document's declared type. Unmapped types land in Generic.
type DocumentFields struct {
	PayStub   *PayStubFields    `json:"pay_stub,omitempty"`
	W2        *W2Fields         `json:"w2,omitempty"`
	ScheduleC *ScheduleCFields  `json:"schedule_c,omitempty"`
	K1        *K1Fields         `json:"k1,omitempty"`
	VOE       *VOEFields        `json:"voe,omitempty"`
	Generic   map[string]string `json:"generic,omitempty"`
}

// Empty reports whether no variant has been populated yet
func (f DocumentFields) Empty() bool {
	return f.PayStub == nil && f.W2 == nil && f.ScheduleC == nil &&
		f.K1 == nil && f.VOE == nil && len(f.Generic) == 0
}

// ParseFields decodes a flat extracted-field JSON object into the typed
// variant for the given document type
func ParseFields(docType DocumentType, raw []byte) (DocumentFields, error) {
	var out DocumentFields
	switch docType {
	case DocTypePayStub:
		var v PayStubFields
		if err := json.Unmarshal(raw, &v); err != nil {
			return out, fmt.Errorf("parse pay stub fields: %w", err)
		}
		out.PayStub = &v
	case DocTypeW2:
		var v W2Fields
		if err := json.Unmarshal(raw, &v); err != nil {
			return out, fmt.Errorf("parse w2 fields: %w", err)
		}
		out.W2 = &v
	case DocTypeScheduleC:
		var v ScheduleCFields
		if err := json.Unmarshal(raw, &v); err != nil {
			return out, fmt.Errorf("parse schedule c fields: %w", err)
		}
		out.ScheduleC = &v
	case DocTypeK1:
		var v K1Fields
		if err := json.Unmarshal(raw, &v); err != nil {
			return out, fmt.Errorf("parse k1 fields: %w", err)
		}
		out.K1 = &v
	case DocTypeVOE:
		var v VOEFields
		if err := json.Unmarshal(raw, &v); err != nil {
			return out, fmt.Errorf("parse voe fields: %w", err)
		}
		out.VOE = &v
	default:
		var v map[string]string
		if err := json.Unmarshal(raw, &v); err != nil {
			return out, fmt.Errorf("parse generic fields: %w", err)
		}
		out.Generic = v
	}
	return out, nil
}
