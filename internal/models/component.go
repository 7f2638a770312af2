package models

import (
	"github.com/google/uuid"
)

// ComponentType classifies a normalized monthly income contribution
type ComponentType string

const (
	CompBaseHourly        ComponentType = "base_hourly"
	CompBaseSalary        ComponentType = "base_salary"
	CompOvertime          ComponentType = "overtime"
	CompBonus             ComponentType = "bonus"
	CompCommission        ComponentType = "commission"
	CompSelfEmployment    ComponentType = "self_employment"
	CompRental            ComponentType = "rental"
	CompW2Income          ComponentType = "w2_income"
	CompVariableIncomeYTD ComponentType = "variable_income_ytd"
	CompVOEVerified       ComponentType = "voe_verified"
	CompK1Income          ComponentType = "k1_income"
	CompPartnershipK1     ComponentType = "partnership_k1_income"
	CompCCorpIncome       ComponentType = "ccorp_income"
	CompFarmIncome        ComponentType = "farm_income"
	CompOther             ComponentType = "other"
)

// IncomeComponent is one normalized monthly income contribution derived from
// one or more documents. Components are immutable once their calculation is
// persisted; a recalculation produces a fresh set under a new calculation.
type IncomeComponent struct {
	ID            uuid.UUID     `json:"id"`
	CalculationID uuid.UUID     `json:"calculation_id"`
	Type          ComponentType `json:"type"`

	// Key is the stable identifier overrides address, e.g. "base_salary"
	// or "w2_income:Acme Corp".
	Key string `json:"key"`

	// MonthlyAmount is the computed figure. OverrideAmount, when set,
	// replaces it in the calculation total; the computed value stays
	// visible for audit.
	MonthlyAmount  float64  `json:"monthly_amount"`
	OverrideAmount *float64 `json:"override_amount,omitempty"`

	CalculationMethod string      `json:"calculation_method"`
	MonthsConsidered  *int        `json:"months_considered,omitempty"`
	Notes             string      `json:"notes,omitempty"`
	SourceDocumentIDs []uuid.UUID `json:"source_document_ids,omitempty"`
}

// EffectiveMonthly returns the amount the component contributes to the
// calculation total after any override
func (c IncomeComponent) EffectiveMonthly() float64 {
	if c.OverrideAmount != nil {
		return *c.OverrideAmount
	}
	return c.MonthlyAmount
}

// ComponentKey builds the override key for a component type plus an optional
// source label (employer, business or entity name)
func ComponentKey(t ComponentType, label string) string {
	if label == "" {
		return string(t)
	}
	return string(t) + ":" + label
}
