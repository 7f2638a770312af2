package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yousifm93/income-engine/internal/models"
)

// NormalizeResult accumulates everything one normalization pass produced
type NormalizeResult struct {
	Components    []models.IncomeComponent
	Trace         []models.CalculationTraceItem
	Warnings      []models.Warning
	MissingInputs []string

	// DocShares maps component key -> source document -> the fraction of
	// that component's amount attributable to the document. Used for
	// contribution-weighted confidence.
	DocShares map[string]map[uuid.UUID]float64

	seenKeys map[string]int
}

// Normalizer turns extracted document fields into qualifying monthly income
// components. It is stateless across runs: the same documents always produce
// the same components.
type Normalizer struct {
	log *logrus.Logger
}

// NewNormalizer initializes a normalizer
func NewNormalizer(log *logrus.Logger) *Normalizer {
	return &Normalizer{log: log}
}

// Normalize processes success-status documents in the order given. Multi-year
// form types (W-2, Schedule C, K-1) are grouped by employer or entity and
// averaged; the group is emitted at the position of its first document so
// output order stays deterministic.
func (n *Normalizer) Normalize(docs []models.IncomeDocument) *NormalizeResult {
	res := &NormalizeResult{
		DocShares: make(map[string]map[uuid.UUID]float64),
		seenKeys:  make(map[string]int),
	}

	grouped := make(map[string]bool)

	for i, doc := range docs {
		switch doc.DocType {
		case models.DocTypePayStub:
			n.normalizePayStub(doc, res)
		case models.DocTypeW2:
			gk := groupKey(doc)
			if grouped[gk] {
				continue
			}
			grouped[gk] = true
			n.normalizeW2Group(collectGroup(docs[i:], doc.DocType, gk), res)
		case models.DocTypeScheduleC:
			gk := groupKey(doc)
			if grouped[gk] {
				continue
			}
			grouped[gk] = true
			n.normalizeScheduleCGroup(collectGroup(docs[i:], doc.DocType, gk), res)
		case models.DocTypeK1:
			gk := groupKey(doc)
			if grouped[gk] {
				continue
			}
			grouped[gk] = true
			n.normalizeK1Group(collectGroup(docs[i:], doc.DocType, gk), res)
		case models.DocTypeVOE:
			n.normalizeVOE(doc, res)
		default:
			res.Warnings = append(res.Warnings, models.Warning{
				Code:       models.WarnManualEntryNeeded,
				Message:    fmt.Sprintf("document type %s could not be auto-calculated; manual entry required", doc.DocType),
				DocumentID: ptrUUID(doc.ID),
			})
		}
	}

	return res
}

// groupKey identifies the averaging group a multi-year document belongs to
func groupKey(doc models.IncomeDocument) string {
	label := ""
	switch {
	case doc.Fields.W2 != nil:
		label = doc.Fields.W2.EmployerName
	case doc.Fields.ScheduleC != nil:
		label = doc.Fields.ScheduleC.BusinessName
	case doc.Fields.K1 != nil:
		label = doc.Fields.K1.EntityName
	}
	return string(doc.DocType) + "|" + strings.ToLower(strings.TrimSpace(label))
}

func collectGroup(docs []models.IncomeDocument, t models.DocumentType, gk string) []models.IncomeDocument {
	var group []models.IncomeDocument
	for _, d := range docs {
		if d.DocType == t && groupKey(d) == gk {
			group = append(group, d)
		}
	}
	return group
}

func (n *Normalizer) normalizePayStub(doc models.IncomeDocument, res *NormalizeResult) {
	f := doc.Fields.PayStub
	if f == nil {
		res.warnMissing(doc.ID, "pay stub fields absent after extraction", "gross_current")
		return
	}

	gross := f.GrossCurrent
	hourlyDerived := false
	if gross <= 0 && f.HourlyRate > 0 && f.HoursCurrent > 0 {
		gross = f.HourlyRate * f.HoursCurrent
		hourlyDerived = true
	}
	if gross <= 0 {
		res.warnMissing(doc.ID, "pay stub is missing gross_current (and hourly_rate/hours_current)", "gross_current")
		return
	}

	ppy, known := models.PeriodsPerYear(f.PayFrequency)
	freqLabel := string(f.PayFrequency)
	if !known {
		freqLabel = "monthly (assumed)"
		res.Warnings = append(res.Warnings, models.Warning{
			Code:       models.WarnFrequencyAssumed,
			Message:    "pay frequency missing or unrecognized; assumed monthly, which may understate income",
			DocumentID: ptrUUID(doc.ID),
			Field:      "pay_frequency",
		})
	}

	year := periodYear(doc)

	ot := positive(f.OvertimeCurrent)
	bonus := positive(f.BonusCurrent)
	commission := positive(f.CommissionCurrent)

	base := gross - ot - bonus - commission
	if base < 0 {
		res.Warnings = append(res.Warnings, models.Warning{
			Code:       models.WarnMissingFields,
			Message:    "overtime/bonus/commission breakdown exceeds gross pay; base floored at zero",
			DocumentID: ptrUUID(doc.ID),
			Field:      "gross_current",
		})
		base = 0
	}

	baseType := models.CompBaseSalary
	baseLine := "gross_current"
	if hourlyDerived {
		baseType = models.CompBaseHourly
		baseLine = "hourly_rate x hours_current"
	}

	method := fmt.Sprintf("current %s pay annualized at %g periods/year", freqLabel, ppy)

	res.addComponent(doc, baseType, f.EmployerName, base*ppy/12, method, 12,
		models.CalculationTraceItem{
			Year:        year,
			SourceForm:  "Pay Stub",
			LineItem:    baseLine,
			Description: fmt.Sprintf("base pay %.2f x %g periods/year", base, ppy),
			Amount:      base * ppy,
			Sign:        models.SignPlus,
		})

	if ot > 0 {
		res.addComponent(doc, models.CompOvertime, f.EmployerName, ot*ppy/12, method, 12,
			models.CalculationTraceItem{
				Year:        year,
				SourceForm:  "Pay Stub",
				LineItem:    "ot_current",
				Description: fmt.Sprintf("overtime %.2f x %g periods/year", ot, ppy),
				Amount:      ot * ppy,
				Sign:        models.SignPlus,
			})
	}
	if bonus > 0 {
		res.addComponent(doc, models.CompBonus, f.EmployerName, bonus*ppy/12, method, 12,
			models.CalculationTraceItem{
				Year:        year,
				SourceForm:  "Pay Stub",
				LineItem:    "bonus_current",
				Description: fmt.Sprintf("bonus %.2f x %g periods/year", bonus, ppy),
				Amount:      bonus * ppy,
				Sign:        models.SignPlus,
			})
	}
	if commission > 0 {
		res.addComponent(doc, models.CompCommission, f.EmployerName, commission*ppy/12, method, 12,
			models.CalculationTraceItem{
				Year:        year,
				SourceForm:  "Pay Stub",
				LineItem:    "commission_current",
				Description: fmt.Sprintf("commission %.2f x %g periods/year", commission, ppy),
				Amount:      commission * ppy,
				Sign:        models.SignPlus,
			})
	}
}

func (n *Normalizer) normalizeW2Group(group []models.IncomeDocument, res *NormalizeResult) {
	type entry struct {
		doc   models.IncomeDocument
		wages float64
		year  int
	}
	var valid []entry
	label := ""
	for _, doc := range group {
		f := doc.Fields.W2
		if f == nil || f.Wages <= 0 || f.TaxYear == 0 {
			res.warnMissing(doc.ID, "W-2 is missing wages (Box 1) or tax_year", "wages")
			continue
		}
		if label == "" {
			label = f.EmployerName
		}
		valid = append(valid, entry{doc: doc, wages: f.Wages, year: f.TaxYear})
	}
	if len(valid) == 0 {
		return
	}

	var total float64
	years := make([]int, 0, len(valid))
	for _, e := range valid {
		total += e.wages
		years = append(years, e.year)
	}
	sort.Ints(years)

	months := 12 * len(valid)
	method := fmt.Sprintf("%d-year W-2 average (tax years %s)", len(valid), joinYears(years))

	var trace []models.CalculationTraceItem
	for _, e := range valid {
		trace = append(trace, models.CalculationTraceItem{
			Year:        e.year,
			SourceForm:  "W-2",
			LineItem:    "Box 1",
			Description: fmt.Sprintf("wages, tips and other compensation for %d", e.year),
			Amount:      e.wages,
			Sign:        models.SignPlus,
		})
	}

	key := res.addComponentMulti(models.CompW2Income, label, total/float64(months), method, months, trace, docIDs(valid, func(e entry) uuid.UUID { return e.doc.ID }))
	for _, e := range valid {
		res.share(key, e.doc.ID, e.wages/total)
	}
}

func (n *Normalizer) normalizeScheduleCGroup(group []models.IncomeDocument, res *NormalizeResult) {
	type entry struct {
		doc      models.IncomeDocument
		subtotal float64
		year     int
		f        *models.ScheduleCFields
	}
	var valid []entry
	label := ""
	for _, doc := range group {
		f := doc.Fields.ScheduleC
		if f == nil || f.TaxYear == 0 {
			res.warnMissing(doc.ID, "Schedule C is missing net_profit or tax_year", "net_profit")
			continue
		}
		if label == "" {
			label = f.BusinessName
		}
		subtotal := f.NetProfit + positive(f.Depreciation) + positive(f.HomeOfficeDeduction)
		valid = append(valid, entry{doc: doc, subtotal: subtotal, year: f.TaxYear, f: f})
	}
	if len(valid) == 0 {
		return
	}

	var total float64
	years := make([]int, 0, len(valid))
	for _, e := range valid {
		total += e.subtotal
		years = append(years, e.year)
	}
	sort.Ints(years)

	if total <= 0 {
		res.Warnings = append(res.Warnings, models.Warning{
			Code:    models.WarnNegativeIncome,
			Message: fmt.Sprintf("self-employment income for %q is zero or negative over tax years %s; manual review required", label, joinYears(years)),
		})
		return
	}

	months := 12 * len(valid)
	method := fmt.Sprintf("%d-year Schedule C average with depreciation and home-office add-backs (tax years %s)", len(valid), joinYears(years))

	var trace []models.CalculationTraceItem
	for _, e := range valid {
		net := e.f.NetProfit
		sign := models.SignPlus
		if net < 0 {
			sign = models.SignMinus
			net = -net
		}
		trace = append(trace, models.CalculationTraceItem{
			Year:        e.year,
			SourceForm:  "Schedule C",
			LineItem:    "Line 31",
			Description: fmt.Sprintf("net profit for %d", e.year),
			Amount:      net,
			Sign:        sign,
		})
		if e.f.Depreciation > 0 {
			trace = append(trace, models.CalculationTraceItem{
				Year:        e.year,
				SourceForm:  "Schedule C",
				LineItem:    "Line 13",
				Description: fmt.Sprintf("depreciation add-back for %d", e.year),
				Amount:      e.f.Depreciation,
				Sign:        models.SignPlus,
			})
		}
		if e.f.HomeOfficeDeduction > 0 {
			trace = append(trace, models.CalculationTraceItem{
				Year:        e.year,
				SourceForm:  "Schedule C",
				LineItem:    "Line 30",
				Description: fmt.Sprintf("home office deduction add-back for %d", e.year),
				Amount:      e.f.HomeOfficeDeduction,
				Sign:        models.SignPlus,
			})
		}
	}

	key := res.addComponentMulti(models.CompSelfEmployment, label, total/float64(months), method, months, trace, docIDs(valid, func(e entry) uuid.UUID { return e.doc.ID }))
	for _, e := range valid {
		res.share(key, e.doc.ID, positive(e.subtotal)/total)
	}
}

func (n *Normalizer) normalizeK1Group(group []models.IncomeDocument, res *NormalizeResult) {
	type entry struct {
		doc       models.IncomeDocument
		allocated float64
		pct       float64
		year      int
	}
	var valid []entry
	label := ""
	entityType := models.K1SCorp
	for _, doc := range group {
		f := doc.Fields.K1
		if f == nil || f.TaxYear == 0 {
			res.warnMissing(doc.ID, "K-1 is missing ordinary income (Box 1) or tax_year", "ordinary_income")
			continue
		}
		if label == "" {
			label = f.EntityName
		}
		if f.EntityType == models.K1Partnership {
			entityType = models.K1Partnership
		}
		pct := f.AllocationPct
		if pct <= 0 || pct > 100 {
			pct = 100
		}
		valid = append(valid, entry{doc: doc, allocated: f.OrdinaryIncome * pct / 100, pct: pct, year: f.TaxYear})
	}
	if len(valid) == 0 {
		return
	}

	var total float64
	years := make([]int, 0, len(valid))
	for _, e := range valid {
		total += e.allocated
		years = append(years, e.year)
	}
	sort.Ints(years)

	if total <= 0 {
		res.Warnings = append(res.Warnings, models.Warning{
			Code:    models.WarnNegativeIncome,
			Message: fmt.Sprintf("K-1 income for %q is zero or negative over tax years %s; manual review required", label, joinYears(years)),
		})
		return
	}

	compType := models.CompK1Income
	if entityType == models.K1Partnership {
		compType = models.CompPartnershipK1
	}

	months := 12 * len(valid)
	method := fmt.Sprintf("%d-year K-1 average at stated ownership allocation (tax years %s)", len(valid), joinYears(years))

	var trace []models.CalculationTraceItem
	for i := range valid {
		e := valid[i]
		trace = append(trace, models.CalculationTraceItem{
			Year:          e.year,
			SourceForm:    "Schedule K-1",
			LineItem:      "Box 1",
			Description:   fmt.Sprintf("ordinary business income for %d at %.0f%% allocation", e.year, e.pct),
			Amount:        e.allocated,
			Sign:          models.SignPlus,
			AllocationPct: &valid[i].pct,
		})
	}

	key := res.addComponentMulti(compType, label, total/float64(months), method, months, trace, docIDs(valid, func(e entry) uuid.UUID { return e.doc.ID }))
	for _, e := range valid {
		res.share(key, e.doc.ID, positive(e.allocated)/total)
	}
}

func (n *Normalizer) normalizeVOE(doc models.IncomeDocument, res *NormalizeResult) {
	f := doc.Fields.VOE
	if f == nil || f.VerifiedMonthlyIncome <= 0 {
		res.MissingInputs = append(res.MissingInputs,
			"voe: verified monthly income not stated; cannot normalize automatically")
		return
	}

	res.addComponent(doc, models.CompVOEVerified, f.EmployerName, f.VerifiedMonthlyIncome,
		"employer-verified monthly income (VOE)", 1,
		models.CalculationTraceItem{
			SourceForm:  "VOE",
			LineItem:    "verified_monthly_income",
			Description: "monthly income as stated by employer",
			Amount:      f.VerifiedMonthlyIncome,
			Sign:        models.SignPlus,
		})
}

// addComponent emits a single-document component plus its trace item
func (r *NormalizeResult) addComponent(doc models.IncomeDocument, t models.ComponentType, label string, monthlyRaw float64, method string, months int, item models.CalculationTraceItem) {
	key := r.uniqueKey(models.ComponentKey(t, label))
	m := months
	item.AllocatedTo = key
	r.Components = append(r.Components, models.IncomeComponent{
		ID:                uuid.New(),
		Type:              t,
		Key:               key,
		MonthlyAmount:     models.RoundCents(monthlyRaw),
		CalculationMethod: method,
		MonthsConsidered:  &m,
		SourceDocumentIDs: []uuid.UUID{doc.ID},
	})
	r.Trace = append(r.Trace, item)
	r.share(key, doc.ID, 1)
}

// addComponentMulti emits a grouped multi-document component with its trace
// items and returns the component key
func (r *NormalizeResult) addComponentMulti(t models.ComponentType, label string, monthlyRaw float64, method string, months int, trace []models.CalculationTraceItem, sources []uuid.UUID) string {
	key := r.uniqueKey(models.ComponentKey(t, label))
	m := months
	for i := range trace {
		trace[i].AllocatedTo = key
	}
	r.Components = append(r.Components, models.IncomeComponent{
		ID:                uuid.New(),
		Type:              t,
		Key:               key,
		MonthlyAmount:     models.RoundCents(monthlyRaw),
		CalculationMethod: method,
		MonthsConsidered:  &m,
		SourceDocumentIDs: sources,
	})
	r.Trace = append(r.Trace, trace...)
	return key
}

func (r *NormalizeResult) uniqueKey(key string) string {
	r.seenKeys[key]++
	if n := r.seenKeys[key]; n > 1 {
		return fmt.Sprintf("%s#%d", key, n)
	}
	return key
}

func (r *NormalizeResult) share(key string, docID uuid.UUID, frac float64) {
	if r.DocShares[key] == nil {
		r.DocShares[key] = make(map[uuid.UUID]float64)
	}
	r.DocShares[key][docID] += frac
}

func (r *NormalizeResult) warnMissing(docID uuid.UUID, msg, field string) {
	r.Warnings = append(r.Warnings, models.Warning{
		Code:       models.WarnMissingFields,
		Message:    msg,
		DocumentID: ptrUUID(docID),
		Field:      field,
	})
}

func periodYear(doc models.IncomeDocument) int {
	if doc.PeriodEnd != nil {
		return doc.PeriodEnd.Year()
	}
	if doc.PeriodStart != nil {
		return doc.PeriodStart.Year()
	}
	return 0
}

func positive(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func joinYears(years []int) string {
	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = fmt.Sprintf("%d", y)
	}
	return strings.Join(parts, ", ")
}

func docIDs[T any](entries []T, id func(T) uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		out[i] = id(e)
	}
	return out
}

func ptrUUID(id uuid.UUID) *uuid.UUID {
	return &id
}
