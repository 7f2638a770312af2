package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/yousifm93/income-engine/internal/config"
	"github.com/yousifm93/income-engine/internal/models"
)

// CalculationVersion tags every persisted calculation with the rule-set
// version that produced it, so later rule changes never reinterpret history.
const CalculationVersion = "2025.08-agency-v1"

// DocumentStore is the document registry the calculator reads from
type DocumentStore interface {
	Create(ctx context.Context, doc *models.IncomeDocument) error
	Get(ctx context.Context, id uuid.UUID) (*models.IncomeDocument, error)
	ListByBorrower(ctx context.Context, borrowerID string) ([]models.IncomeDocument, error)
	ListByStatus(ctx context.Context, status models.OCRStatus, limit int) ([]models.IncomeDocument, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.OCRStatus, errorDetail string) error
	SaveExtraction(ctx context.Context, id uuid.UUID, fields models.DocumentFields, confidence float64) error
}

// CalculationStore persists calculation runs. Create is atomic across the
// calculation, its components and its trace.
type CalculationStore interface {
	Create(ctx context.Context, calc *models.IncomeCalculation) error
	Get(ctx context.Context, id uuid.UUID) (*models.IncomeCalculation, error)
	GetLatest(ctx context.Context, borrowerID string) (*models.IncomeCalculation, error)
	ListByBorrower(ctx context.Context, borrowerID string) ([]models.IncomeCalculation, error)
}

// Notifier is told when a calculation has been persisted
type Notifier interface {
	CalculationReady(calc *models.IncomeCalculation)
}

// Service handles business logic
type Service struct {
	docs       DocumentStore
	calcs      CalculationStore
	reqs       *config.Requirements
	normalizer *Normalizer
	notifier   Notifier
	log        *logrus.Logger

	latestCache *gocache.Cache
}

// NewService initializes a new service. notifier may be nil.
func NewService(docs DocumentStore, calcs CalculationStore, reqs *config.Requirements, notifier Notifier, log *logrus.Logger) *Service {
	return &Service{
		docs:        docs,
		calcs:       calcs,
		reqs:        reqs,
		normalizer:  NewNormalizer(log),
		notifier:    notifier,
		log:         log,
		latestCache: gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// RegisterDocument records an uploaded document with a pending extraction
func (s *Service) RegisterDocument(ctx context.Context, doc *models.IncomeDocument) (*models.IncomeDocument, error) {
	if doc.BorrowerID == "" {
		return nil, fmt.Errorf("borrower_id is required")
	}
	if !models.KnownDocumentType(doc.DocType) {
		return nil, fmt.Errorf("unknown document type %q", doc.DocType)
	}

	doc.ID = uuid.New()
	doc.OCRStatus = models.OCRPending
	doc.Fields = models.DocumentFields{}
	doc.Confidence = 0

	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"document_id": doc.ID, "borrower_id": doc.BorrowerID, "doc_type": doc.DocType}).
		Info("Document registered")
	return doc, nil
}

// GetDocument returns one document with its current extraction state
func (s *Service) GetDocument(ctx context.Context, id uuid.UUID) (*models.IncomeDocument, error) {
	return s.docs.Get(ctx, id)
}

// ListDocuments returns all documents for a borrower
func (s *Service) ListDocuments(ctx context.Context, borrowerID string) ([]models.IncomeDocument, error) {
	return s.docs.ListByBorrower(ctx, borrowerID)
}

// ReprocessDocument resets a document for re-extraction. Prior calculations
// are snapshots and are never touched.
func (s *Service) ReprocessDocument(ctx context.Context, id uuid.UUID) (*models.IncomeDocument, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.docs.UpdateStatus(ctx, id, models.OCRPending, ""); err != nil {
		return nil, err
	}
	doc.OCRStatus = models.OCRPending
	doc.ErrorDetail = ""

	s.log.WithField("document_id", id).Info("Document queued for reprocessing")
	return doc, nil
}

// Calculate runs one aggregation over the borrower's currently extracted
// documents and persists an immutable IncomeCalculation. Document-level
// problems degrade the result into warnings and missing inputs; the only hard
// failures are an unknown agency or loan program and a persistence error.
func (s *Service) Calculate(ctx context.Context, borrowerID string, agency models.Agency, loanProgram string, overrides map[string]float64) (*models.IncomeCalculation, error) {
	if !models.KnownAgency(agency) {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownAgency, agency)
	}
	groups, ok := s.reqs.Groups(loanProgram)
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownLoanProgram, loanProgram)
	}

	log := s.log.WithFields(logrus.Fields{"borrower_id": borrowerID, "agency": agency, "loan_program": loanProgram})
	log.Info("Calculation started: collecting documents")

	// Point-in-time snapshot: documents are read once and never re-fetched
	// within the run, so a concurrent re-extraction cannot make the run
	// internally inconsistent.
	allDocs, err := s.docs.ListByBorrower(ctx, borrowerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	// Deterministic processing order: creation time ascending, id as
	// tiebreak. Required for reproducible warning and trace ordering.
	sort.Slice(allDocs, func(i, j int) bool {
		if !allDocs[i].CreatedAt.Equal(allDocs[j].CreatedAt) {
			return allDocs[i].CreatedAt.Before(allDocs[j].CreatedAt)
		}
		return allDocs[i].ID.String() < allDocs[j].ID.String()
	})

	var successDocs []models.IncomeDocument
	for _, d := range allDocs {
		if d.OCRStatus == models.OCRSuccess {
			successDocs = append(successDocs, d)
		}
	}

	log.WithField("documents", len(successDocs)).Info("Normalizing document fields")
	res := s.normalizer.Normalize(successDocs)

	missing := s.missingInputs(groups, allDocs, successDocs)
	missing = append(missing, res.MissingInputs...)

	log.Info("Aggregating components")
	components := res.Components
	trace := res.Trace
	components, trace = applyOverrides(components, trace, overrides)

	var total float64
	for _, c := range components {
		total += c.EffectiveMonthly()
	}
	result := models.RoundCents(total)

	confidence := s.weightedConfidence(components, res.DocShares, successDocs)

	now := time.Now().UTC()
	calc := &models.IncomeCalculation{
		ID:                  uuid.New(),
		BorrowerID:          borrowerID,
		Agency:              agency,
		LoanProgram:         loanProgram,
		ResultMonthlyIncome: result,
		Confidence:          confidence,
		Warnings:            res.Warnings,
		MissingInputs:       missing,
		Overrides:           overrides,
		Components:          components,
		Trace:               trace,
		CalculationVersion:  CalculationVersion,
		CreatedAt:           now,
	}
	for i := range calc.Components {
		calc.Components[i].CalculationID = calc.ID
	}

	if err := s.calcs.Create(ctx, calc); err != nil {
		return nil, fmt.Errorf("persist calculation: %w", err)
	}

	s.latestCache.Set(borrowerID, calc, gocache.DefaultExpiration)

	log.WithFields(logrus.Fields{
		"calculation_id": calc.ID,
		"result":         calc.ResultMonthlyIncome,
		"confidence":     calc.Confidence,
		"warnings":       len(calc.Warnings),
		"missing_inputs": len(calc.MissingInputs),
	}).Info("Calculation complete")

	if s.notifier != nil {
		go s.notifier.CalculationReady(calc)
	}

	return calc, nil
}

// GetCalculation fetches one stored calculation with components and trace
func (s *Service) GetCalculation(ctx context.Context, id uuid.UUID) (*models.IncomeCalculation, error) {
	return s.calcs.Get(ctx, id)
}

// GetLatestCalculation returns the most recent calculation for a borrower
func (s *Service) GetLatestCalculation(ctx context.Context, borrowerID string) (*models.IncomeCalculation, error) {
	if cached, found := s.latestCache.Get(borrowerID); found {
		return cached.(*models.IncomeCalculation), nil
	}
	calc, err := s.calcs.GetLatest(ctx, borrowerID)
	if err != nil {
		return nil, err
	}
	s.latestCache.Set(borrowerID, calc, gocache.DefaultExpiration)
	return calc, nil
}

// ListCalculations returns a borrower's calculation history, newest first
func (s *Service) ListCalculations(ctx context.Context, borrowerID string) ([]models.IncomeCalculation, error) {
	return s.calcs.ListByBorrower(ctx, borrowerID)
}

// missingInputs evaluates the loan-program requirements table against the
// borrower's documents. Self-employment-only groups apply when the file
// contains any self-employment document regardless of extraction status.
func (s *Service) missingInputs(groups []config.RequirementGroup, allDocs, successDocs []models.IncomeDocument) []string {
	selfEmployed := false
	for _, d := range allDocs {
		if d.DocType == models.DocTypeScheduleC || d.DocType == models.DocTypeK1 {
			selfEmployed = true
			break
		}
	}

	successTypes := make(map[models.DocumentType]bool)
	for _, d := range successDocs {
		successTypes[d.DocType] = true
	}

	var missing []string
	for _, g := range groups {
		if g.WhenSelfEmployed && !selfEmployed {
			continue
		}
		satisfied := false
		for _, t := range g.AnyOf {
			if successTypes[t] {
				satisfied = true
				break
			}
		}
		if !satisfied {
			missing = append(missing, g.Label())
		}
	}
	return missing
}

// weightedConfidence averages per-document extraction confidence weighted by
// each document's contribution to the total. Zero-contribution documents get
// zero weight; no contribution at all means zero confidence.
func (s *Service) weightedConfidence(components []models.IncomeComponent, shares map[string]map[uuid.UUID]float64, docs []models.IncomeDocument) float64 {
	confByDoc := make(map[uuid.UUID]float64, len(docs))
	for _, d := range docs {
		confByDoc[d.ID] = d.Confidence
	}

	var num, den float64
	for _, c := range components {
		docShares, ok := shares[c.Key]
		if !ok {
			continue // manual components carry no extraction confidence
		}
		amount := c.EffectiveMonthly()
		for docID, frac := range docShares {
			w := amount * frac
			num += confByDoc[docID] * w
			den += w
		}
	}
	if den <= 0 {
		return 0
	}
	return num / den
}

// applyOverrides applies manual overrides last: a key matching a computed
// component replaces that component's effective amount (the computed value
// stays visible); an unmatched key adds an ad hoc manual component. Keys are
// processed in sorted order for deterministic output.
func applyOverrides(components []models.IncomeComponent, trace []models.CalculationTraceItem, overrides map[string]float64) ([]models.IncomeComponent, []models.CalculationTraceItem) {
	if len(overrides) == 0 {
		return components, trace
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	byKey := make(map[string]int, len(components))
	for i, c := range components {
		byKey[c.Key] = i
	}

	for _, k := range keys {
		v := overrides[k]
		if idx, ok := byKey[k]; ok {
			amount := v
			components[idx].OverrideAmount = &amount
			continue
		}
		m := 1
		manual := models.IncomeComponent{
			ID:                uuid.New(),
			Type:              models.CompOther,
			Key:               k,
			MonthlyAmount:     models.RoundCents(v),
			CalculationMethod: "manual override",
			MonthsConsidered:  &m,
		}
		components = append(components, manual)
		trace = append(trace, models.CalculationTraceItem{
			SourceForm:  "Manual",
			LineItem:    k,
			Description: "manually entered component",
			Amount:      models.RoundCents(v),
			Sign:        models.SignPlus,
			AllocatedTo: k,
		})
	}
	return components, trace
}
