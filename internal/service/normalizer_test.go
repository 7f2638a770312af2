package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yousifm93/income-engine/internal/models"
)

func testNormalizer() *Normalizer {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return NewNormalizer(log)
}

func payStubDoc(f models.PayStubFields) models.IncomeDocument {
	return models.IncomeDocument{
		ID:         uuid.New(),
		BorrowerID: "b-1",
		DocType:    models.DocTypePayStub,
		OCRStatus:  models.OCRSuccess,
		Confidence: 0.9,
		Fields:     models.DocumentFields{PayStub: &f},
		CreatedAt:  time.Now(),
	}
}

func w2Doc(employer string, wages float64, year int) models.IncomeDocument {
	return models.IncomeDocument{
		ID:         uuid.New(),
		BorrowerID: "b-1",
		DocType:    models.DocTypeW2,
		OCRStatus:  models.OCRSuccess,
		Confidence: 0.9,
		Fields: models.DocumentFields{W2: &models.W2Fields{
			EmployerName: employer,
			Wages:        wages,
			TaxYear:      year,
		}},
		CreatedAt: time.Now(),
	}
}

// assertTraceReconciles verifies the audit-trail invariant: the signed sum of
// trace amounts allocated to a component, divided by its months considered,
// reproduces the monthly amount to the cent.
func assertTraceReconciles(t *testing.T, res *NormalizeResult, comp models.IncomeComponent) {
	t.Helper()
	require.NotNil(t, comp.MonthsConsidered)

	var sum float64
	var items int
	for _, item := range res.Trace {
		if item.AllocatedTo == comp.Key {
			sum += item.SignedAmount()
			items++
		}
	}
	require.Greater(t, items, 0, "component %s has no trace items", comp.Key)
	assert.Equal(t, comp.MonthlyAmount, models.RoundCents(sum/float64(*comp.MonthsConsidered)))
}

func TestPayStubBiweeklyAnnualization(t *testing.T) {
	res := testNormalizer().Normalize([]models.IncomeDocument{
		payStubDoc(models.PayStubFields{GrossCurrent: 2000, PayFrequency: models.FreqBiweekly}),
	})

	require.Len(t, res.Components, 1)
	comp := res.Components[0]
	assert.Equal(t, models.CompBaseSalary, comp.Type)
	assert.Equal(t, 4333.33, comp.MonthlyAmount) // 2000 * 26 / 12
	assert.Empty(t, res.Warnings)
	assertTraceReconciles(t, res, comp)
}

func TestPayStubNoDoubleCounting(t *testing.T) {
	res := testNormalizer().Normalize([]models.IncomeDocument{
		payStubDoc(models.PayStubFields{
			GrossCurrent:    5000,
			OvertimeCurrent: 500,
			BonusCurrent:    200,
			PayFrequency:    models.FreqMonthly,
		}),
	})

	require.Len(t, res.Components, 3)

	byType := make(map[models.ComponentType]float64)
	var total float64
	for _, c := range res.Components {
		byType[c.Type] = c.MonthlyAmount
		total += c.MonthlyAmount
	}
	assert.Equal(t, 4300.0, byType[models.CompBaseSalary])
	assert.Equal(t, 500.0, byType[models.CompOvertime])
	assert.Equal(t, 200.0, byType[models.CompBonus])
	assert.Equal(t, 5000.0, total)
}

func TestPayStubHourlyDerived(t *testing.T) {
	res := testNormalizer().Normalize([]models.IncomeDocument{
		payStubDoc(models.PayStubFields{
			HourlyRate:   50,
			HoursCurrent: 80,
			PayFrequency: models.FreqBiweekly,
		}),
	})

	require.Len(t, res.Components, 1)
	comp := res.Components[0]
	assert.Equal(t, models.CompBaseHourly, comp.Type)
	assert.Equal(t, 8666.67, comp.MonthlyAmount) // 50*80 * 26 / 12
}

func TestPayStubMissingFrequencyAssumesMonthlyWithWarning(t *testing.T) {
	res := testNormalizer().Normalize([]models.IncomeDocument{
		payStubDoc(models.PayStubFields{GrossCurrent: 3000}),
	})

	require.Len(t, res.Components, 1)
	assert.Equal(t, 3000.0, res.Components[0].MonthlyAmount)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, models.WarnFrequencyAssumed, res.Warnings[0].Code)
}

func TestPayStubMissingGrossYieldsWarningOnly(t *testing.T) {
	res := testNormalizer().Normalize([]models.IncomeDocument{
		payStubDoc(models.PayStubFields{PayFrequency: models.FreqWeekly}),
	})

	assert.Empty(t, res.Components)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, models.WarnMissingFields, res.Warnings[0].Code)
	assert.Equal(t, "gross_current", res.Warnings[0].Field)
}

func TestW2MultiYearAverage(t *testing.T) {
	res := testNormalizer().Normalize([]models.IncomeDocument{
		w2Doc("Acme Corp", 60000, 2023),
		w2Doc("Acme Corp", 66000, 2024),
	})

	require.Len(t, res.Components, 1)
	comp := res.Components[0]
	assert.Equal(t, models.CompW2Income, comp.Type)
	assert.Equal(t, 5250.0, comp.MonthlyAmount) // (60000+66000)/2/12
	require.NotNil(t, comp.MonthsConsidered)
	assert.Equal(t, 24, *comp.MonthsConsidered)
	assert.Contains(t, comp.CalculationMethod, "2023, 2024")
	assert.Len(t, res.Trace, 2)
	assertTraceReconciles(t, res, comp)
}

func TestW2DifferentEmployersNotAveraged(t *testing.T) {
	res := testNormalizer().Normalize([]models.IncomeDocument{
		w2Doc("Acme Corp", 60000, 2024),
		w2Doc("Globex Inc", 24000, 2024),
	})

	require.Len(t, res.Components, 2)
	assert.Equal(t, 5000.0, res.Components[0].MonthlyAmount)
	assert.Equal(t, 2000.0, res.Components[1].MonthlyAmount)
}

func TestScheduleCAddBacks(t *testing.T) {
	doc := models.IncomeDocument{
		ID:        uuid.New(),
		DocType:   models.DocTypeScheduleC,
		OCRStatus: models.OCRSuccess,
		Fields: models.DocumentFields{ScheduleC: &models.ScheduleCFields{
			BusinessName:        "Sole Prop LLC",
			NetProfit:           48000,
			Depreciation:        6000,
			HomeOfficeDeduction: 1200,
			TaxYear:             2024,
		}},
	}
	res := testNormalizer().Normalize([]models.IncomeDocument{doc})

	require.Len(t, res.Components, 1)
	comp := res.Components[0]
	assert.Equal(t, models.CompSelfEmployment, comp.Type)
	assert.Equal(t, 4600.0, comp.MonthlyAmount) // (48000+6000+1200)/12
	assert.Len(t, res.Trace, 3)                 // net profit + two add-backs
	assertTraceReconciles(t, res, comp)
}

func TestScheduleCNegativeIncomeProducesNoComponent(t *testing.T) {
	doc := models.IncomeDocument{
		ID:        uuid.New(),
		DocType:   models.DocTypeScheduleC,
		OCRStatus: models.OCRSuccess,
		Fields: models.DocumentFields{ScheduleC: &models.ScheduleCFields{
			BusinessName: "Lossy LLC",
			NetProfit:    -5000,
			TaxYear:      2024,
		}},
	}
	res := testNormalizer().Normalize([]models.IncomeDocument{doc})

	assert.Empty(t, res.Components)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, models.WarnNegativeIncome, res.Warnings[0].Code)
}

func TestK1Allocation(t *testing.T) {
	doc := models.IncomeDocument{
		ID:        uuid.New(),
		DocType:   models.DocTypeK1,
		OCRStatus: models.OCRSuccess,
		Fields: models.DocumentFields{K1: &models.K1Fields{
			EntityName:     "Partners LP",
			EntityType:     models.K1Partnership,
			OrdinaryIncome: 100000,
			AllocationPct:  50,
			TaxYear:        2024,
		}},
	}
	res := testNormalizer().Normalize([]models.IncomeDocument{doc})

	require.Len(t, res.Components, 1)
	comp := res.Components[0]
	assert.Equal(t, models.CompPartnershipK1, comp.Type)
	assert.Equal(t, 4166.67, comp.MonthlyAmount) // 100000 * 0.5 / 12

	require.Len(t, res.Trace, 1)
	require.NotNil(t, res.Trace[0].AllocationPct)
	assert.Equal(t, 50.0, *res.Trace[0].AllocationPct)
	assertTraceReconciles(t, res, comp)
}

func TestVOEPassThrough(t *testing.T) {
	doc := models.IncomeDocument{
		ID:        uuid.New(),
		DocType:   models.DocTypeVOE,
		OCRStatus: models.OCRSuccess,
		Fields: models.DocumentFields{VOE: &models.VOEFields{
			EmployerName:          "Acme Corp",
			VerifiedMonthlyIncome: 6500,
		}},
	}
	res := testNormalizer().Normalize([]models.IncomeDocument{doc})

	require.Len(t, res.Components, 1)
	assert.Equal(t, models.CompVOEVerified, res.Components[0].Type)
	assert.Equal(t, 6500.0, res.Components[0].MonthlyAmount)
	assert.Empty(t, res.MissingInputs)
}

func TestVOEWithoutStatedIncomeIsMissingInput(t *testing.T) {
	doc := models.IncomeDocument{
		ID:        uuid.New(),
		DocType:   models.DocTypeVOE,
		OCRStatus: models.OCRSuccess,
		Fields:    models.DocumentFields{VOE: &models.VOEFields{EmployerName: "Acme Corp"}},
	}
	res := testNormalizer().Normalize([]models.IncomeDocument{doc})

	assert.Empty(t, res.Components)
	require.Len(t, res.MissingInputs, 1)
	assert.Contains(t, res.MissingInputs[0], "voe")
}

func TestUnsupportedTypeWarnsWithoutFailing(t *testing.T) {
	doc := models.IncomeDocument{
		ID:        uuid.New(),
		DocType:   models.DocType1099,
		OCRStatus: models.OCRSuccess,
	}
	res := testNormalizer().Normalize([]models.IncomeDocument{doc})

	assert.Empty(t, res.Components)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, models.WarnManualEntryNeeded, res.Warnings[0].Code)
	assert.Contains(t, res.Warnings[0].Message, "1099")
}

func TestNormalizationIsIdempotent(t *testing.T) {
	docs := []models.IncomeDocument{
		payStubDoc(models.PayStubFields{GrossCurrent: 2000, PayFrequency: models.FreqBiweekly}),
		w2Doc("Acme Corp", 60000, 2023),
		w2Doc("Acme Corp", 66000, 2024),
	}

	n := testNormalizer()
	first := n.Normalize(docs)
	second := n.Normalize(docs)

	require.Equal(t, len(first.Components), len(second.Components))
	for i := range first.Components {
		assert.Equal(t, first.Components[i].Type, second.Components[i].Type)
		assert.Equal(t, first.Components[i].Key, second.Components[i].Key)
		assert.Equal(t, first.Components[i].MonthlyAmount, second.Components[i].MonthlyAmount)
	}
	assert.Equal(t, first.Trace, second.Trace)
}
