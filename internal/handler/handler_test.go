package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yousifm93/income-engine/internal/config"
	"github.com/yousifm93/income-engine/internal/models"
	"github.com/yousifm93/income-engine/internal/service"
)

type memDocStore struct {
	docs []models.IncomeDocument
}

func (s *memDocStore) Create(ctx context.Context, doc *models.IncomeDocument) error {
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	s.docs = append(s.docs, *doc)
	return nil
}

func (s *memDocStore) Get(ctx context.Context, id uuid.UUID) (*models.IncomeDocument, error) {
	for i := range s.docs {
		if s.docs[i].ID == id {
			d := s.docs[i]
			return &d, nil
		}
	}
	return nil, models.ErrDocumentNotFound
}

func (s *memDocStore) ListByBorrower(ctx context.Context, borrowerID string) ([]models.IncomeDocument, error) {
	var out []models.IncomeDocument
	for _, d := range s.docs {
		if d.BorrowerID == borrowerID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memDocStore) ListByStatus(ctx context.Context, status models.OCRStatus, limit int) ([]models.IncomeDocument, error) {
	return nil, nil
}

func (s *memDocStore) UpdateStatus(ctx context.Context, id uuid.UUID, status models.OCRStatus, errorDetail string) error {
	for i := range s.docs {
		if s.docs[i].ID == id {
			s.docs[i].OCRStatus = status
			s.docs[i].ErrorDetail = errorDetail
			return nil
		}
	}
	return models.ErrDocumentNotFound
}

func (s *memDocStore) SaveExtraction(ctx context.Context, id uuid.UUID, fields models.DocumentFields, confidence float64) error {
	return nil
}

type memCalcStore struct {
	calcs []*models.IncomeCalculation
}

func (s *memCalcStore) Create(ctx context.Context, calc *models.IncomeCalculation) error {
	s.calcs = append(s.calcs, calc)
	return nil
}

func (s *memCalcStore) Get(ctx context.Context, id uuid.UUID) (*models.IncomeCalculation, error) {
	for _, c := range s.calcs {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, models.ErrCalcNotFound
}

func (s *memCalcStore) GetLatest(ctx context.Context, borrowerID string) (*models.IncomeCalculation, error) {
	for i := len(s.calcs) - 1; i >= 0; i-- {
		if s.calcs[i].BorrowerID == borrowerID {
			return s.calcs[i], nil
		}
	}
	return nil, models.ErrCalcNotFound
}

func (s *memCalcStore) ListByBorrower(ctx context.Context, borrowerID string) ([]models.IncomeCalculation, error) {
	var out []models.IncomeCalculation
	for _, c := range s.calcs {
		if c.BorrowerID == borrowerID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func testRouter(docs *memDocStore, calcs *memCalcStore) *mux.Router {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	svc := service.NewService(docs, calcs, config.DefaultRequirements(), nil, log)
	h := NewHandler(svc, log)
	r := mux.NewRouter()
	h.Routes(r)
	return r
}

func TestRegisterDocument(t *testing.T) {
	router := testRouter(&memDocStore{}, &memCalcStore{})

	body := `{"borrower_id":"b-1","doc_type":"pay_stub","file_ref":"stub.pdf"}`
	req := httptest.NewRequest("POST", "/api/v1/documents", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var doc models.IncomeDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, models.OCRPending, doc.OCRStatus)
	assert.NotEqual(t, uuid.Nil, doc.ID)
}

func TestRegisterDocumentUnknownType(t *testing.T) {
	router := testRouter(&memDocStore{}, &memCalcStore{})

	body := `{"borrower_id":"b-1","doc_type":"bank_statement","file_ref":"x.pdf"}`
	req := httptest.NewRequest("POST", "/api/v1/documents", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalculateEndpoint(t *testing.T) {
	docs := &memDocStore{docs: []models.IncomeDocument{{
		ID:         uuid.New(),
		BorrowerID: "b-1",
		DocType:    models.DocTypePayStub,
		OCRStatus:  models.OCRSuccess,
		Confidence: 0.9,
		Fields: models.DocumentFields{PayStub: &models.PayStubFields{
			GrossCurrent: 2000,
			PayFrequency: models.FreqBiweekly,
		}},
		CreatedAt: time.Now(),
	}}}
	calcs := &memCalcStore{}
	router := testRouter(docs, calcs)

	body := `{"borrower_id":"b-1","agency":"fannie","loan_program":"conventional"}`
	req := httptest.NewRequest("POST", "/api/v1/calculations", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var calc models.IncomeCalculation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &calc))
	assert.Equal(t, 4333.33, calc.ResultMonthlyIncome)
	require.Len(t, calcs.calcs, 1)
}

func TestCalculateEndpointUnknownProgram(t *testing.T) {
	router := testRouter(&memDocStore{}, &memCalcStore{})

	body := `{"borrower_id":"b-1","agency":"fannie","loan_program":"balloon"}`
	req := httptest.NewRequest("POST", "/api/v1/calculations", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLatestCalculationNotFound(t *testing.T) {
	router := testRouter(&memDocStore{}, &memCalcStore{})

	req := httptest.NewRequest("GET", "/api/v1/borrowers/b-404/calculations/latest", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorksheetEndpoint(t *testing.T) {
	docs := &memDocStore{docs: []models.IncomeDocument{{
		ID:         uuid.New(),
		BorrowerID: "b-1",
		DocType:    models.DocTypePayStub,
		OCRStatus:  models.OCRSuccess,
		Confidence: 0.9,
		Fields: models.DocumentFields{PayStub: &models.PayStubFields{
			GrossCurrent: 5000,
			PayFrequency: models.FreqMonthly,
		}},
		CreatedAt: time.Now(),
	}}}
	calcs := &memCalcStore{}
	router := testRouter(docs, calcs)

	body := `{"borrower_id":"b-1","agency":"fannie","loan_program":"conventional"}`
	req := httptest.NewRequest("POST", "/api/v1/calculations", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var calc models.IncomeCalculation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &calc))

	req = httptest.NewRequest("GET", "/api/v1/calculations/"+calc.ID.String()+"/worksheet", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<IncomeWorksheet")
}
