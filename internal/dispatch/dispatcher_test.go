package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yousifm93/income-engine/internal/models"
)

type memDocStore struct {
	docs map[uuid.UUID]*models.IncomeDocument
}

func newMemDocStore(docs ...*models.IncomeDocument) *memDocStore {
	s := &memDocStore{docs: make(map[uuid.UUID]*models.IncomeDocument)}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *memDocStore) Create(ctx context.Context, doc *models.IncomeDocument) error {
	s.docs[doc.ID] = doc
	return nil
}

func (s *memDocStore) Get(ctx context.Context, id uuid.UUID) (*models.IncomeDocument, error) {
	d, ok := s.docs[id]
	if !ok {
		return nil, models.ErrDocumentNotFound
	}
	return d, nil
}

func (s *memDocStore) ListByBorrower(ctx context.Context, borrowerID string) ([]models.IncomeDocument, error) {
	return nil, nil
}

func (s *memDocStore) ListByStatus(ctx context.Context, status models.OCRStatus, limit int) ([]models.IncomeDocument, error) {
	var out []models.IncomeDocument
	for _, d := range s.docs {
		if d.OCRStatus == status && len(out) < limit {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *memDocStore) UpdateStatus(ctx context.Context, id uuid.UUID, status models.OCRStatus, errorDetail string) error {
	d, ok := s.docs[id]
	if !ok {
		return models.ErrDocumentNotFound
	}
	d.OCRStatus = status
	d.ErrorDetail = errorDetail
	return nil
}

func (s *memDocStore) SaveExtraction(ctx context.Context, id uuid.UUID, fields models.DocumentFields, confidence float64) error {
	d, ok := s.docs[id]
	if !ok {
		return models.ErrDocumentNotFound
	}
	d.Fields = fields
	d.Confidence = confidence
	d.OCRStatus = models.OCRSuccess
	return nil
}

type stubExtractor struct {
	fields     models.DocumentFields
	confidence float64
	err        error
}

func (e *stubExtractor) Extract(ctx context.Context, docType models.DocumentType, data []byte, filename string) (models.DocumentFields, float64, error) {
	if e.err != nil {
		return models.DocumentFields{}, 0, e.err
	}
	return e.fields, e.confidence, nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestRunExtractsPendingDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stub.pdf"), []byte("pdf-bytes"), 0o644))

	doc := &models.IncomeDocument{
		ID:        uuid.New(),
		DocType:   models.DocTypePayStub,
		FileRef:   "stub.pdf",
		OCRStatus: models.OCRPending,
	}
	store := newMemDocStore(doc)
	extractor := &stubExtractor{
		fields:     models.DocumentFields{PayStub: &models.PayStubFields{GrossCurrent: 2500, PayFrequency: models.FreqBiweekly}},
		confidence: 0.92,
	}

	d := NewDispatcher(store, extractor, dir, testLogger())
	d.Run(context.Background())

	got := store.docs[doc.ID]
	assert.Equal(t, models.OCRSuccess, got.OCRStatus)
	assert.Equal(t, 0.92, got.Confidence)
	require.NotNil(t, got.Fields.PayStub)
	assert.Equal(t, 2500.0, got.Fields.PayStub.GrossCurrent)
}

func TestRunMarksFailedOnExtractionError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.pdf"), []byte("pdf-bytes"), 0o644))

	doc := &models.IncomeDocument{
		ID:        uuid.New(),
		DocType:   models.DocTypeW2,
		FileRef:   "bad.pdf",
		OCRStatus: models.OCRPending,
	}
	store := newMemDocStore(doc)
	extractor := &stubExtractor{err: errors.New("illegible scan")}

	d := NewDispatcher(store, extractor, dir, testLogger())
	d.Run(context.Background())

	got := store.docs[doc.ID]
	assert.Equal(t, models.OCRFailed, got.OCRStatus)
	assert.Contains(t, got.ErrorDetail, "illegible")
}

func TestRunMarksFailedOnMissingFile(t *testing.T) {
	doc := &models.IncomeDocument{
		ID:        uuid.New(),
		DocType:   models.DocTypeW2,
		FileRef:   "nowhere.pdf",
		OCRStatus: models.OCRPending,
	}
	store := newMemDocStore(doc)

	d := NewDispatcher(store, &stubExtractor{}, t.TempDir(), testLogger())
	d.Run(context.Background())

	assert.Equal(t, models.OCRFailed, store.docs[doc.ID].OCRStatus)
}
