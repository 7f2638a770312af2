package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/yousifm93/income-engine/internal/models"
)

// DocumentRepository provides database operations for income documents
type DocumentRepository struct {
	db *sql.DB
}

// NewDocumentRepository initializes a new document repository
func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a new document in pending state
func (r *DocumentRepository) Create(ctx context.Context, doc *models.IncomeDocument) error {
	fields, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	query := `
		INSERT INTO income.documents
			(id, borrower_id, doc_type, file_ref, ocr_status, fields, confidence,
			 period_start, period_end, year_to_date, error_detail, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query,
		doc.ID, doc.BorrowerID, doc.DocType, doc.FileRef, doc.OCRStatus, fields,
		doc.Confidence, doc.PeriodStart, doc.PeriodEnd, doc.YearToDate, doc.ErrorDetail).
		Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// Get retrieves a document by id
func (r *DocumentRepository) Get(ctx context.Context, id uuid.UUID) (*models.IncomeDocument, error) {
	query := selectDocuments + ` WHERE id = $1`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListByBorrower retrieves all documents for a borrower, oldest first
func (r *DocumentRepository) ListByBorrower(ctx context.Context, borrowerID string) ([]models.IncomeDocument, error) {
	query := selectDocuments + ` WHERE borrower_id = $1 ORDER BY created_at, id`
	return r.queryDocuments(ctx, query, borrowerID)
}

// ListByStatus retrieves up to limit documents in the given extraction state
func (r *DocumentRepository) ListByStatus(ctx context.Context, status models.OCRStatus, limit int) ([]models.IncomeDocument, error) {
	query := selectDocuments + ` WHERE ocr_status = $1 ORDER BY created_at, id LIMIT $2`
	return r.queryDocuments(ctx, query, status, limit)
}

// UpdateStatus advances the extraction lifecycle of a document
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.OCRStatus, errorDetail string) error {
	query := `
		UPDATE income.documents
		SET ocr_status = $2, error_detail = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, errorDetail)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return models.ErrDocumentNotFound
	}
	return nil
}

// SaveExtraction writes the extracted field set and confidence onto a
// document and marks it success
func (r *DocumentRepository) SaveExtraction(ctx context.Context, id uuid.UUID, fields models.DocumentFields, confidence float64) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	query := `
		UPDATE income.documents
		SET ocr_status = $2, fields = $3, confidence = $4, error_detail = '', updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, models.OCRSuccess, raw, confidence)
	if err != nil {
		return fmt.Errorf("failed to save extraction: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return models.ErrDocumentNotFound
	}
	return nil
}

const selectDocuments = `
	SELECT id, borrower_id, doc_type, file_ref, ocr_status, fields, confidence,
	       period_start, period_end, year_to_date, error_detail, created_at, updated_at
	FROM income.documents`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*models.IncomeDocument, error) {
	doc := &models.IncomeDocument{}
	var fields []byte
	err := row.Scan(&doc.ID, &doc.BorrowerID, &doc.DocType, &doc.FileRef, &doc.OCRStatus,
		&fields, &doc.Confidence, &doc.PeriodStart, &doc.PeriodEnd, &doc.YearToDate,
		&doc.ErrorDetail, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &doc.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal fields: %w", err)
		}
	}
	return doc, nil
}

func (r *DocumentRepository) queryDocuments(ctx context.Context, query string, args ...interface{}) ([]models.IncomeDocument, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.IncomeDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return docs, nil
}
