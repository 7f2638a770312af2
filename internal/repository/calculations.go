package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/yousifm93/income-engine/internal/models"
)

// CalculationRepository persists calculation runs. Historical rows are never
// updated; recalculation appends a new row.
type CalculationRepository struct {
	db *sql.DB
}

// NewCalculationRepository initializes a new calculation repository
func NewCalculationRepository(db *sql.DB) *CalculationRepository {
	return &CalculationRepository{db: db}
}

// Create persists a calculation with its components and trace in one
// transaction; either all three land or none do
func (r *CalculationRepository) Create(ctx context.Context, calc *models.IncomeCalculation) error {
	warnings, err := json.Marshal(orEmptyWarnings(calc.Warnings))
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	missing, err := json.Marshal(orEmptyStrings(calc.MissingInputs))
	if err != nil {
		return fmt.Errorf("marshal missing inputs: %w", err)
	}
	overrides, err := json.Marshal(orEmptyOverrides(calc.Overrides))
	if err != nil {
		return fmt.Errorf("marshal overrides: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO income.calculations
			(id, borrower_id, agency, loan_program, result_monthly_income, confidence,
			 warnings, missing_inputs, overrides, calculation_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = tx.ExecContext(ctx, query,
		calc.ID, calc.BorrowerID, calc.Agency, calc.LoanProgram, calc.ResultMonthlyIncome,
		calc.Confidence, warnings, missing, overrides, calc.CalculationVersion, calc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert calculation: %w", err)
	}

	compQuery := `
		INSERT INTO income.components
			(id, calculation_id, position, type, key, monthly_amount, override_amount,
			 calculation_method, months_considered, notes, source_document_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	for i, c := range calc.Components {
		sources, err := json.Marshal(c.SourceDocumentIDs)
		if err != nil {
			return fmt.Errorf("marshal source document ids: %w", err)
		}
		_, err = tx.ExecContext(ctx, compQuery,
			c.ID, calc.ID, i, c.Type, c.Key, c.MonthlyAmount, c.OverrideAmount,
			c.CalculationMethod, c.MonthsConsidered, c.Notes, sources)
		if err != nil {
			return fmt.Errorf("failed to insert component %s: %w", c.Key, err)
		}
	}

	traceQuery := `
		INSERT INTO income.trace_items
			(calculation_id, position, year, source_form, line_item, description,
			 amount, sign, allocated_to, allocation_pct)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for i, t := range calc.Trace {
		_, err = tx.ExecContext(ctx, traceQuery,
			calc.ID, i, t.Year, t.SourceForm, t.LineItem, t.Description,
			t.Amount, t.Sign, t.AllocatedTo, t.AllocationPct)
		if err != nil {
			return fmt.Errorf("failed to insert trace item %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit calculation: %w", err)
	}
	return nil
}

// Get retrieves a calculation with its components and trace
func (r *CalculationRepository) Get(ctx context.Context, id uuid.UUID) (*models.IncomeCalculation, error) {
	query := selectCalculations + ` WHERE id = $1`
	calc, err := scanCalculation(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrCalcNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calculation: %w", err)
	}
	if err := r.loadChildren(ctx, calc); err != nil {
		return nil, err
	}
	return calc, nil
}

// GetLatest retrieves the most recent calculation for a borrower
func (r *CalculationRepository) GetLatest(ctx context.Context, borrowerID string) (*models.IncomeCalculation, error) {
	query := selectCalculations + ` WHERE borrower_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	calc, err := scanCalculation(r.db.QueryRowContext(ctx, query, borrowerID))
	if err == sql.ErrNoRows {
		return nil, models.ErrCalcNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest calculation: %w", err)
	}
	if err := r.loadChildren(ctx, calc); err != nil {
		return nil, err
	}
	return calc, nil
}

// ListByBorrower retrieves a borrower's calculation history, newest first
func (r *CalculationRepository) ListByBorrower(ctx context.Context, borrowerID string) ([]models.IncomeCalculation, error) {
	query := selectCalculations + ` WHERE borrower_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, borrowerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query calculations: %w", err)
	}
	defer rows.Close()

	var calcs []models.IncomeCalculation
	for rows.Next() {
		calc, err := scanCalculation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calculation: %w", err)
		}
		calcs = append(calcs, *calc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	for i := range calcs {
		if err := r.loadChildren(ctx, &calcs[i]); err != nil {
			return nil, err
		}
	}
	return calcs, nil
}

const selectCalculations = `
	SELECT id, borrower_id, agency, loan_program, result_monthly_income, confidence,
	       warnings, missing_inputs, overrides, calculation_version, created_at
	FROM income.calculations`

func scanCalculation(row rowScanner) (*models.IncomeCalculation, error) {
	calc := &models.IncomeCalculation{}
	var warnings, missing, overrides []byte
	err := row.Scan(&calc.ID, &calc.BorrowerID, &calc.Agency, &calc.LoanProgram,
		&calc.ResultMonthlyIncome, &calc.Confidence, &warnings, &missing, &overrides,
		&calc.CalculationVersion, &calc.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(warnings, &calc.Warnings); err != nil {
		return nil, fmt.Errorf("unmarshal warnings: %w", err)
	}
	if err := json.Unmarshal(missing, &calc.MissingInputs); err != nil {
		return nil, fmt.Errorf("unmarshal missing inputs: %w", err)
	}
	if err := json.Unmarshal(overrides, &calc.Overrides); err != nil {
		return nil, fmt.Errorf("unmarshal overrides: %w", err)
	}
	return calc, nil
}

func (r *CalculationRepository) loadChildren(ctx context.Context, calc *models.IncomeCalculation) error {
	compQuery := `
		SELECT id, calculation_id, type, key, monthly_amount, override_amount,
		       calculation_method, months_considered, notes, source_document_ids
		FROM income.components
		WHERE calculation_id = $1
		ORDER BY position`
	rows, err := r.db.QueryContext(ctx, compQuery, calc.ID)
	if err != nil {
		return fmt.Errorf("failed to query components: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.IncomeComponent
		var override sql.NullFloat64
		var months sql.NullInt64
		var sources []byte
		err := rows.Scan(&c.ID, &c.CalculationID, &c.Type, &c.Key, &c.MonthlyAmount,
			&override, &c.CalculationMethod, &months, &c.Notes, &sources)
		if err != nil {
			return fmt.Errorf("failed to scan component: %w", err)
		}
		if override.Valid {
			v := override.Float64
			c.OverrideAmount = &v
		}
		if months.Valid {
			m := int(months.Int64)
			c.MonthsConsidered = &m
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &c.SourceDocumentIDs); err != nil {
				return fmt.Errorf("unmarshal source document ids: %w", err)
			}
		}
		calc.Components = append(calc.Components, c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration: %w", err)
	}

	traceQuery := `
		SELECT year, source_form, line_item, description, amount, sign, allocated_to, allocation_pct
		FROM income.trace_items
		WHERE calculation_id = $1
		ORDER BY position`
	traceRows, err := r.db.QueryContext(ctx, traceQuery, calc.ID)
	if err != nil {
		return fmt.Errorf("failed to query trace items: %w", err)
	}
	defer traceRows.Close()

	for traceRows.Next() {
		var t models.CalculationTraceItem
		var pct sql.NullFloat64
		err := traceRows.Scan(&t.Year, &t.SourceForm, &t.LineItem, &t.Description,
			&t.Amount, &t.Sign, &t.AllocatedTo, &pct)
		if err != nil {
			return fmt.Errorf("failed to scan trace item: %w", err)
		}
		if pct.Valid {
			v := pct.Float64
			t.AllocationPct = &v
		}
		calc.Trace = append(calc.Trace, t)
	}
	if err := traceRows.Err(); err != nil {
		return fmt.Errorf("rows iteration: %w", err)
	}
	return nil
}

func orEmptyWarnings(w []models.Warning) []models.Warning {
	if w == nil {
		return []models.Warning{}
	}
	return w
}

func orEmptyStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyOverrides(o map[string]float64) map[string]float64 {
	if o == nil {
		return map[string]float64{}
	}
	return o
}
