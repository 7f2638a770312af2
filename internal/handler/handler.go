package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/yousifm93/income-engine/internal/models"
	"github.com/yousifm93/income-engine/internal/service"
	"github.com/yousifm93/income-engine/internal/worksheet"
)

// Handler exposes the income engine over HTTP
type Handler struct {
	svc *service.Service
	log *logrus.Logger
}

// NewHandler initializes the handler layer
func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes registers all API routes on the router
func (h *Handler) Routes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/documents", h.RegisterDocument).Methods("POST")
	api.HandleFunc("/documents/{id}", h.GetDocument).Methods("GET")
	api.HandleFunc("/documents/{id}/reprocess", h.ReprocessDocument).Methods("POST")
	api.HandleFunc("/borrowers/{id}/documents", h.ListDocuments).Methods("GET")
	api.HandleFunc("/calculations", h.Calculate).Methods("POST")
	api.HandleFunc("/calculations/{id}", h.GetCalculation).Methods("GET")
	api.HandleFunc("/calculations/{id}/worksheet", h.Worksheet).Methods("GET")
	api.HandleFunc("/borrowers/{id}/calculations", h.ListCalculations).Methods("GET")
	api.HandleFunc("/borrowers/{id}/calculations/latest", h.LatestCalculation).Methods("GET")
}

type registerDocumentRequest struct {
	BorrowerID  string              `json:"borrower_id"`
	DocType     models.DocumentType `json:"doc_type"`
	FileRef     string              `json:"file_ref"`
	PeriodStart *time.Time          `json:"period_start,omitempty"`
	PeriodEnd   *time.Time          `json:"period_end,omitempty"`
	YearToDate  bool                `json:"year_to_date"`
}

// RegisterDocument records an uploaded document with a pending extraction
func (h *Handler) RegisterDocument(w http.ResponseWriter, r *http.Request) {
	var req registerDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	doc := &models.IncomeDocument{
		BorrowerID:  req.BorrowerID,
		DocType:     req.DocType,
		FileRef:     req.FileRef,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		YearToDate:  req.YearToDate,
	}
	created, err := h.svc.RegisterDocument(r.Context(), doc)
	if err != nil {
		h.writeError(w, err, http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// GetDocument returns a document with its extraction status (UI polls this)
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid document id", http.StatusBadRequest)
		return
	}
	doc, err := h.svc.GetDocument(r.Context(), id)
	if err != nil {
		h.writeError(w, err, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// ReprocessDocument resets a document to pending for re-extraction
func (h *Handler) ReprocessDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid document id", http.StatusBadRequest)
		return
	}
	doc, err := h.svc.ReprocessDocument(r.Context(), id)
	if err != nil {
		h.writeError(w, err, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// ListDocuments returns all documents for a borrower
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.ListDocuments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err, http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []models.IncomeDocument{}
	}
	h.writeJSON(w, http.StatusOK, docs)
}

type calculateRequest struct {
	BorrowerID  string             `json:"borrower_id"`
	Agency      models.Agency      `json:"agency"`
	LoanProgram string             `json:"loan_program"`
	Overrides   map[string]float64 `json:"overrides,omitempty"`
}

// Calculate runs a new qualifying-income calculation for a borrower
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.BorrowerID == "" {
		http.Error(w, "borrower_id is required", http.StatusBadRequest)
		return
	}

	calc, err := h.svc.Calculate(r.Context(), req.BorrowerID, req.Agency, req.LoanProgram, req.Overrides)
	if err != nil {
		h.writeError(w, err, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusCreated, calc)
}

// GetCalculation returns one stored calculation
func (h *Handler) GetCalculation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid calculation id", http.StatusBadRequest)
		return
	}
	calc, err := h.svc.GetCalculation(r.Context(), id)
	if err != nil {
		h.writeError(w, err, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, calc)
}

// Worksheet renders a stored calculation as the standard worksheet XML
func (h *Handler) Worksheet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid calculation id", http.StatusBadRequest)
		return
	}
	calc, err := h.svc.GetCalculation(r.Context(), id)
	if err != nil {
		h.writeError(w, err, http.StatusInternalServerError)
		return
	}
	xml, err := worksheet.Render(calc)
	if err != nil {
		h.writeError(w, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write(xml)
}

// ListCalculations returns a borrower's calculation history
func (h *Handler) ListCalculations(w http.ResponseWriter, r *http.Request) {
	calcs, err := h.svc.ListCalculations(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err, http.StatusInternalServerError)
		return
	}
	if calcs == nil {
		calcs = []models.IncomeCalculation{}
	}
	h.writeJSON(w, http.StatusOK, calcs)
}

// LatestCalculation returns the most recent calculation for a borrower
func (h *Handler) LatestCalculation(w http.ResponseWriter, r *http.Request) {
	calc, err := h.svc.GetLatestCalculation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, calc)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error, fallback int) {
	switch {
	case errors.Is(err, models.ErrDocumentNotFound), errors.Is(err, models.ErrCalcNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrUnknownAgency), errors.Is(err, models.ErrUnknownLoanProgram):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Errorf("Request failed: %v", err)
		http.Error(w, err.Error(), fallback)
	}
}
