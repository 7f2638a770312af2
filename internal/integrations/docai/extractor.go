package docai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/yousifm93/income-engine/internal/config"
	"github.com/yousifm93/income-engine/internal/models"
)

// Extractor converts a raw income document into the typed field set for its
// declared type, using an LLM vision/OCR backend. The calculation core treats
// it as opaque: it only sees the field contract and the failed status.
type Extractor struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	log     *logrus.Logger
}

// NewExtractor initializes the extraction client
func NewExtractor(cfg *config.Config, log *logrus.Logger) (*Extractor, error) {
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required for field extraction")
	}

	clientConfig := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAIBaseURL
	}

	return &Extractor{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.OpenAIModel,
		timeout: 60 * time.Second,
		log:     log,
	}, nil
}

type extractionPayload struct {
	Fields     json.RawMessage `json:"fields"`
	Confidence float64         `json:"confidence"`
}

// Extract produces the typed field map and an extraction confidence for one
// document. PDFs with embedded text skip the vision call entirely.
func (e *Extractor) Extract(ctx context.Context, docType models.DocumentType, data []byte, filename string) (models.DocumentFields, float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var userMessage openai.ChatCompletionMessage
	isPDF := strings.HasSuffix(strings.ToLower(filename), ".pdf")

	if isPDF {
		if text := pdfPlainText(data); len(strings.TrimSpace(text)) >= 40 {
			userMessage = openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Document text:\n\n%s", text),
			}
		}
	}
	if userMessage.Role == "" {
		// Scanned PDF or image: send the raw bytes for vision OCR
		mime := "image/png"
		if isPDF {
			mime = "application/pdf"
		} else if strings.HasSuffix(strings.ToLower(filename), ".jpg") || strings.HasSuffix(strings.ToLower(filename), ".jpeg") {
			mime = "image/jpeg"
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
		userMessage = openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: "Extract the fields from this document image."},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
			},
		}
	}

	req := openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt(docType),
			},
			userMessage,
		},
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return models.DocumentFields{}, 0, fmt.Errorf("extraction API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.DocumentFields{}, 0, fmt.Errorf("extraction returned no choices")
	}

	var payload extractionPayload
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return models.DocumentFields{}, 0, fmt.Errorf("parse extraction response: %w", err)
	}

	fields, err := models.ParseFields(docType, payload.Fields)
	if err != nil {
		return models.DocumentFields{}, 0, err
	}

	confidence := payload.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	e.log.WithFields(logrus.Fields{
		"doc_type":   docType,
		"confidence": confidence,
		"tokens":     resp.Usage.TotalTokens,
	}).Debug("Extraction complete")

	return fields, confidence, nil
}

// pdfPlainText pulls embedded text out of a PDF; empty string means the PDF
// is scanned (or unreadable) and needs vision OCR
func pdfPlainText(data []byte) string {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	textReader, err := reader.GetPlainText()
	if err != nil {
		return ""
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(textReader); err != nil {
		return ""
	}
	return buf.String()
}

func systemPrompt(docType models.DocumentType) string {
	var schema string
	switch docType {
	case models.DocTypePayStub:
		schema = `"employee_name", "employer_name", "pay_period_start", "pay_period_end",
"pay_frequency" (one of: weekly, biweekly, semimonthly, monthly), "hourly_rate",
"hours_current", "gross_current", "ot_current", "bonus_current", "commission_current",
"hours_ytd", "gross_ytd"`
	case models.DocTypeW2:
		schema = `"employer_name", "wages" (Box 1), "fed_tax_withheld" (Box 2), "ss_wages" (Box 3), "tax_year"`
	case models.DocTypeScheduleC:
		schema = `"business_name", "gross_receipts", "net_profit" (Line 31), "depreciation" (Line 13),
"home_office_deduction" (Line 30), "tax_year"`
	case models.DocTypeK1:
		schema = `"entity_name", "entity_type" (one of: s_corp, partnership), "ordinary_income" (Box 1),
"allocation_pct" (ownership percentage, 0-100), "tax_year"`
	case models.DocTypeVOE:
		schema = `"employer_name", "verified_monthly_income", "employment_start"`
	default:
		schema = `any labeled values as string key/value pairs`
	}

	return fmt.Sprintf(`You extract structured fields from mortgage income documents.
The document is declared as type %q. Respond with a single JSON object:
{"fields": {...}, "confidence": <0..1>}
where "fields" contains only these keys (omit any you cannot read): %s.
Numeric values must be plain numbers without currency symbols or thousands
separators. "confidence" reflects how legible and complete the document is.
Do not guess values that are not visible.`, docType, schema)
}
