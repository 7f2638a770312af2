package dispatch

import (
	"context"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yousifm93/income-engine/internal/models"
	"github.com/yousifm93/income-engine/internal/service"
)

// FieldExtractor is the OCR boundary the dispatcher drives
type FieldExtractor interface {
	Extract(ctx context.Context, docType models.DocumentType, data []byte, filename string) (models.DocumentFields, float64, error)
}

// Dispatcher polls pending documents and runs extraction on them, advancing
// each through pending -> processing -> success | failed. A failed document
// stays in place; a manual reprocess re-enters it into this loop.
type Dispatcher struct {
	docs      service.DocumentStore
	extractor FieldExtractor
	dir       string
	batchSize int
	cron      *cron.Cron
	log       *logrus.Logger
}

// NewDispatcher initializes an extraction dispatcher
func NewDispatcher(docs service.DocumentStore, extractor FieldExtractor, dir string, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		docs:      docs,
		extractor: extractor,
		dir:       dir,
		batchSize: 10,
		log:       log,
	}
}

// Start schedules the polling loop with the given cron spec (e.g. "@every 15s")
func (d *Dispatcher) Start(spec string) error {
	d.cron = cron.New()
	if _, err := d.cron.AddFunc(spec, func() {
		d.Run(context.Background())
	}); err != nil {
		return err
	}
	d.cron.Start()
	d.log.Infof("Extraction dispatcher started (%s)", spec)
	return nil
}

// Stop halts the polling loop
func (d *Dispatcher) Stop() {
	if d.cron != nil {
		d.cron.Stop()
	}
}

// Run processes one batch of pending documents
func (d *Dispatcher) Run(ctx context.Context) {
	pending, err := d.docs.ListByStatus(ctx, models.OCRPending, d.batchSize)
	if err != nil {
		d.log.Errorf("Failed to list pending documents: %v", err)
		return
	}

	for _, doc := range pending {
		d.process(ctx, doc)
	}
}

func (d *Dispatcher) process(ctx context.Context, doc models.IncomeDocument) {
	log := d.log.WithFields(logrus.Fields{"document_id": doc.ID, "doc_type": doc.DocType})

	if err := d.docs.UpdateStatus(ctx, doc.ID, models.OCRProcessing, ""); err != nil {
		log.Errorf("Failed to mark document processing: %v", err)
		return
	}

	path := doc.FileRef
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.dir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Errorf("Failed to read document file: %v", err)
		d.fail(ctx, doc, "could not read document file")
		return
	}

	fields, confidence, err := d.extractor.Extract(ctx, doc.DocType, data, doc.FileRef)
	if err != nil {
		log.Errorf("Extraction failed: %v", err)
		d.fail(ctx, doc, err.Error())
		return
	}

	if err := d.docs.SaveExtraction(ctx, doc.ID, fields, confidence); err != nil {
		log.Errorf("Failed to save extraction: %v", err)
		return
	}
	log.WithField("confidence", confidence).Info("Document extracted")
}

func (d *Dispatcher) fail(ctx context.Context, doc models.IncomeDocument, detail string) {
	if err := d.docs.UpdateStatus(ctx, doc.ID, models.OCRFailed, detail); err != nil {
		d.log.Errorf("Failed to mark document failed: %v", err)
	}
}
