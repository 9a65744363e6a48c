package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/backend"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/invoicing"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/s3"
)

const (
	invoicesTable = "electronic_invoices"
	seriesRPC     = "get_next_series_number"
)

// InvoiceSender submits a document to the invoicing API.
type InvoiceSender interface {
	SendInvoice(ctx context.Context, inv invoicing.Invoice) (invoicing.Result, error)
}

// InvoiceRecord is one row of electronic_invoices.
type InvoiceRecord struct {
	ID               string    `json:"id" validate:"required"`
	CompanyID        string    `json:"company_id"`
	DocumentType     string    `json:"document_type"`
	Series           string    `json:"series"`
	Number           int64     `json:"number"`
	DocumentID       string    `json:"document_id"`
	IssueDate        string    `json:"issue_date"`
	CustomerDocument string    `json:"customer_document"`
	CustomerName     string    `json:"customer_name"`
	Currency         string    `json:"currency"`
	Total            float64   `json:"total"`
	Status           string    `json:"status" validate:"oneof=accepted rejected"`
	SunatCode        string    `json:"sunat_code"`
	SunatDescription string    `json:"sunat_description"`
	Hash             string    `json:"hash"`
	XMLObject        string    `json:"xml_object,omitempty"`
	XMLURL           string    `json:"xml_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// InvoiceService numbers, submits, archives and records electronic invoices.
type InvoiceService struct {
	db      backend.Querier
	sender  InvoiceSender
	archive s3.ObjectStorageClient
	now     func() time.Time
	logger  zerolog.Logger
}

// NewInvoiceService creates the service. archive may be nil, signed XML is
// then only kept in the invoicing provider.
func NewInvoiceService(db backend.Querier, sender InvoiceSender, archive s3.ObjectStorageClient, logger zerolog.Logger) *InvoiceService {
	return &InvoiceService{
		db:      db,
		sender:  sender,
		archive: archive,
		now:     time.Now,
		logger:  logger.With().Str("service", "invoicing").Logger(),
	}
}

// NextNumber reserves the next correlative of a series.
func (s *InvoiceService) NextNumber(ctx context.Context, companyID, documentType, series string) (int64, error) {
	var next int64
	err := s.db.RPC(ctx, seriesRPC, map[string]string{
		"p_company_id":    companyID,
		"p_document_type": documentType,
		"p_series":        series,
	}, &next)
	if err != nil {
		return 0, err
	}
	if next <= 0 {
		return 0, fmt.Errorf("%s returned invalid number %d", seriesRPC, next)
	}
	return next, nil
}

// Issue submits inv for companyID. A zero Number is reserved first. A
// document rejected by SUNAT is still recorded, with status rejected.
func (s *InvoiceService) Issue(ctx context.Context, companyID string, inv invoicing.Invoice) (InvoiceRecord, error) {
	if companyID == "" {
		return InvoiceRecord{}, errors.New("company id is required")
	}
	if inv.IssueDate == "" {
		inv.IssueDate = s.now().Format(time.DateOnly)
	}
	if inv.Number == 0 {
		next, err := s.NextNumber(ctx, companyID, inv.DocumentType, inv.Series)
		if err != nil {
			return InvoiceRecord{}, err
		}
		inv.Number = next
	}

	res, err := s.sender.SendInvoice(ctx, inv)
	if err != nil {
		return InvoiceRecord{}, err
	}

	rec := InvoiceRecord{
		ID:               uuid.NewString(),
		CompanyID:        companyID,
		DocumentType:     inv.DocumentType,
		Series:           inv.Series,
		Number:           inv.Number,
		DocumentID:       inv.DocumentID(),
		IssueDate:        inv.IssueDate,
		CustomerDocument: inv.Customer.DocumentNumber,
		CustomerName:     inv.Customer.Name,
		Currency:         inv.Currency,
		Total:            inv.Total,
		Status:           "rejected",
		SunatCode:        res.Sunat.Code,
		SunatDescription: res.Sunat.Description,
		Hash:             res.Hash,
		CreatedAt:        s.now().UTC(),
	}
	if res.Accepted() {
		rec.Status = "accepted"
	}

	if s.archive != nil && res.XML != "" {
		name := fmt.Sprintf("%s/%s/%s.xml", companyID, inv.IssueDate[:7], rec.DocumentID)
		obj, err := s.archive.Upload(ctx, name, strings.NewReader(res.XML), int64(len(res.XML)), "application/xml")
		if err != nil {
			// already submitted, the record matters more than the copy
			s.logger.Warn().Err(err).Str("document", rec.DocumentID).Msg("Failed to archive signed XML")
		} else {
			rec.XMLObject, rec.XMLURL = obj.Name, obj.URL
		}
	}

	stored, err := backend.InsertRow[InvoiceRecord](ctx, s.db, invoicesTable, rec)
	if err != nil {
		return InvoiceRecord{}, fmt.Errorf("%s was submitted but could not be recorded: %w", rec.DocumentID, err)
	}

	s.logger.Info().
		Str("document", stored.DocumentID).
		Str("status", stored.Status).
		Str("sunat_code", stored.SunatCode).
		Msg("Invoice issued")
	return stored, nil
}

// History returns the latest recorded invoices of a company.
func (s *InvoiceService) History(ctx context.Context, companyID string, limit int) ([]InvoiceRecord, error) {
	return backend.SelectRows[InvoiceRecord](ctx, s.db, invoicesTable, backend.Query{
		Filters: []backend.Filter{backend.Eq("company_id", companyID)},
		Order:   "created_at.desc",
		Limit:   limit,
	})
}
