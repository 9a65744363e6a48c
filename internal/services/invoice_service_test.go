package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwichpas/backend-project-admin-sub000/internal/mocks"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/backend"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/invoicing"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/s3"
)

func draftInvoice() invoicing.Invoice {
	return invoicing.Invoice{
		DocumentType: invoicing.DocumentInvoice,
		Series:       "F001",
		Currency:     "PEN",
		Issuer:       invoicing.Party{DocumentType: "6", DocumentNumber: "20123456789", Name: "Transportes Andinos SAC"},
		Customer:     invoicing.Party{DocumentType: "6", DocumentNumber: "20600000001", Name: "Cliente SAC"},
		Items:        []invoicing.Item{{Description: "Flete", Quantity: 1, UnitPrice: 100, TaxAmount: 18, Total: 118}},
		Subtotal:     100,
		Tax:          18,
		Total:        118,
	}
}

func newTestInvoiceService(archive s3.ObjectStorageClient) (*InvoiceService, *mocks.MockQuerier, *mocks.MockInvoiceSender) {
	db := new(mocks.MockQuerier)
	sender := new(mocks.MockInvoiceSender)
	svc := NewInvoiceService(db, sender, archive, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC) }
	return svc, db, sender
}

func expectSeries(db *mocks.MockQuerier, next int64) {
	db.On("RPC", mock.Anything, "get_next_series_number",
		map[string]string{"p_company_id": "c1", "p_document_type": "01", "p_series": "F001"}, mock.Anything).
		Run(func(args mock.Arguments) { *args.Get(3).(*int64) = next }).
		Return(nil).Once()
}

func expectInsertEcho(db *mocks.MockQuerier) {
	db.On("Insert", mock.Anything, "electronic_invoices", mock.AnythingOfType("services.InvoiceRecord"), mock.Anything).
		Run(func(args mock.Arguments) {
			*args.Get(3).(*[]InvoiceRecord) = []InvoiceRecord{args.Get(2).(InvoiceRecord)}
		}).
		Return(nil).Once()
}

func TestInvoiceService_IssueAccepted(t *testing.T) {
	archive := new(mocks.MockObjectStorage)
	svc, db, sender := newTestInvoiceService(archive)

	expectSeries(db, 42)
	sender.On("SendInvoice", mock.Anything, mock.MatchedBy(func(inv invoicing.Invoice) bool {
		return inv.Number == 42 && inv.IssueDate == "2024-06-03"
	})).Return(invoicing.Result{
		XML:   "<Invoice/>",
		Hash:  "aGFzaA==",
		Sunat: invoicing.SunatResponse{Success: true, Code: "0", Description: "aceptada"},
	}, nil)
	archive.On("Upload", mock.Anything, "c1/2024-06/F001-00000042.xml", mock.Anything, int64(10), "application/xml").
		Return(s3.Object{Bucket: "invoices", Name: "c1/2024-06/F001-00000042.xml", URL: "https://s3/presigned"}, nil)
	expectInsertEcho(db)

	rec, err := svc.Issue(context.Background(), "c1", draftInvoice())
	require.NoError(t, err)
	assert.Equal(t, "F001-00000042", rec.DocumentID)
	assert.Equal(t, "accepted", rec.Status)
	assert.Equal(t, "aGFzaA==", rec.Hash)
	assert.Equal(t, "https://s3/presigned", rec.XMLURL)
	assert.Equal(t, "20600000001", rec.CustomerDocument)

	db.AssertExpectations(t)
	sender.AssertExpectations(t)
	archive.AssertExpectations(t)
}

func TestInvoiceService_RejectedIsRecorded(t *testing.T) {
	svc, db, sender := newTestInvoiceService(nil)

	inv := draftInvoice()
	inv.Number = 7
	sender.On("SendInvoice", mock.Anything, mock.Anything).Return(invoicing.Result{
		XML:   "<Invoice/>",
		Sunat: invoicing.SunatResponse{Success: false, Code: "2800", Description: "El dato ingresado en el tipo de documento no cumple"},
	}, nil)
	expectInsertEcho(db)

	rec, err := svc.Issue(context.Background(), "c1", inv)
	require.NoError(t, err)
	assert.Equal(t, "rejected", rec.Status)
	assert.Equal(t, "2800", rec.SunatCode)
	assert.Empty(t, rec.XMLURL)
	db.AssertNotCalled(t, "RPC", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestInvoiceService_ArchiveFailureIsNotFatal(t *testing.T) {
	archive := new(mocks.MockObjectStorage)
	svc, db, sender := newTestInvoiceService(archive)

	expectSeries(db, 1)
	sender.On("SendInvoice", mock.Anything, mock.Anything).
		Return(invoicing.Result{XML: "<Invoice/>", Sunat: invoicing.SunatResponse{Success: true}}, nil)
	archive.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(s3.Object{}, errors.New("bucket unreachable"))
	expectInsertEcho(db)

	rec, err := svc.Issue(context.Background(), "c1", draftInvoice())
	require.NoError(t, err)
	assert.Equal(t, "accepted", rec.Status)
	assert.Empty(t, rec.XMLURL)
}

func TestInvoiceService_SeriesErrorStopsBeforeSending(t *testing.T) {
	svc, db, sender := newTestInvoiceService(nil)
	db.On("RPC", mock.Anything, "get_next_series_number", mock.Anything, mock.Anything).
		Return(&backend.Error{Status: 400, Message: "series F001 is not registered"})

	_, err := svc.Issue(context.Background(), "c1", draftInvoice())
	assert.EqualError(t, err, "series F001 is not registered")
	sender.AssertNotCalled(t, "SendInvoice", mock.Anything, mock.Anything)
}

func TestInvoiceService_RecordFailureNamesDocument(t *testing.T) {
	svc, db, sender := newTestInvoiceService(nil)

	expectSeries(db, 3)
	sender.On("SendInvoice", mock.Anything, mock.Anything).
		Return(invoicing.Result{Sunat: invoicing.SunatResponse{Success: true}}, nil)
	db.On("Insert", mock.Anything, "electronic_invoices", mock.Anything, mock.Anything).
		Return(&backend.Error{Status: 409, Message: "duplicate key value"})

	_, err := svc.Issue(context.Background(), "c1", draftInvoice())
	assert.EqualError(t, err, "F001-00000003 was submitted but could not be recorded: duplicate key value")
}

func TestInvoiceService_NextNumberRejectsZero(t *testing.T) {
	svc, db, _ := newTestInvoiceService(nil)
	expectSeries(db, 0)

	_, err := svc.NextNumber(context.Background(), "c1", "01", "F001")
	assert.Error(t, err)
}
