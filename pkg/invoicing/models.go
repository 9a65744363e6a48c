package invoicing

import "fmt"

// Document types of the SUNAT catalog 01.
const (
	DocumentInvoice    = "01" // factura
	DocumentReceipt    = "03" // boleta
	DocumentCreditNote = "07"
	DocumentDebitNote  = "08"
)

// Party is the issuer or the customer of a document.
type Party struct {
	DocumentType   string `json:"document_type" validate:"required"` // catalog 06, "6" is RUC
	DocumentNumber string `json:"document_number" validate:"required"`
	Name           string `json:"name" validate:"required"`
	Address        string `json:"address,omitempty"`
}

type Item struct {
	Code        string  `json:"code,omitempty"`
	Description string  `json:"description" validate:"required"`
	Unit        string  `json:"unit"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
	TaxAmount   float64 `json:"tax_amount" validate:"gte=0"`
	Total       float64 `json:"total" validate:"gte=0"`
}

// Invoice is the payload sent for signing and submission. Amounts are taken
// as given; no tax rule is applied here.
type Invoice struct {
	DocumentType string  `json:"document_type" validate:"required,oneof=01 03 07 08"`
	Series       string  `json:"series" validate:"required,len=4"`
	Number       int64   `json:"number" validate:"gt=0"`
	IssueDate    string  `json:"issue_date" validate:"required,datetime=2006-01-02"`
	Currency     string  `json:"currency" validate:"required,len=3"`
	Issuer       Party   `json:"issuer"`
	Customer     Party   `json:"customer"`
	Items        []Item  `json:"items" validate:"required,min=1,dive"`
	Subtotal     float64 `json:"subtotal" validate:"gte=0"`
	Tax          float64 `json:"tax" validate:"gte=0"`
	Total        float64 `json:"total" validate:"gte=0"`
}

// DocumentID is the printed identifier, e.g. F001-00000042.
func (i Invoice) DocumentID() string {
	return fmt.Sprintf("%s-%08d", i.Series, i.Number)
}

// SunatResponse is the tax authority's verdict as relayed by the API.
type SunatResponse struct {
	Success     bool     `json:"success"`
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Notes       []string `json:"notes,omitempty"`
	CDR         string   `json:"cdr_zip,omitempty"` // base64
}

// Result of sending one document.
type Result struct {
	XML   string        `json:"xml"`
	Hash  string        `json:"hash"`
	Sunat SunatResponse `json:"sunat_response"`
}

// Accepted reports whether SUNAT accepted the document.
func (r Result) Accepted() bool { return r.Sunat.Success }
