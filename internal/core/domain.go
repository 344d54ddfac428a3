package core

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Expense TransactionType = "expense"
	Income  TransactionType = "income"

	Card PaymentMethod = "card"
	Cash PaymentMethod = "cash"
	Bank PaymentMethod = "bank"

	SourceManual  = "manual"
	SourceReceipt = "receipt"

	// ErrorStoreName is what the OCR backend reports as store name when it
	// could not read a receipt at all.
	ErrorStoreName = "Error"

	// DefaultCategory is used when the analysis did not suggest one.
	DefaultCategory = "기타지출"

	DateLayout = "2006-01-02"
)

// Categories offered by the transaction form, in display order.
var Categories = []string{"식비", "교통", "주거/통신", "쇼핑", "여가/문화", "의료/건강", "급여", "용돈", "기타수입", "기타지출"}

type (
	TransactionType string
	PaymentMethod   string

	// ReceiptFile is an uploaded receipt image.
	ReceiptFile struct {
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
		Data        []byte `json:"data"`
	}

	// AnalysisResult is what the OCR endpoint extracts from one receipt.
	AnalysisResult struct {
		StoreName     string `json:"storeName"`
		Date          string `json:"date"`   // YYYY-MM-DD or empty
		Amount        string `json:"amount"` // digits, may be comma-grouped
		PaymentMethod string `json:"paymentMethod,omitempty"`
		Category      string `json:"category,omitempty"`
	}

	// TransactionDraft is the working copy behind the transaction form.
	TransactionDraft struct {
		Amount   int64           `json:"amount"`
		Date     string          `json:"date"`
		Type     TransactionType `json:"type"`
		Method   PaymentMethod   `json:"method"`
		Category string          `json:"category"`
		Payee    string          `json:"payee"`
		Memo     string          `json:"memo"`
		Tags     []string        `json:"tags"`
	}

	// Transaction is a saved ledger entry.
	Transaction struct {
		ID int64 `json:"id"`
		TransactionDraft
		Source     string    `json:"source"`
		ReceiptRef string    `json:"receiptRef,omitempty"`
		CreatedAt  time.Time `json:"createdAt"`
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidType   = errors.New("invalid transaction type")
	ErrInvalidMethod = errors.New("invalid payment method")
	ErrEmptyCategory = errors.New("empty category")
	ErrPayeeTooLong  = errors.New("payee too long (max 100 characters)")
	ErrMemoTooLong   = errors.New("memo too long (max 500 characters)")
)

// MediaType is the declared content type, or the sniffed one when the
// declaration is missing or generic.
func (f ReceiptFile) MediaType() string {
	ct := strings.ToLower(strings.TrimSpace(f.ContentType))
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(f.Data)
	}
	return ct
}

// IsImage reports whether the file is an image.
func (f ReceiptFile) IsImage() bool {
	return strings.HasPrefix(f.MediaType(), "image/")
}

// Failed reports whether the analysis should be treated as unusable.
func (r AnalysisResult) Failed() bool {
	return r.StoreName == ErrorStoreName || r.Date == "" || ParseAmount(r.Amount) == 0
}

func (t TransactionType) Valid() bool {
	return t == Expense || t == Income
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case Card, Cash, Bank:
		return true
	}
	return false
}

// ParsePaymentMethod maps the free text printed on a receipt to a method.
// Anything unrecognised is assumed to be a card payment.
func ParsePaymentMethod(text string) PaymentMethod {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "현금"), strings.Contains(t, "cash"):
		return Cash
	case strings.Contains(t, "은행"), strings.Contains(t, "계좌"),
		strings.Contains(t, "bank"), strings.Contains(t, "transfer"):
		return Bank
	default:
		return Card
	}
}

// DraftFromResult builds the form draft shown for an analysed receipt.
func DraftFromResult(r AnalysisResult) TransactionDraft {
	payee := r.StoreName
	if payee == ErrorStoreName {
		payee = ""
	}
	category := strings.TrimSpace(r.Category)
	if category == "" {
		category = DefaultCategory
	}
	return TransactionDraft{
		Amount:   ParseAmount(r.Amount),
		Date:     r.Date,
		Type:     Expense,
		Method:   ParsePaymentMethod(r.PaymentMethod),
		Category: category,
		Payee:    payee,
		Memo:     "",
		Tags:     []string{},
	}
}

func (d TransactionDraft) Validate() error {
	if d.Amount <= 0 {
		return ErrInvalidAmount
	}
	if _, err := time.Parse(DateLayout, d.Date); err != nil {
		return ErrInvalidDate
	}
	if !d.Type.Valid() {
		return ErrInvalidType
	}
	if !d.Method.Valid() {
		return ErrInvalidMethod
	}
	if strings.TrimSpace(d.Category) == "" {
		return ErrEmptyCategory
	}
	if utf8.RuneCountInString(d.Payee) > 100 {
		return ErrPayeeTooLong
	}
	if utf8.RuneCountInString(d.Memo) > 500 {
		return ErrMemoTooLong
	}
	return nil
}

// NormalizeTags trims tags and drops empty and repeated ones, keeping order.
func (d TransactionDraft) NormalizeTags() TransactionDraft {
	seen := make(map[string]struct{}, len(d.Tags))
	tags := make([]string, 0, len(d.Tags))
	for _, tag := range d.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	d.Tags = tags
	return d
}

// OccurredOn returns the parsed transaction date.
func (d TransactionDraft) OccurredOn() (time.Time, error) {
	t, err := time.Parse(DateLayout, d.Date)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// Signed returns the amount with expenses negative, as shown on the calendar.
func (d TransactionDraft) Signed() int64 {
	if d.Type == Income {
		return d.Amount
	}
	return -d.Amount
}
