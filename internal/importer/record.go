package importer

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/codfulfillment-backend/internal/products"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/phone"
)

// ImportItem names a product by id, sku or name.
type ImportItem struct {
	Product   string `json:"product" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
	UnitPrice string `json:"unit_price,omitempty"`
}

// ImportRecord is one externally sourced order. Amounts are decimal strings.
type ImportRecord struct {
	CustomerName string       `json:"customer_name" validate:"required"`
	Phone        string       `json:"phone" validate:"required"`
	Address      string       `json:"address" validate:"required"`
	City         string       `json:"city,omitempty"`
	Items        []ImportItem `json:"items" validate:"required,min=1,dive"`
	TotalAmount  string       `json:"total_amount" validate:"required"`
	CODAmount    string       `json:"cod_amount,omitempty"`
	OrderDate    string       `json:"order_date,omitempty"`
	Status       string       `json:"status,omitempty"`
	Rep          string       `json:"rep,omitempty"`
	Agent        string       `json:"agent,omitempty"`
	Notes        string       `json:"notes,omitempty"`
}

// RecordError reports why one record was not imported.
type RecordError struct {
	Index  int               `json:"index"`
	Record ImportRecord      `json:"record"`
	Error  pkgerrors.Failure `json:"error"`
}

// candidate is a record that parsed cleanly.
type candidate struct {
	index       int
	record      ImportRecord
	status      enums.OrderStatus
	orderDate   time.Time
	totalCents  int64
	codCents    *int64
	prices      []*int64
	phoneSuffix string
	address     string
	fingerprint string
}

var (
	validate    = newValidator()
	dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "02/01/2006"}
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

func prepare(index int, record ImportRecord, now time.Time) (candidate, error) {
	if err := validate.Struct(record); err != nil {
		details := map[string]string{}
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				details[fe.Namespace()] = fe.Tag()
			}
		}
		return candidate{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid import record").WithDetails(details)
	}
	c := candidate{index: index, record: record, status: enums.OrderStatusPendingConfirmation, orderDate: now.UTC()}

	if raw := strings.TrimSpace(record.Status); raw != "" {
		status, err := enums.ParseOrderStatus(strings.ToLower(raw))
		if err != nil {
			return candidate{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		c.status = status
	}
	total, err := parseCents(record.TotalAmount, "total_amount")
	if err != nil {
		return candidate{}, err
	}
	c.totalCents = *total
	if c.codCents, err = parseCents(record.CODAmount, "cod_amount"); err != nil {
		return candidate{}, err
	}
	for i, item := range record.Items {
		price, err := parseCents(item.UnitPrice, fmt.Sprintf("items[%d].unit_price", i))
		if err != nil {
			return candidate{}, err
		}
		c.prices = append(c.prices, price)
	}
	if raw := strings.TrimSpace(record.OrderDate); raw != "" {
		if c.orderDate, err = parseDate(raw); err != nil {
			return candidate{}, err
		}
	}

	c.phoneSuffix = phone.Suffix(record.Phone)
	if c.phoneSuffix == "" {
		return candidate{}, pkgerrors.New(pkgerrors.CodeValidation, "phone has no digits")
	}
	c.address = NormalizeAddress(record.Address)
	c.fingerprint = Fingerprint(record.Phone, c.totalCents, record.Address, c.orderDate)
	return c, nil
}

// parseCents reads an optional non-negative decimal amount.
func parseCents(raw, field string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount").WithDetails(map[string]any{"field": field})
	}
	if amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative").WithDetails(map[string]any{"field": field})
	}
	cents := products.ToCents(amount)
	return &cents, nil
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if at, err := time.Parse(layout, raw); err == nil {
			return at.UTC(), nil
		}
	}
	return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid order date").WithDetails(map[string]any{"order_date": raw})
}

// Fingerprint identifies a record by phone suffix, total, normalized address
// and UTC calendar day.
func Fingerprint(rawPhone string, totalCents int64, address string, orderDate time.Time) string {
	return strings.Join([]string{
		phone.Suffix(rawPhone),
		fmt.Sprintf("%d", totalCents),
		NormalizeAddress(address),
		orderDate.UTC().Format("2006-01-02"),
	}, "|")
}

// NormalizeAddress lowercases, drops punctuation and collapses whitespace.
func NormalizeAddress(address string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', '.', '#', ';', ':', '-', '/', '\'', '"':
			return ' '
		}
		return r
	}, strings.ToLower(address))
	return strings.Join(strings.Fields(cleaned), " ")
}

// lookup resolves a display name through a name -> user id map, ignoring
// case and surrounding whitespace. Unknown names resolve to nil.
type lookup map[string]uuid.UUID

func newLookup(src map[string]uuid.UUID) lookup {
	out := make(lookup, len(src))
	for name, id := range src {
		out[normalizeName(name)] = id
	}
	return out
}

func (l lookup) resolve(name string) *uuid.UUID {
	key := normalizeName(name)
	if key == "" {
		return nil
	}
	id, ok := l[key]
	if !ok || id == uuid.Nil {
		return nil
	}
	return &id
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
