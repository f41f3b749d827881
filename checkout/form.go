package checkout

import (
	"strings"
	"unicode"

	"github.com/itsneelabh/storefront/core"
)

// Form is the customer data entered at checkout.
type Form struct {
	Name            string `json:"name" form:"name"`
	Phone           string `json:"phone" form:"phone"`
	Street          string `json:"street" form:"street"`
	Number          string `json:"number" form:"number"`
	District        string `json:"district" form:"district"`
	PaymentMethodID string `json:"paymentMethodId" form:"paymentMethodId"`
}

// Normalized trims every field and reduces the phone to its digits.
func (f Form) Normalized() Form {
	return Form{
		Name:            strings.TrimSpace(f.Name),
		Phone:           CleanPhone(f.Phone),
		Street:          strings.TrimSpace(f.Street),
		Number:          strings.TrimSpace(f.Number),
		District:        strings.TrimSpace(f.District),
		PaymentMethodID: strings.TrimSpace(f.PaymentMethodID),
	}
}

// Field names used in validation errors.
const (
	FieldName     = "name"
	FieldPhone    = "phone"
	FieldStreet   = "street"
	FieldDistrict = "district"
)

// Validation messages shown next to the offending field.
const (
	MsgNameRequired     = "Informe o nome."
	MsgPhoneInvalid     = "Telefone inválido. Use (99) 9 9999 9999."
	MsgStreetRequired   = "Informe a rua/avenida."
	MsgDistrictRequired = "Selecione o bairro."
)

const phoneDigits = 11

// FieldError is one rejected form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors lists every rejected field in form order. It matches
// core.ErrValidation with errors.Is.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, fe := range v {
		msgs[i] = fe.Message
	}
	return strings.Join(msgs, " ")
}

// Unwrap lets errors.Is(err, core.ErrValidation) succeed.
func (v ValidationErrors) Unwrap() error {
	return core.ErrValidation
}

// First is the message a single-line form shows.
func (v ValidationErrors) First() string {
	if len(v) == 0 {
		return ""
	}
	return v[0].Message
}

// Has reports whether field was rejected.
func (v ValidationErrors) Has(field string) bool {
	for _, fe := range v {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// ValidateCustomer checks a form locally, before any remote call: name,
// an 11-digit phone, street and district are required. The number is
// optional.
func ValidateCustomer(f Form) error {
	f = f.Normalized()
	var errs ValidationErrors
	if f.Name == "" {
		errs = append(errs, FieldError{Field: FieldName, Message: MsgNameRequired})
	}
	if !ValidPhone(f.Phone) {
		errs = append(errs, FieldError{Field: FieldPhone, Message: MsgPhoneInvalid})
	}
	if f.Street == "" {
		errs = append(errs, FieldError{Field: FieldStreet, Message: MsgStreetRequired})
	}
	if f.District == "" {
		errs = append(errs, FieldError{Field: FieldDistrict, Message: MsgDistrictRequired})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// CleanPhone keeps the digits of s, at most 11 of them.
func CleanPhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if b.Len() == phoneDigits {
			break
		}
		if r <= unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidPhone reports whether digits is exactly 11 ASCII digits.
func ValidPhone(digits string) bool {
	if len(digits) != phoneDigits {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// MaskPhone formats partial input as the user types, building up to
// "(99) 9 9999 9999".
func MaskPhone(s string) string {
	v := CleanPhone(s)
	if v != "" {
		v = "(" + v
	}
	if len(v) > 3 {
		v = v[:3] + ") " + v[3:]
	}
	if len(v) > 6 {
		v = v[:6] + " " + v[6:]
	}
	if len(v) > 11 {
		v = v[:11] + " " + v[11:]
	}
	if len(v) > 18 {
		v = v[:18]
	}
	return v
}
