package domain

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// NewOrder is a customer order submission.
type NewOrder struct {
	Firstname   string         `json:"firstname" validate:"required,max=100"`
	Lastname    string         `json:"lastname" validate:"required,max=100"`
	Phonenumber string         `json:"phonenumber" validate:"required,e164"`
	Address     string         `json:"address" validate:"required,max=100"`
	Items       []NewOrderItem `json:"products" validate:"required,min=1,dive"`
}

// NewOrderItem is a product and quantity of a submission.
type NewOrderItem struct {
	ProductID int64 `json:"product" validate:"gt=0"`
	Quantity  int   `json:"quantity" validate:"gte=1"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the submission and returns a *ValidationError keyed by the
// JSON name of each offending top-level field.
func (o NewOrder) Validate() error {
	err := validate.Struct(o)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		verr.Add(topLevelField(fe.Namespace()), validationMessage(fe))
	}
	return verr
}

// topLevelField maps "NewOrder.products[0].quantity" to "products".
func topLevelField(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	if i := strings.IndexAny(rest, ".["); i >= 0 {
		return rest[:i]
	}
	return rest
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "min":
		return "This list may not be empty."
	case "max":
		return "Ensure this field has no more than " + fe.Param() + " characters."
	case "e164":
		return "Enter a valid phone number."
	case "gte":
		return "Ensure quantity is greater than or equal to " + fe.Param() + "."
	case "gt":
		return "Invalid product id."
	default:
		return "Invalid value."
	}
}

// NormalizePhone strips formatting from a Russian phone number and rewrites a
// leading 8 as the +7 country code.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 11 && digits[0] == '8':
		return "+7" + digits[1:]
	case len(digits) == 11 && digits[0] == '7':
		return "+" + digits
	}
	return digits
}
