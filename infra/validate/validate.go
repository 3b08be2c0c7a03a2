package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/monopay/infra/config"
)

var (
	docIDPattern     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/ -]{0,139}$`)
	invoiceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	registerOnce     sync.Once
)

// CustomValidate registers the project's custom tags on the shared validator
func CustomValidate() {
	registerOnce.Do(func() {
		v := config.Validator()
		_ = v.RegisterValidation("doc_id", func(fl validator.FieldLevel) bool {
			return docIDPattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("invoice_id", func(fl validator.FieldLevel) bool {
			return invoiceIDPattern.MatchString(fl.Field().String())
		})
	})
}

// IsInvoiceID reports whether s looks like a provider invoice id
func IsInvoiceID(s string) bool {
	return invoiceIDPattern.MatchString(s)
}

// Messages flattens validator errors into one readable message per field
func Messages(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		if err == nil {
			return ""
		}
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "url":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid URL", fe.Field()))
		case "doc_id", "invoice_id":
			msgs = append(msgs, fmt.Sprintf("%s has invalid format", fe.Field()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
