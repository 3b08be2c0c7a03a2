package validate

import (
	"errors"
	"testing"

	"github.com/mstgnz/monopay/infra/config"
	"github.com/stretchr/testify/assert"
)

type sample struct {
	Reference string `json:"reference" validate:"required,doc_id"`
	InvoiceID string `json:"invoiceId" validate:"omitempty,invoice_id"`
	Site      string `json:"site" validate:"omitempty,url"`
}

func TestCustomValidate(t *testing.T) {
	CustomValidate()
	// second call must not panic or re-register
	CustomValidate()

	tests := []struct {
		name  string
		input sample
		valid bool
	}{
		{"valid reference", sample{Reference: "PR-001"}, true},
		{"reference with series", sample{Reference: "ACC-PRQ-2026-00001"}, true},
		{"missing reference", sample{}, false},
		{"reference with quote", sample{Reference: `PR"001`}, false},
		{"valid invoice id", sample{Reference: "PR-001", InvoiceID: "p2_9ZgpZVsl3"}, true},
		{"invoice id with slash", sample{Reference: "PR-001", InvoiceID: "a/b"}, false},
		{"invalid url", sample{Reference: "PR-001", Site: "not a url"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := config.Validator().Struct(tt.input)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestMessages(t *testing.T) {
	CustomValidate()

	err := config.Validator().Struct(sample{Site: "nope"})
	msg := Messages(err)
	assert.Contains(t, msg, "Reference is required")
	assert.Contains(t, msg, "Site must be a valid URL")

	assert.Equal(t, "", Messages(nil))
	assert.Equal(t, "boom", Messages(errors.New("boom")))
}

func TestIsInvoiceID(t *testing.T) {
	assert.True(t, IsInvoiceID("2305046jUBEj8WfyaBdB"))
	assert.False(t, IsInvoiceID(""))
	assert.False(t, IsInvoiceID("../etc"))
}
