package provider

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// currencyCodes maps accepted currencies to their ISO-4217 numeric code
var currencyCodes = map[string]int{
	"UAH": 980,
	"USD": 840,
	"EUR": 978,
}

// supportedCurrencies keeps the order used in error messages
var supportedCurrencies = []string{"UAH", "USD", "EUR"}

var (
	minimumAmount = decimal.NewFromInt(1)
	minorFactor   = decimal.NewFromInt(100)
	maxMinor      = decimal.NewFromInt(math.MaxInt64)
)

// SupportedCurrencies returns the accepted currency codes
func SupportedCurrencies() []string {
	return append([]string(nil), supportedCurrencies...)
}

// CurrencyCode resolves an alphabetic currency to its numeric code
func CurrencyCode(currency string) (int, error) {
	code, ok := currencyCodes[currency]
	if !ok {
		return 0, fmt.Errorf("%w, %s is not supported. Possible values: %v", ErrUnsupportedCurrency, currency, supportedCurrencies)
	}
	return code, nil
}

// ValidateAmount rejects amounts at or below the minimum, in major units
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(minimumAmount) {
		return fmt.Errorf("%w. Minimum is 1, current: %s", ErrInvalidAmount, amount.String())
	}
	return nil
}

// ToMinorUnits converts a major-unit amount to the provider's integer units
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	minor := amount.Mul(minorFactor).Round(0)
	if minor.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("%w. Amount %s overflows minor units", ErrInvalidAmount, amount.String())
	}
	return minor.IntPart(), nil
}
