package binder

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	dateRE    = regexp.MustCompile(`^\d{4}-(0[0-9]|1[0-2])-(0[0-9]|1[0-9]|2[0-9]|3[0-1])$`)
	moneyRE   = regexp.MustCompile(`^\d{1,2}(\.\d{1,2})?$`)
	barcodeRE = regexp.MustCompile(`^[0-9]{1,250}$`)
)

// dateValidator ensures the value matches the format YYYY-MM-DD or the empty
// string. Add `ne=` to the tag when the empty string should be rejected.
func dateValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return dateRE.MatchString(value)
}

// moneyValidator accepts a non-negative amount with at most two integer and
// two fractional digits, so 0 through 99.99.
func moneyValidator(fl validator.FieldLevel) bool {
	return moneyRE.MatchString(fl.Field().String())
}

// barcodeValidator accepts scanned or typed numeric codes.
func barcodeValidator(fl validator.FieldLevel) bool {
	return barcodeRE.MatchString(fl.Field().String())
}
