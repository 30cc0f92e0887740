package pix

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"pixtip/models"
)

const (
	tagPayloadFormat      = "00"
	tagMerchantAccount    = "26"
	tagMerchantCategory   = "52"
	tagCurrency           = "53"
	tagAmount             = "54"
	tagCountry            = "58"
	tagMerchantName       = "59"
	tagMerchantCity       = "60"
	tagAdditionalData     = "62"
	tagAccountGui         = "00"
	tagAccountKey         = "01"
	tagAccountDescription = "02"
	tagReferenceLabel     = "05"

	PayloadFormat    = "01"
	GUI              = "BR.GOV.BCB.PIX"
	MerchantCategory = "0000"
	CurrencyBRL      = "986"
	CountryCode      = "BR"

	// DefaultReferenceLabel is used when no reference is given
	DefaultReferenceLabel = "***"
	MaxReferenceLabel     = 25
)

var (
	ErrMissingField   = errors.New("required field is empty")
	ErrFieldTooLong   = errors.New("field exceeds 99 characters")
	ErrReferenceLabel = errors.New("reference label exceeds 25 characters")
	ErrNegativeAmount = errors.New("amount must not be negative")
)

// Build assembles the static payment payload with the trailing checksum.
// The result is deterministic for identical requests.
func Build(req *models.PaymentRequest) (string, error) {
	if req == nil {
		return "", fmt.Errorf("payment request: %w", ErrMissingField)
	}
	if req.BeneficiaryKey == "" {
		return "", fmt.Errorf("beneficiary key: %w", ErrMissingField)
	}
	if req.BeneficiaryName == "" {
		return "", fmt.Errorf("beneficiary name: %w", ErrMissingField)
	}

	label := req.ReferenceLabel
	if label == "" {
		label = DefaultReferenceLabel
	}
	if utf8.RuneCountInString(label) > MaxReferenceLabel {
		return "", ErrReferenceLabel
	}

	amount := ""
	if req.Amount != nil {
		if req.Amount.IsNegative() {
			return "", ErrNegativeAmount
		}
		amount = req.Amount.StringFixed(2)
	}

	if err := checkLength("beneficiary key", req.BeneficiaryKey); err != nil {
		return "", err
	}
	if err := checkLength("description", req.Description); err != nil {
		return "", err
	}
	if err := checkLength("beneficiary name", req.BeneficiaryName); err != nil {
		return "", err
	}
	if err := checkLength("beneficiary city", req.BeneficiaryCity); err != nil {
		return "", err
	}
	if err := checkLength("amount", amount); err != nil {
		return "", err
	}

	account := composite(
		EncodeField(tagAccountGui, GUI),
		EncodeField(tagAccountKey, req.BeneficiaryKey),
		optional(tagAccountDescription, req.Description),
	)
	if err := checkLength("merchant account information", account); err != nil {
		return "", err
	}

	payload := composite(
		EncodeField(tagPayloadFormat, PayloadFormat),
		EncodeField(tagMerchantAccount, account),
		EncodeField(tagMerchantCategory, MerchantCategory),
		EncodeField(tagCurrency, CurrencyBRL),
		optional(tagAmount, amount),
		EncodeField(tagCountry, CountryCode),
		EncodeField(tagMerchantName, req.BeneficiaryName),
		EncodeField(tagMerchantCity, req.BeneficiaryCity),
		EncodeField(tagAdditionalData, EncodeField(tagReferenceLabel, label)),
	)

	return payload + crcPlaceholder + Checksum(payload), nil
}

// optional omits the tag entirely when there is no value
func optional(tag, value string) string {
	if value == "" {
		return ""
	}
	return EncodeField(tag, value)
}

func checkLength(name, value string) error {
	if !fits(value) {
		return fmt.Errorf("%s: %w", name, ErrFieldTooLong)
	}
	return nil
}
