package models

import "github.com/shopspring/decimal"

// PaymentRequest is the input of the static payload assembler.
// A nil Amount means the payer chooses the value in the banking app.
type PaymentRequest struct {
	BeneficiaryKey  string           `json:"beneficiary_key"`
	BeneficiaryName string           `json:"beneficiary_name"`
	BeneficiaryCity string           `json:"beneficiary_city"`
	ReferenceLabel  string           `json:"reference_label"`
	Description     string           `json:"description"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
}
