package models

import "time"

// Beneficiary is the artist receiving tips, stored in the users collection
type Beneficiary struct {
	UserId          string    `json:"user_id" bson:"user_id"`
	DisplayName     string    `json:"display_name" bson:"display_name"`
	PixKey          string    `json:"pix_key" bson:"pix_key"`
	BeneficiaryName string    `json:"beneficiary_name" bson:"beneficiary_name"`
	City            string    `json:"city" bson:"city"`
	GatewayToken    string    `json:"-" bson:"mercadopago_access_token"`
	PixValues       []float64 `json:"pix_values" bson:"pix_values"`
	DateRegistered  time.Time `json:"date_registered" bson:"date_registered"`
}

var defaultPixValues = []float64{10, 20, 30}

// HasPixKey reports whether a static payload can be produced for the beneficiary
func (b *Beneficiary) HasPixKey() bool {
	return b.PixKey != "" && b.BeneficiaryName != ""
}

func (b *Beneficiary) HasGateway() bool {
	return b.GatewayToken != ""
}

// Values returns the preset tip amounts offered to payers
func (b *Beneficiary) Values() []float64 {
	if len(b.PixValues) == 3 {
		return b.PixValues
	}
	return defaultPixValues
}
