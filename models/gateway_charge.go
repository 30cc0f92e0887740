package models

import "github.com/shopspring/decimal"

type ChargeStatus string

const (
	ChargeStatusPending  ChargeStatus = "pending"
	ChargeStatusApproved ChargeStatus = "approved"
	ChargeStatusOther    ChargeStatus = "other"
)

// GatewayCharge is a dynamic charge issued by the payment gateway
type GatewayCharge struct {
	TrackingId string       `json:"tracking_id" bson:"tracking_id"`
	Payload    string       `json:"payload" bson:"payload"`
	Status     ChargeStatus `json:"status" bson:"status"`
}

type ChargeRequest struct {
	Amount         decimal.Decimal
	Description    string
	PayerName      string
	IdempotencyKey string
}
