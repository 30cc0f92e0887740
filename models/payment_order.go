package models

import "time"

// PaymentOrder records one charge attempt of a tipping session
type PaymentOrder struct {
	SessionId      string    `json:"session_id" bson:"session_id"`
	UserId         string    `json:"user_id" bson:"user_id"`
	TrackingId     string    `json:"tracking_id" bson:"tracking_id"`
	IdempotencyKey string    `json:"idempotency_key" bson:"idempotency_key"`
	Amount         float64   `json:"amount" bson:"amount"`
	Currency       string    `json:"currency" bson:"currency"`
	Mode           string    `json:"mode" bson:"mode"`
	Description    string    `json:"description" bson:"description"`
	IsCompleted    bool      `json:"is_completed" bson:"is_completed"`
	Result         string    `json:"result" bson:"result"`
	TimeOpened     time.Time `json:"time_opened" bson:"time_opened"`
	TimeClosed     time.Time `json:"time_closed" bson:"time_closed"`
}
