package internal

import "time"

const (
	PaymentRequested = "payment_requested"
	PaymentConfirmed = "payment_confirmed"
	PaymentAlert     = "payment_alert"
)

type EventHandler interface {
	OnPaymentRequested(event *PaymentEvent)
	OnPaymentConfirmed(event *PaymentEvent)
	OnPaymentAlert(event *PaymentEvent)
}

// PaymentEvent describes a state change of a checkout session
type PaymentEvent struct {
	Type           string    `json:"type" bson:"type"`
	SessionId      string    `json:"session_id" bson:"session_id"`
	BeneficiaryId  string    `json:"beneficiary_id" bson:"beneficiary_id"`
	TrackingId     string    `json:"tracking_id,omitempty" bson:"tracking_id"`
	Amount         float64   `json:"amount" bson:"amount"`
	Mode           string    `json:"mode" bson:"mode"`
	PayerName      string    `json:"payer_name,omitempty" bson:"payer_name"`
	Song           string    `json:"song,omitempty" bson:"song"`
	Artist         string    `json:"artist,omitempty" bson:"artist"`
	Message        string    `json:"message,omitempty" bson:"message"`
	Cover          string    `json:"cover,omitempty" bson:"cover"`
	Description    string    `json:"description,omitempty" bson:"description"`
	IdempotencyKey string    `json:"-" bson:"idempotency_key"`
	Info           string    `json:"info,omitempty" bson:"info"`
	GatewayFailed  bool      `json:"gateway_failed,omitempty" bson:"gateway_failed"`
	Time           time.Time `json:"time" bson:"time"`
}

func (e *PaymentEvent) MessageType() string {
	return e.Type
}
