package metrics

import (
	"pixtip/internal"
	"pixtip/metrics/counters"
)

// Observer counts payment events; implements EventHandler
type Observer struct{}

func NewObserver() *Observer {
	return &Observer{}
}

func (o *Observer) OnPaymentRequested(event *internal.PaymentEvent) {
	counters.CountPaymentRequest(event.Mode)
}

func (o *Observer) OnPaymentConfirmed(event *internal.PaymentEvent) {
	counters.CountConfirmation(event.Mode, event.BeneficiaryId, event.Amount)
}

func (o *Observer) OnPaymentAlert(event *internal.PaymentEvent) {
	if event.GatewayFailed {
		counters.CountFallback(event.Info)
	}
}
