package counters

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "checkout",
	Name:      "sessions_active",
	Help:      "Number of open tipping sessions",
})

var chargeCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "checkout",
	Name:      "payment_requests_total",
	Help:      "Total number of issued payment codes by confirmation mode.",
}, []string{"mode"})

var fallbackCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gateway",
	Name:      "fallbacks_total",
	Help:      "Charges that fell back to the static payload, by cause.",
}, []string{"cause"})

var pollCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gateway",
	Name:      "polls_total",
	Help:      "Status polls by result.",
}, []string{"result"})

var confirmationCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "checkout",
	Name:      "confirmations_total",
	Help:      "Confirmed tips by confirmation mode.",
}, []string{"mode"})

var amountCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "checkout",
	Name:      "confirmed_amount_total",
	Help:      "Sum of confirmed tips in BRL.",
}, []string{"beneficiary_id"})

func ObserveSessions(count int) {
	sessionsGauge.Set(float64(count))
}

func CountPaymentRequest(mode string) {
	if len(mode) == 0 {
		return
	}
	chargeCounter.With(prometheus.Labels{"mode": mode}).Inc()
}

func CountFallback(cause string) {
	if len(cause) == 0 {
		return
	}
	fallbackCounter.With(prometheus.Labels{"cause": cause}).Inc()
}

func CountPoll(result string) {
	if len(result) == 0 {
		return
	}
	pollCounter.With(prometheus.Labels{"result": result}).Inc()
}

func CountConfirmation(mode, beneficiaryId string, amount float64) {
	if len(mode) == 0 {
		return
	}
	confirmationCounter.With(prometheus.Labels{"mode": mode}).Inc()
	if len(beneficiaryId) == 0 || amount <= 0 {
		return
	}
	amountCounter.With(prometheus.Labels{"beneficiary_id": beneficiaryId}).Add(amount)
}
