package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixtip/internal"
	"pixtip/models"
)

type nopLogger struct{}

func (nopLogger) FeatureEvent(feature, id, text string) {}
func (nopLogger) Debug(text string)                     {}
func (nopLogger) Warn(text string)                      {}
func (nopLogger) Error(text string, err error)          {}
func (nopLogger) RawDataEvent(direction, data string)   {}

type fakeDatabase struct {
	orders   []*models.PaymentOrder
	requests []*models.TipRequest
	saveErr  error
}

func (f *fakeDatabase) SaveTipRequest(request *models.TipRequest) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.requests = append(f.requests, request)
	return nil
}

func (f *fakeDatabase) SavePaymentOrder(order *models.PaymentOrder) error {
	copied := *order
	f.orders = append(f.orders, &copied)
	return nil
}

func (f *fakeDatabase) UpdatePaymentOrder(order *models.PaymentOrder) error {
	for i, o := range f.orders {
		if o.SessionId == order.SessionId && o.IdempotencyKey == order.IdempotencyKey {
			copied := *order
			f.orders[i] = &copied
		}
	}
	return nil
}

func (f *fakeDatabase) GetPaymentOrder(sessionId string) (*models.PaymentOrder, error) {
	for i := len(f.orders) - 1; i >= 0; i-- {
		if f.orders[i].SessionId == sessionId {
			copied := *f.orders[i]
			return &copied, nil
		}
	}
	return nil, errors.New("not found")
}

func newTestRecorder() (*Recorder, *fakeDatabase) {
	database := &fakeDatabase{}
	recorder := NewRecorder()
	recorder.SetDatabase(database)
	recorder.SetLogger(nopLogger{})
	return recorder, database
}

func paymentEvent(eventType, key string) *internal.PaymentEvent {
	return &internal.PaymentEvent{
		Type:           eventType,
		SessionId:      "s1",
		BeneficiaryId:  "artist-1",
		TrackingId:     "123",
		Amount:         20,
		Mode:           "automatic",
		PayerName:      "Ana",
		Song:           "Aquarela",
		Artist:         "Toquinho",
		Description:    "Gorjeta Musical",
		IdempotencyKey: key,
		Time:           time.Now(),
	}
}

func TestRecorderSavesOrderAndRequest(t *testing.T) {
	recorder, database := newTestRecorder()

	recorder.OnPaymentRequested(paymentEvent(internal.PaymentRequested, "k1"))
	require.Len(t, database.orders, 1)
	assert.Equal(t, "BRL", database.orders[0].Currency)
	assert.False(t, database.orders[0].IsCompleted)

	recorder.OnPaymentConfirmed(paymentEvent(internal.PaymentConfirmed, "k1"))
	require.Len(t, database.requests, 1)
	request := database.requests[0]
	assert.Equal(t, models.TipRequestConfirmed, request.Status)
	assert.Equal(t, "artist-1", request.UserId)
	assert.Equal(t, "Aquarela", request.SongTitle)
	assert.Equal(t, "Ana", request.UserName)
	assert.Equal(t, 20.0, request.Amount)

	assert.True(t, database.orders[0].IsCompleted)
	assert.Equal(t, "confirmed automatic", database.orders[0].Result)
}

func TestRecorderClosesSupersededOrder(t *testing.T) {
	recorder, database := newTestRecorder()

	recorder.OnPaymentRequested(paymentEvent(internal.PaymentRequested, "k1"))
	recorder.OnPaymentRequested(paymentEvent(internal.PaymentRequested, "k2"))

	require.Len(t, database.orders, 2)
	assert.True(t, database.orders[0].IsCompleted)
	assert.Equal(t, "closed without response", database.orders[0].Result)
	assert.False(t, database.orders[1].IsCompleted)
}

func TestRecorderWithoutDatabase(t *testing.T) {
	recorder := NewRecorder()
	recorder.SetLogger(nopLogger{})
	recorder.OnPaymentRequested(paymentEvent(internal.PaymentRequested, "k1"))
	recorder.OnPaymentConfirmed(paymentEvent(internal.PaymentConfirmed, "k1"))
	recorder.OnPaymentAlert(paymentEvent(internal.PaymentAlert, "k1"))
}
