package billing

import (
	"fmt"
	"sync"
	"time"

	"pixtip/internal"
	"pixtip/models"
)

const currencyBRL = "BRL"

type Database interface {
	SaveTipRequest(request *models.TipRequest) error
	SavePaymentOrder(order *models.PaymentOrder) error
	UpdatePaymentOrder(order *models.PaymentOrder) error
	GetPaymentOrder(sessionId string) (*models.PaymentOrder, error)
}

// Recorder persists payment orders and confirmed tip requests; implements EventHandler
type Recorder struct {
	database Database
	logger   internal.LogHandler
	mutex    sync.Mutex
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) SetDatabase(database Database) {
	r.database = database
}

func (r *Recorder) SetLogger(logger internal.LogHandler) {
	r.logger = logger
}

func (r *Recorder) OnPaymentRequested(event *internal.PaymentEvent) {
	if r.database == nil {
		return
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.closeOrder(event.SessionId, "closed without response")

	order := &models.PaymentOrder{
		SessionId:      event.SessionId,
		UserId:         event.BeneficiaryId,
		TrackingId:     event.TrackingId,
		IdempotencyKey: event.IdempotencyKey,
		Amount:         event.Amount,
		Currency:       currencyBRL,
		Mode:           event.Mode,
		Description:    event.Description,
		TimeOpened:     event.Time,
	}
	if err := r.database.SavePaymentOrder(order); err != nil {
		r.logger.Error(fmt.Sprintf("billing: save payment order of session %s", event.SessionId), err)
	}
}

func (r *Recorder) OnPaymentConfirmed(event *internal.PaymentEvent) {
	if r.database == nil {
		return
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()

	request := &models.TipRequest{
		UserId:     event.BeneficiaryId,
		SessionId:  event.SessionId,
		SongTitle:  event.Song,
		ArtistName: event.Artist,
		Cover:      event.Cover,
		UserName:   event.PayerName,
		Message:    event.Message,
		Amount:     event.Amount,
		Mode:       event.Mode,
		TrackingId: event.TrackingId,
		Status:     models.TipRequestConfirmed,
		CreatedAt:  event.Time,
	}
	if err := r.database.SaveTipRequest(request); err != nil {
		r.logger.Error(fmt.Sprintf("billing: save tip request of session %s", event.SessionId), err)
	}
	r.closeOrder(event.SessionId, fmt.Sprintf("confirmed %s", event.Mode))
	r.logger.FeatureEvent("TipConfirmed", event.SessionId, fmt.Sprintf("%.2f BRL for %s", event.Amount, event.BeneficiaryId))
}

func (r *Recorder) OnPaymentAlert(event *internal.PaymentEvent) {
	r.logger.Warn(fmt.Sprintf("billing: session %s: %s", event.SessionId, event.Info))
}

// closeOrder completes the latest open order of the session
func (r *Recorder) closeOrder(sessionId, result string) {
	order, _ := r.database.GetPaymentOrder(sessionId)
	if order == nil || order.IsCompleted {
		return
	}
	order.IsCompleted = true
	order.Result = result
	order.TimeClosed = time.Now()
	if err := r.database.UpdatePaymentOrder(order); err != nil {
		r.logger.Error(fmt.Sprintf("billing: close payment order of session %s", sessionId), err)
	}
}
