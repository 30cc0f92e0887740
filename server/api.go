package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/shopspring/decimal"

	"pixtip/checkout"
	"pixtip/internal"
	"pixtip/internal/config"
	"pixtip/models"
	"pixtip/pix"
	"pixtip/utility"
)

const (
	sessionsEndpoint = "/api/sessions"
	sessionEndpoint  = "/api/sessions/:id"
	paymentEndpoint  = "/api/sessions/:id/payment"
	confirmEndpoint  = "/api/sessions/:id/confirm"
	pixEndpoint      = "/api/pix"
	logEndpoint      = "/api/log"
	maxBodySize      = 64 << 10
)

type SessionManager interface {
	Open(ctx context.Context, beneficiaryId string, song models.SongRequest) (*checkout.Session, error)
	Get(id string) (*checkout.Session, error)
	Close(id string) error
}

// LogReader returns the latest system log records
type LogReader interface {
	ReadLog() (interface{}, error)
}

type Api struct {
	sessions    SessionManager
	logs        LogReader
	logger      internal.LogHandler
	city        string
	description string
}

type openRequest struct {
	BeneficiaryId string             `json:"beneficiary_id"`
	Song          models.SongRequest `json:"song"`
}

type openResponse struct {
	SessionId string    `json:"session_id"`
	Values    []float64 `json:"values"`
	State     string    `json:"state"`
}

type paymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	PayerName string          `json:"payer_name"`
}

type pixRequest struct {
	Key         string           `json:"key"`
	Name        string           `json:"name"`
	City        string           `json:"city"`
	Description string           `json:"description"`
	Reference   string           `json:"reference"`
	Amount      *decimal.Decimal `json:"amount"`
}

type pixResponse struct {
	Payload string `json:"payload"`
}

type errorResponse struct {
	Error   string             `json:"error"`
	Session *checkout.Snapshot `json:"session,omitempty"`
}

func NewApi(conf *config.Config, sessions SessionManager, logger internal.LogHandler) *Api {
	return &Api{
		sessions:    sessions,
		logger:      logger,
		city:        conf.Pix.DefaultCity,
		description: conf.Pix.Description,
	}
}

func (a *Api) SetLogReader(logs LogReader) {
	a.logs = logs
}

func (a *Api) Register(router *httprouter.Router) {
	router.POST(sessionsEndpoint, a.openSession)
	router.GET(sessionEndpoint, a.getSession)
	router.DELETE(sessionEndpoint, a.closeSession)
	router.POST(paymentEndpoint, a.requestPayment)
	router.POST(confirmEndpoint, a.confirmPayment)
	router.POST(pixEndpoint, a.buildPayload)
	router.GET(logEndpoint, a.readLog)
}

func (a *Api) openSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var request openRequest
	if !a.decode(w, r, &request) {
		return
	}
	if request.BeneficiaryId == "" {
		a.writeError(w, http.StatusBadRequest, utility.Err("beneficiary_id is required"), nil)
		return
	}
	session, err := a.sessions.Open(r.Context(), request.BeneficiaryId, request.Song)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	snapshot := session.Snapshot()
	a.writeJSON(w, http.StatusCreated, openResponse{
		SessionId: snapshot.SessionId,
		Values:    snapshot.Values,
		State:     string(snapshot.State),
	})
}

func (a *Api) getSession(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	session, err := a.sessions.Get(params.ByName("id"))
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	a.writeJSON(w, http.StatusOK, session.Snapshot())
}

func (a *Api) closeSession(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if err := a.sessions.Close(params.ByName("id")); err != nil {
		a.fail(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Api) requestPayment(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	session, err := a.sessions.Get(params.ByName("id"))
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	var request paymentRequest
	if !a.decode(w, r, &request) {
		return
	}
	snapshot, err := session.RequestPayment(r.Context(), request.Amount, request.PayerName)
	if err != nil {
		a.fail(w, r, err, snapshot)
		return
	}
	a.writeJSON(w, http.StatusOK, snapshot)
}

func (a *Api) confirmPayment(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	session, err := a.sessions.Get(params.ByName("id"))
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	snapshot, err := session.ConfirmManual(r.Context())
	if err != nil {
		a.fail(w, r, err, snapshot)
		return
	}
	a.writeJSON(w, http.StatusOK, snapshot)
}

// buildPayload assembles a static payload without opening a session
func (a *Api) buildPayload(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var request pixRequest
	if !a.decode(w, r, &request) {
		return
	}
	city := request.City
	if city == "" {
		city = a.city
	}
	description := request.Description
	if description == "" {
		description = a.description
	}
	payload, err := pix.Build(&models.PaymentRequest{
		BeneficiaryKey:  request.Key,
		BeneficiaryName: request.Name,
		BeneficiaryCity: city,
		ReferenceLabel:  request.Reference,
		Description:     description,
		Amount:          request.Amount,
	})
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	a.writeJSON(w, http.StatusOK, pixResponse{Payload: payload})
}

func (a *Api) readLog(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if a.logs == nil {
		a.writeError(w, http.StatusServiceUnavailable, utility.Err("log storage is not enabled"), nil)
		return
	}
	records, err := a.logs.ReadLog()
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	a.writeJSON(w, http.StatusOK, records)
}

func (a *Api) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.logger.Warn(fmt.Sprintf("api: error parsing request from %s: %s", r.RemoteAddr, err))
		a.writeError(w, http.StatusBadRequest, err, nil)
		return false
	}
	return true
}

func (a *Api) fail(w http.ResponseWriter, r *http.Request, err error, snapshot *checkout.Snapshot) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		a.logger.Error(fmt.Sprintf("api: %s %s", r.Method, r.URL.Path), err)
	}
	a.writeError(w, status, err, snapshot)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, checkout.ErrSessionNotFound), errors.Is(err, checkout.ErrUnknownBeneficiary):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrInvalidTransition), errors.Is(err, checkout.ErrSuperseded), errors.Is(err, checkout.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, checkout.ErrNotConfigured):
		return http.StatusUnprocessableEntity
	case errors.Is(err, checkout.ErrInvalidAmount),
		errors.Is(err, pix.ErrMissingField),
		errors.Is(err, pix.ErrFieldTooLong),
		errors.Is(err, pix.ErrReferenceLabel),
		errors.Is(err, pix.ErrNegativeAmount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *Api) writeError(w http.ResponseWriter, status int, err error, snapshot *checkout.Snapshot) {
	a.writeJSON(w, status, errorResponse{Error: err.Error(), Session: snapshot})
}

func (a *Api) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		a.logger.Error("api: encoding response", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(data); err != nil {
		a.logger.Warn(fmt.Sprintf("api: writing response: %s", err))
	}
}
