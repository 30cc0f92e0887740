package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/shopspring/decimal"

	"pixtip/gateway"
	"pixtip/internal"
	"pixtip/internal/config"
	"pixtip/metrics/counters"
	"pixtip/models"
	"pixtip/pix"
	"pixtip/utility"
)

const (
	noticeGatewayUnavailable = "automatic confirmation unavailable, confirm after paying"
	noticeNotConfirmed       = "could not confirm automatically"
	reasonNotConfigured      = "not configured"
	defaultPollInterval      = 3 * time.Second
)

type Gateway interface {
	CreateCharge(ctx context.Context, request models.ChargeRequest) (*models.GatewayCharge, error)
	PollStatus(ctx context.Context, trackingId string) (models.ChargeStatus, error)
}

// GatewayFactory returns a gateway client authorized with the beneficiary's access token
type GatewayFactory func(accessToken string) Gateway

type Settings struct {
	City            string
	Description     string
	ReferenceLabel  string
	PayerName       string
	GatewayDisabled bool
	RequestTimeout  time.Duration
	PollInterval    time.Duration
	PollTimeout     time.Duration
}

func SettingsFromConfig(conf *config.Config) Settings {
	return Settings{
		City:            conf.Pix.DefaultCity,
		Description:     conf.Pix.Description,
		ReferenceLabel:  conf.Pix.ReferenceLabel,
		PayerName:       conf.Gateway.PayerName,
		GatewayDisabled: conf.Gateway.Disabled,
		RequestTimeout:  conf.GatewayTimeout(),
		PollInterval:    conf.PollInterval(),
		PollTimeout:     conf.PollTimeout(),
	}
}

// Snapshot is the caller-visible view of a session
type Snapshot struct {
	SessionId     string          `json:"session_id"`
	BeneficiaryId string          `json:"beneficiary_id"`
	State         State           `json:"state"`
	Mode          string          `json:"mode,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Payload       string          `json:"payload,omitempty"`
	TrackingId    string          `json:"tracking_id,omitempty"`
	GatewayFailed bool            `json:"gateway_failed"`
	Notice        string          `json:"notice,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Values        []float64       `json:"values"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Session drives the confirmation of one tipping session
type Session struct {
	id          string
	beneficiary *models.Beneficiary
	song        models.SongRequest
	settings    Settings
	gateway     GatewayFactory
	logger      internal.LogHandler
	handlers    []internal.EventHandler

	ctx    context.Context
	cancel context.CancelFunc

	mutex          sync.Mutex
	machine        *fsm.FSM
	generation     uint64
	cancelCharge   context.CancelFunc
	pollDone       chan struct{}
	closed         bool
	amount         decimal.Decimal
	payerName      string
	idempotencyKey string
	mode           string
	payload        string
	trackingId     string
	gatewayFailed  bool
	notice         string
	reason         string
	updated        time.Time
	observers      map[int]chan *Snapshot
	observerSeq    int
}

// attempt carries one payment request across the unlocked gateway call
type attempt struct {
	generation uint64
	ctx        context.Context
	request    models.ChargeRequest
}

func NewSession(id string, beneficiary *models.Beneficiary, song models.SongRequest, settings Settings, factory GatewayFactory) *Session {
	if settings.PollInterval <= 0 {
		settings.PollInterval = defaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:          id,
		beneficiary: beneficiary,
		song:        song,
		settings:    settings,
		gateway:     factory,
		ctx:         ctx,
		cancel:      cancel,
		machine:     newStateMachine(),
		updated:     time.Now(),
		observers:   make(map[int]chan *Snapshot),
	}
}

func (s *Session) SetLogger(logger internal.LogHandler) {
	s.logger = logger
}

func (s *Session) AddEventHandler(handler internal.EventHandler) {
	s.handlers = append(s.handlers, handler)
}

func (s *Session) Id() string {
	return s.id
}

func (s *Session) Beneficiary() *models.Beneficiary {
	return s.beneficiary
}

// LastActivity is the time of the last state change
func (s *Session) LastActivity() time.Time {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.updated
}

func (s *Session) Snapshot() *Snapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.snapshot()
}

// RequestPayment issues a payment code for the amount. A request made while a previous
// charge is polled or awaits confirmation abandons that charge first.
func (s *Session) RequestPayment(ctx context.Context, amount decimal.Decimal, payerName string) (*Snapshot, error) {
	// payload and charge carry centavos; record the same value
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if payerName == "" {
		payerName = s.settings.PayerName
	}

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil, ErrSessionClosed
	}
	if state := s.state(); state.Terminal() {
		snapshot := s.snapshot()
		s.mutex.Unlock()
		return snapshot, fmt.Errorf("%w: session is %s", ErrInvalidTransition, state)
	}

	cancel, done := s.cancelCharge, s.pollDone
	s.generation++
	chargeCtx, chargeCancel := context.WithCancel(s.ctx)
	s.cancelCharge, s.pollDone = chargeCancel, nil
	if s.state() != StateIdle {
		s.fire(eventReset)
	}
	s.amount = amount
	s.payerName = payerName
	s.idempotencyKey = utility.NewUUID()
	s.mode, s.payload, s.trackingId, s.notice, s.reason = "", "", "", "", ""
	s.gatewayFailed = false
	current := attempt{
		generation: s.generation,
		ctx:        chargeCtx,
		request: models.ChargeRequest{
			Amount:         amount,
			Description:    s.settings.Description,
			PayerName:      payerName,
			IdempotencyKey: s.idempotencyKey,
		},
	}
	s.mutex.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	if field := s.missingField(); field != "" {
		return s.fail(current, reasonNotConfigured, fmt.Errorf("%w: missing %s", ErrNotConfigured, field))
	}
	if s.useGateway() {
		return s.requestCharge(ctx, current)
	}
	return s.fallback(current, nil)
}

// ConfirmManual records the payer's "I have paid" signal; there is nothing to verify in
// this mode, so the transition is trusted
func (s *Session) ConfirmManual(ctx context.Context) (*Snapshot, error) {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil, ErrSessionClosed
	}
	if state := s.state(); state != StateAwaitingManual {
		snapshot := s.snapshot()
		s.mutex.Unlock()
		return snapshot, fmt.Errorf("%w: session is %s", ErrInvalidTransition, state)
	}
	s.generation++
	s.mode = ModeManual
	s.fire(eventConfirmManual)
	snapshot := s.publish()
	event := s.newEvent(internal.PaymentConfirmed)
	s.mutex.Unlock()

	s.logger.FeatureEvent("ConfirmManual", s.id, fmt.Sprintf("payer confirmed %s", event.Song))
	s.emit(event)
	return snapshot, nil
}

// Close stops polling and discards any in-flight gateway call; safe to call repeatedly
func (s *Session) Close() {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}
	s.closed = true
	s.generation++
	done := s.pollDone
	s.pollDone = nil
	for id, ch := range s.observers {
		close(ch)
		delete(s.observers, id)
	}
	s.mutex.Unlock()

	s.cancel()
	if done != nil {
		<-done
	}
}

// Subscribe returns a channel receiving a snapshot after every state change, starting
// with the current one. Slow readers miss intermediate snapshots.
func (s *Session) Subscribe() (<-chan *Snapshot, func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	ch := make(chan *Snapshot, 8)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.observerSeq++
	id := s.observerSeq
	s.observers[id] = ch
	ch <- s.snapshot()
	return ch, func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		if c, ok := s.observers[id]; ok {
			delete(s.observers, id)
			close(c)
		}
	}
}

func (s *Session) missingField() string {
	if s.beneficiary.PixKey == "" {
		return "pix key"
	}
	if s.beneficiary.BeneficiaryName == "" {
		return "beneficiary name"
	}
	return ""
}

func (s *Session) useGateway() bool {
	return s.gateway != nil && !s.settings.GatewayDisabled && s.beneficiary.HasGateway()
}

func (s *Session) requestCharge(ctx context.Context, current attempt) (*Snapshot, error) {
	client := s.gateway(s.beneficiary.GatewayToken)

	var createCtx context.Context
	var cancel context.CancelFunc
	if s.settings.RequestTimeout > 0 {
		createCtx, cancel = context.WithTimeout(current.ctx, s.settings.RequestTimeout)
	} else {
		createCtx, cancel = context.WithCancel(current.ctx)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	charge, err := client.CreateCharge(createCtx, current.request)
	if err != nil {
		if current.ctx.Err() != nil {
			return nil, s.staleError()
		}
		s.logger.Warn(fmt.Sprintf("session %s: gateway charge failed: %v", s.id, err))
		return s.fallback(current, err)
	}
	return s.startPolling(current, client, charge)
}

// fallback surfaces the locally assembled static payload; cause is the gateway error that
// led here, nil when the gateway was never tried
func (s *Session) fallback(current attempt, cause error) (*Snapshot, error) {
	s.mutex.Lock()
	if err := s.checkCurrent(current.generation); err != nil {
		s.mutex.Unlock()
		return nil, err
	}
	amount := current.request.Amount
	payload, err := pix.Build(&models.PaymentRequest{
		BeneficiaryKey:  s.beneficiary.PixKey,
		BeneficiaryName: s.beneficiary.BeneficiaryName,
		BeneficiaryCity: s.city(),
		ReferenceLabel:  s.settings.ReferenceLabel,
		Description:     s.settings.Description,
		Amount:          &amount,
	})
	if err != nil {
		s.mutex.Unlock()
		return s.fail(current, err.Error(), err)
	}

	s.payload = payload
	s.mode = ModeManual
	if cause != nil {
		s.gatewayFailed = true
		s.notice = noticeGatewayUnavailable
	}
	s.fire(eventFallback)
	snapshot := s.publish()
	requested := s.newEvent(internal.PaymentRequested)
	var alert *internal.PaymentEvent
	if cause != nil {
		alert = s.newEvent(internal.PaymentAlert)
		alert.Info = failureCause(cause)
	}
	s.mutex.Unlock()

	s.logger.FeatureEvent("RequestPayment", s.id, fmt.Sprintf("static payload for %s", amount.StringFixed(2)))
	if alert != nil {
		s.emit(alert)
	}
	s.emit(requested)
	return snapshot, nil
}

func (s *Session) startPolling(current attempt, client Gateway, charge *models.GatewayCharge) (*Snapshot, error) {
	if err := pix.Verify(charge.Payload); err != nil {
		s.logger.Warn(fmt.Sprintf("session %s: gateway payload of charge %s: %v", s.id, charge.TrackingId, err))
	}

	s.mutex.Lock()
	if err := s.checkCurrent(current.generation); err != nil {
		s.mutex.Unlock()
		return nil, err
	}
	s.payload = charge.Payload
	s.trackingId = charge.TrackingId
	s.mode = ModeAutomatic
	s.fire(eventChargeCreated)
	done := make(chan struct{})
	s.pollDone = done
	go s.poll(current.ctx, current.generation, client, charge.TrackingId, done)
	snapshot := s.publish()
	requested := s.newEvent(internal.PaymentRequested)
	s.mutex.Unlock()

	s.logger.FeatureEvent("RequestPayment", s.id, fmt.Sprintf("charge %s for %s", charge.TrackingId, current.request.Amount.StringFixed(2)))
	s.emit(requested)
	return snapshot, nil
}

func (s *Session) fail(current attempt, reason string, cause error) (*Snapshot, error) {
	s.mutex.Lock()
	if err := s.checkCurrent(current.generation); err != nil {
		s.mutex.Unlock()
		return nil, err
	}
	s.reason = reason
	s.fire(eventFail)
	snapshot := s.publish()
	alert := s.newEvent(internal.PaymentAlert)
	alert.Info = reason
	s.mutex.Unlock()

	s.logger.Warn(fmt.Sprintf("session %s failed: %v", s.id, cause))
	s.emit(alert)
	return snapshot, cause
}

// poll queries the charge status until approval, expiry or cancellation; the next tick
// is armed only after the previous poll returned
func (s *Session) poll(ctx context.Context, generation uint64, client Gateway, trackingId string, done chan struct{}) {
	defer close(done)

	tick := time.NewTimer(s.settings.PollInterval)
	defer tick.Stop()
	var expired <-chan time.Time
	if s.settings.PollTimeout > 0 {
		deadline := time.NewTimer(s.settings.PollTimeout)
		defer deadline.Stop()
		expired = deadline.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-expired:
			s.expire(generation)
			return
		case <-tick.C:
		}

		status, err := s.pollOnce(ctx, client, trackingId)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			counters.CountPoll("error")
			s.logger.Warn(fmt.Sprintf("session %s: poll charge %s: %v", s.id, trackingId, err))
		} else {
			counters.CountPoll(string(status))
			if status == models.ChargeStatusApproved {
				s.approve(generation)
				return
			}
		}
		tick.Reset(s.settings.PollInterval)
	}
}

func (s *Session) pollOnce(ctx context.Context, client Gateway, trackingId string) (models.ChargeStatus, error) {
	if s.settings.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.RequestTimeout)
		defer cancel()
	}
	return client.PollStatus(ctx, trackingId)
}

func (s *Session) approve(generation uint64) {
	s.mutex.Lock()
	if s.closed || generation != s.generation || s.state() != StatePolling {
		s.mutex.Unlock()
		return
	}
	s.fire(eventApprove)
	s.publish()
	event := s.newEvent(internal.PaymentConfirmed)
	s.mutex.Unlock()

	s.logger.FeatureEvent("Approved", s.id, fmt.Sprintf("charge %s approved", event.TrackingId))
	s.emit(event)
}

func (s *Session) expire(generation uint64) {
	s.mutex.Lock()
	if s.closed || generation != s.generation || s.state() != StatePolling {
		s.mutex.Unlock()
		return
	}
	s.mode = ModeManual
	s.notice = noticeNotConfirmed
	s.fire(eventExpire)
	s.publish()
	alert := s.newEvent(internal.PaymentAlert)
	alert.Info = "poll timeout"
	s.mutex.Unlock()

	s.logger.Warn(fmt.Sprintf("session %s: charge %s not approved in %v", s.id, alert.TrackingId, s.settings.PollTimeout))
	s.emit(alert)
}

func (s *Session) checkCurrent(generation uint64) error {
	if s.closed {
		return ErrSessionClosed
	}
	if generation != s.generation {
		return ErrSuperseded
	}
	return nil
}

// staleError tells why the charge context of an attempt was cancelled
func (s *Session) staleError() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return ErrSuperseded
}

func (s *Session) city() string {
	if s.beneficiary.City != "" {
		return s.beneficiary.City
	}
	return s.settings.City
}

func (s *Session) state() State {
	return State(s.machine.Current())
}

func (s *Session) fire(event string) {
	if err := s.machine.Event(context.Background(), event); err != nil {
		s.logger.Error(fmt.Sprintf("session %s: %s", s.id, event), err)
	}
	s.updated = time.Now()
}

func (s *Session) snapshot() *Snapshot {
	return &Snapshot{
		SessionId:     s.id,
		BeneficiaryId: s.beneficiary.UserId,
		State:         s.state(),
		Mode:          s.mode,
		Amount:        s.amount,
		Payload:       s.payload,
		TrackingId:    s.trackingId,
		GatewayFailed: s.gatewayFailed,
		Notice:        s.notice,
		Reason:        s.reason,
		Values:        s.beneficiary.Values(),
		UpdatedAt:     s.updated,
	}
}

// publish must be called with the mutex held
func (s *Session) publish() *Snapshot {
	snapshot := s.snapshot()
	for _, ch := range s.observers {
		select {
		case ch <- snapshot:
		default:
		}
	}
	return snapshot
}

func (s *Session) newEvent(eventType string) *internal.PaymentEvent {
	return &internal.PaymentEvent{
		Type:           eventType,
		SessionId:      s.id,
		BeneficiaryId:  s.beneficiary.UserId,
		TrackingId:     s.trackingId,
		Amount:         s.amount.InexactFloat64(),
		Mode:           s.mode,
		PayerName:      s.payerName,
		Song:           s.song.SongTitle,
		Artist:         s.song.ArtistName,
		Message:        s.song.Message,
		Cover:          s.song.Cover,
		Description:    s.settings.Description,
		IdempotencyKey: s.idempotencyKey,
		GatewayFailed:  s.gatewayFailed,
		Time:           time.Now(),
	}
}

func (s *Session) emit(event *internal.PaymentEvent) {
	for _, handler := range s.handlers {
		switch event.Type {
		case internal.PaymentRequested:
			handler.OnPaymentRequested(event)
		case internal.PaymentConfirmed:
			handler.OnPaymentConfirmed(event)
		case internal.PaymentAlert:
			handler.OnPaymentAlert(event)
		}
	}
}

// failureCause names the gateway failure for logs and metrics
func failureCause(err error) string {
	var gatewayErr *gateway.Error
	if errors.As(err, &gatewayErr) {
		return string(gatewayErr.Kind)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return string(gateway.KindNetwork)
	}
	return "unknown"
}
