package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixtip/gateway"
	"pixtip/internal"
	"pixtip/models"
)

const staticPayload = "00020126400014BR.GOV.BCB.PIX0118musico@example.com520400005303986540510.005802BR5913Fulano de Tal6009Sao Paulo62070503***63042570"

type nopLogger struct{}

func (nopLogger) FeatureEvent(feature, id, text string) {}
func (nopLogger) Debug(text string)                     {}
func (nopLogger) Warn(text string)                      {}
func (nopLogger) Error(text string, err error)          {}
func (nopLogger) RawDataEvent(direction, data string)   {}

type eventRecorder struct {
	mutex  sync.Mutex
	events []*internal.PaymentEvent
}

func (r *eventRecorder) OnPaymentRequested(event *internal.PaymentEvent) { r.add(event) }
func (r *eventRecorder) OnPaymentConfirmed(event *internal.PaymentEvent) { r.add(event) }
func (r *eventRecorder) OnPaymentAlert(event *internal.PaymentEvent)     { r.add(event) }

func (r *eventRecorder) add(event *internal.PaymentEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) ofType(eventType string) []*internal.PaymentEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var list []*internal.PaymentEvent
	for _, e := range r.events {
		if e.Type == eventType {
			list = append(list, e)
		}
	}
	return list
}

type fakeGateway struct {
	mutex        sync.Mutex
	createErr    error
	poll         func(ctx context.Context, trackingId string, n int) (models.ChargeStatus, error)
	created      []models.ChargeRequest
	polls        map[string]int
	factoryCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{polls: make(map[string]int)}
}

func (f *fakeGateway) factory() GatewayFactory {
	return func(accessToken string) Gateway {
		f.mutex.Lock()
		defer f.mutex.Unlock()
		f.factoryCalls++
		return f
	}
}

func (f *fakeGateway) CreateCharge(ctx context.Context, request models.ChargeRequest) (*models.GatewayCharge, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.created = append(f.created, request)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &models.GatewayCharge{
		TrackingId: fmt.Sprintf("t%d", len(f.created)),
		Payload:    staticPayload,
		Status:     models.ChargeStatusPending,
	}, nil
}

func (f *fakeGateway) PollStatus(ctx context.Context, trackingId string) (models.ChargeStatus, error) {
	f.mutex.Lock()
	f.polls[trackingId]++
	n := f.polls[trackingId]
	poll := f.poll
	f.mutex.Unlock()
	if poll == nil {
		return models.ChargeStatusPending, nil
	}
	return poll(ctx, trackingId, n)
}

func (f *fakeGateway) calls() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	total := len(f.created)
	for _, n := range f.polls {
		total += n
	}
	return total
}

func (f *fakeGateway) pollCount(trackingId string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.polls[trackingId]
}

func testBeneficiary() *models.Beneficiary {
	return &models.Beneficiary{
		UserId:          "artist-1",
		PixKey:          "musico@example.com",
		BeneficiaryName: "Fulano de Tal",
		City:            "Sao Paulo",
		GatewayToken:    "APP_USR-token",
	}
}

func testSettings() Settings {
	return Settings{
		City:           "Cidade",
		PayerName:      "Visitante",
		RequestTimeout: time.Second,
		PollInterval:   5 * time.Millisecond,
	}
}

func newTestSession(t *testing.T, beneficiary *models.Beneficiary, settings Settings, gw *fakeGateway) (*Session, *eventRecorder) {
	t.Helper()
	session := NewSession("session-1", beneficiary, models.SongRequest{SongTitle: "Aquarela", UserName: "Ana"}, settings, gw.factory())
	session.SetLogger(nopLogger{})
	recorder := &eventRecorder{}
	session.AddEventHandler(recorder)
	t.Cleanup(session.Close)
	return session, recorder
}

func waitState(t *testing.T, session *Session, state State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return session.Snapshot().State == state
	}, time.Second, 2*time.Millisecond, "state %s not reached", state)
}

func TestRequestPaymentWithoutCredentials(t *testing.T) {
	beneficiary := testBeneficiary()
	beneficiary.GatewayToken = ""
	gw := newFakeGateway()
	session, recorder := newTestSession(t, beneficiary, testSettings(), gw)

	snapshot, err := session.RequestPayment(context.Background(), decimal.NewFromInt(10), "")
	require.NoError(t, err)

	assert.Equal(t, StateAwaitingManual, snapshot.State)
	assert.Equal(t, ModeManual, snapshot.Mode)
	assert.Equal(t, staticPayload, snapshot.Payload)
	assert.False(t, snapshot.GatewayFailed)
	assert.Empty(t, snapshot.Notice)
	assert.Equal(t, 0, gw.factoryCalls)
	assert.Equal(t, 0, gw.calls())

	requested := recorder.ofType(internal.PaymentRequested)
	require.Len(t, requested, 1)
	assert.Equal(t, "Visitante", requested[0].PayerName)
	assert.Equal(t, 10.0, requested[0].Amount)
}

func TestRequestPaymentGatewayDisabled(t *testing.T) {
	gw := newFakeGateway()
	settings := testSettings()
	settings.GatewayDisabled = true
	session, _ := newTestSession(t, testBeneficiary(), settings, gw)

	snapshot, err := session.RequestPayment(context.Background(), decimal.NewFromInt(10), "Ana")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingManual, snapshot.State)
	assert.Equal(t, 0, gw.calls())
}

func TestRequestPaymentNotConfigured(t *testing.T) {
	tests := []struct {
		name   string
		modify func(b *models.Beneficiary)
	}{
		{"missing key", func(b *models.Beneficiary) { b.PixKey = "" }},
		{"missing name", func(b *models.Beneficiary) { b.BeneficiaryName = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			beneficiary := testBeneficiary()
			tt.modify(beneficiary)
			gw := newFakeGateway()
			session, recorder := newTestSession(t, beneficiary, testSettings(), gw)

			snapshot, err := session.RequestPayment(context.Background(), decimal.NewFromInt(10), "")
			assert.ErrorIs(t, err, ErrNotConfigured)
			require.NotNil(t, snapshot)
			assert.Equal(t, StateFailed, snapshot.State)
			assert.Equal(t, "not configured", snapshot.Reason)
			assert.Empty(t, snapshot.Payload)
			assert.Equal(t, 0, gw.calls())
			assert.Len(t, recorder.ofType(internal.PaymentAlert), 1)

			_, err = session.RequestPayment(context.Background(), decimal.NewFromInt(20), "")
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestRequestPaymentInvalidAmount(t *testing.T) {
	session, _ := newTestSession(t, testBeneficiary(), testSettings(), newFakeGateway())
	_, err := session.RequestPayment(context.Background(), decimal.Zero, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, StateIdle, session.Snapshot().State)
}

func TestRequestPaymentRoundsToCentavos(t *testing.T) {
	beneficiary := testBeneficiary()
	beneficiary.GatewayToken = ""
	session, recorder := newTestSession(t, beneficiary, testSettings(), newFakeGateway())

	snapshot, err := session.RequestPayment(context.Background(), decimal.RequireFromString("10.005"), "")
	require.NoError(t, err)
	assert.Equal(t, "10.01", snapshot.Amount.String())
	assert.Contains(t, snapshot.Payload, "540510.01")

	_, err = session.ConfirmManual(context.Background())
	require.NoError(t, err)
	confirmed := recorder.ofType(internal.PaymentConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, 10.01, confirmed[0].Amount)
}

func TestRequestPaymentRoundsChargeAmount(t *testing.T) {
	gw := newFakeGateway()
	session, _ := newTestSession(t, testBeneficiary(), testSettings(), gw)

	snapshot, err := session.RequestPayment(context.Background(), decimal.RequireFromString("15.499"), "")
	require.NoError(t, err)
	assert.Equal(t, "15.5", snapshot.Amount.String())
	gw.mutex.Lock()
	defer gw.mutex.Unlock()
	require.Len(t, gw.created, 1)
	assert.True(t, gw.created[0].Amount.Equal(decimal.RequireFromString("15.50")))
}

func TestRequestPaymentBelowOneCentavo(t *testing.T) {
	gw := newFakeGateway()
	session, _ := newTestSession(t, testBeneficiary(), testSettings(), gw)

	_, err := session.RequestPayment(context.Background(), decimal.RequireFromString("0.004"), "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, StateIdle, session.Snapshot().State)
	assert.Equal(t, 0, gw.calls())
}

func TestNewSessionDefaultsPollInterval(t *testing.T) {
	settings := testSettings()
	settings.PollInterval = 0
	session := NewSession("session-1", testBeneficiary(), models.SongRequest{}, settings, nil)
	assert.Equal(t, defaultPollInterval, session.settings.PollInterval)

	settings.PollInterval = -time.Second
	session = NewSession("session-2", testBeneficiary(), models.SongRequest{}, settings, nil)
	assert.Equal(t, defaultPollInterval, session.settings.PollInterval)
}

func TestGatewayFailureFallsBack(t *testing.T) {
	gw := newFakeGateway()
	gw.createErr = &gateway.Error{Kind: gateway.KindRejected, StatusCode: 400, Message: "invalid amount"}
	session, recorder := newTestSession(t, testBeneficiary(), testSettings(), gw)

	snapshot, err := session.RequestPayment(context.Background(), decimal.NewFromInt(10), "Ana")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingManual, snapshot.State)
	assert.True(t, snapshot.GatewayFailed)
	assert.Equal(t, noticeGatewayUnavailable, snapshot.Notice)
	assert.Equal(t, staticPayload, snapshot.Payload)
	assert.Empty(t, snapshot.TrackingId)

	alerts := recorder.ofType(internal.PaymentAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, "rejected", alerts[0].Info)
	assert.True(t, alerts[0].GatewayFailed)

	require.Len(t, gw.created, 1)
	assert.Equal(t, "Ana", gw.created[0].PayerName)
	assert.NotEmpty(t, gw.created[0].IdempotencyKey)

	snapshot, err = session.ConfirmManual(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, snapshot.State)
	confirmed := recorder.ofType(internal.PaymentConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, ModeManual, confirmed[0].Mode)
	assert.Equal(t, "Aquarela", confirmed[0].Song)
}

func TestPollingConfirmsExactlyOnce(t *testing.T) {
	gw := newFakeGateway()
	gw.poll = func(ctx context.Context, trackingId string, n int) (models.ChargeStatus, error) {
		if n < 3 {
			return models.ChargeStatusPending, nil
		}
		return models.ChargeStatusApproved, nil
	}
	session, recorder := newTestSession(t, testBeneficiary(), testSettings(), gw)

	snapshot, err := session.RequestPayment(context.Background(), decimal.NewFromInt(10), "Ana")
	require.NoError(t, err)
	assert.Equal(t, StatePolling, snapshot.State)
	assert.Equal(t, ModeAutomatic, snapshot.Mode)
	assert.Equal(t, "t1", snapshot.TrackingId)
	assert.Equal(t, staticPayload, snapshot.Payload)

	waitState(t, session, StateConfirmed)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 3, gw.pollCount("t1"))
	assert.Equal(t, 4, gw.calls())
	confirmed := recorder.ofType(internal.PaymentConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, ModeAutomatic, confirmed[0].Mode)
	assert.Equal(t, "t1", confirmed[0].TrackingId)

	_, err = session.RequestPayment(context.Background(), decimal.NewFromInt(20), "Ana")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPollingSurvivesTransientErrors(t *testing.T) {
	gw := newFakeGateway()
	gw.poll = func(ctx context.Context, trackingId string, n int) (models.ChargeStatus, error) {
		switch n {
		case 1:
			return "", &gateway.Error{Kind: gateway.KindNetwork, Err: errors.New("connection reset")}
		case 2:
			return models.ChargeStatusOther, nil
		default:
			return models.ChargeStatusApproved, nil
		}
	}
	session, recorder := newTestSession(t, testBeneficiary(), testSettings(), gw)

	_, err := session.RequestPayment(context.Background(), decimal.NewFromInt(10), "")
	require.NoError(t, err)
	waitState(t, session, StateConfirmed)
	assert.Len(t, recorder.ofType(internal.PaymentConfirmed), 1)
}

func TestReRequestDiscardsStaleApproval(t *testing.T) {
	release := make(chan struct{})
	gw := newFakeGateway()
	gw.poll = func(ctx context.Context, trackingId string, n int) (models.ChargeStatus, error) {
		if trackingId == "t1" {
			<-release
			return models.ChargeStatusApproved, nil
		}
		return models.ChargeStatusPending, nil
	}
	session, recorder := newTestSession(t, testBeneficiary(), testSettings(), gw)

	_, err := session.RequestPayment(context.Background(), decimal.NewFromInt(10), "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return gw.pollCount("t1") == 1 }, time.Second, time.Millisecond)

	result := make(chan *Snapshot, 1)
	go func() {
		snapshot, err := session.RequestPayment(context.Background(), decimal.NewFromInt(20), "")
		assert.NoError(t, err)
		result <- snapshot
	}()
	require.Eventually(t, func() bool {
		session.mutex.Lock()
		defer session.mutex.Unlock()
		return session.generation == 2
	}, time.Second, time.Millisecond)

	// the abandoned charge reports approval after the new amount was chosen
	close(release)

	var snapshot *Snapshot
	select {
	case snapshot = <-result:
	case <-time.After(time.Second):
		t.Fatal("request was not completed")
	}
	assert.Equal(t, StatePolling, snapshot.State)
	assert.Equal(t, "t2", snapshot.TrackingId)
	assert.True(t, decimal.NewFromInt(20).Equal(snapshot.Amount))

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, recorder.ofType(internal.PaymentConfirmed))
	assert.Equal(t, StatePolling, session.Snapshot().State)
	assert.Equal(t, 1, gw.pollCount("t1"))
	require.Len(t, gw.created, 2)
	assert.NotEqual(t, gw.created[0].IdempotencyKey, gw.created[1].IdempotencyKey)
}

func TestReRequestFromManualConfirmation(t *testing.T) {
	beneficiary := testBeneficiary()
	beneficiary.GatewayToken = ""
	session, recorder := newTestSession(t, beneficiary, testSettings(), newFakeGateway())

	first, err := session.RequestPayment(context.Background(), decimal.NewFromInt(10), "")
	require.NoError(t, err)
	second, err := session.RequestPayment(context.Background(), decimal.NewFromInt(30), "")
	require.NoError(t, err)

	assert.Equal(t, StateAwaitingManual, second.State)
	assert.NotEqual(t, first.Payload, second.Payload)
	assert.Contains(t, second.Payload, "540530.00")
	assert.Len(t, recorder.ofType(internal.PaymentRequested), 2)
}

func TestPollTimeoutAllowsManualConfirmation(t *testing.T) {
	gw := newFakeGateway()
	settings := testSettings()
	settings.PollTimeout = 30 * time.Millisecond
	session, recorder := newTestSession(t, testBeneficiary(), settings, gw)

	_, err := session.RequestPayment(context.Background(), decimal.NewFromInt(10), "")
	require.NoError(t, err)
	waitState(t, session, StateAwaitingManual)

	snapshot := session.Snapshot()
	assert.Equal(t, noticeNotConfirmed, snapshot.Notice)
	assert.Equal(t, ModeManual, snapshot.Mode)
	assert.Len(t, recorder.ofType(internal.PaymentAlert), 1)

	polls := gw.pollCount("t1")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, polls, gw.pollCount("t1"))

	snapshot, err = session.ConfirmManual(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, snapshot.State)
}

func TestConfirmManualWhilePolling(t *testing.T) {
	session, recorder := newTestSession(t, testBeneficiary(), testSettings(), newFakeGateway())

	_, err := session.ConfirmManual(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = session.RequestPayment(context.Background(), decimal.NewFromInt(10), "")
	require.NoError(t, err)
	snapshot, err := session.ConfirmManual(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatePolling, snapshot.State)
	assert.Empty(t, recorder.ofType(internal.PaymentConfirmed))
}

func TestCloseStopsPolling(t *testing.T) {
	gw := newFakeGateway()
	session, recorder := newTestSession(t, testBeneficiary(), testSettings(), gw)

	_, err := session.RequestPayment(context.Background(), decimal.NewFromInt(10), "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return gw.pollCount("t1") > 1 }, time.Second, time.Millisecond)

	session.Close()
	calls := gw.calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, gw.calls())

	session.Close()
	_, err = session.RequestPayment(context.Background(), decimal.NewFromInt(10), "")
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = session.ConfirmManual(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Empty(t, recorder.ofType(internal.PaymentConfirmed))
}

func TestCloseDuringChargeCreation(t *testing.T) {
	started := make(chan struct{})
	gw := &blockingGateway{started: started}
	session := NewSession("session-2", testBeneficiary(), models.SongRequest{}, testSettings(), func(string) Gateway { return gw })
	session.SetLogger(nopLogger{})

	result := make(chan error, 1)
	go func() {
		_, err := session.RequestPayment(context.Background(), decimal.NewFromInt(10), "")
		result <- err
	}()
	<-started
	session.Close()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(time.Second):
		t.Fatal("charge creation was not cancelled")
	}
	assert.Equal(t, StateIdle, session.Snapshot().State)
}

type blockingGateway struct {
	started chan struct{}
}

func (g *blockingGateway) CreateCharge(ctx context.Context, request models.ChargeRequest) (*models.GatewayCharge, error) {
	close(g.started)
	<-ctx.Done()
	return nil, &gateway.Error{Kind: gateway.KindNetwork, Err: ctx.Err()}
}

func (g *blockingGateway) PollStatus(ctx context.Context, trackingId string) (models.ChargeStatus, error) {
	return models.ChargeStatusPending, nil
}

func TestSubscribe(t *testing.T) {
	beneficiary := testBeneficiary()
	beneficiary.GatewayToken = ""
	session, _ := newTestSession(t, beneficiary, testSettings(), newFakeGateway())

	updates, unsubscribe := session.Subscribe()
	first := <-updates
	assert.Equal(t, StateIdle, first.State)
	assert.Equal(t, []float64{10, 20, 30}, first.Values)

	_, err := session.RequestPayment(context.Background(), decimal.NewFromInt(10), "")
	require.NoError(t, err)
	second := <-updates
	assert.Equal(t, StateAwaitingManual, second.State)

	unsubscribe()
	_, ok := <-updates
	assert.False(t, ok)
	unsubscribe()
}
