package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pixtip/internal"
	"pixtip/metrics/counters"
	"pixtip/models"
	"pixtip/utility"
)

type BeneficiaryStore interface {
	GetBeneficiary(userId string) (*models.Beneficiary, error)
}

// Manager owns the open tipping sessions
type Manager struct {
	database BeneficiaryStore
	logger   internal.LogHandler
	settings Settings
	gateway  GatewayFactory
	handlers []internal.EventHandler
	ttl      time.Duration
	sweep    time.Duration
	mutex    sync.Mutex
	sessions map[string]*Session
}

func NewManager(settings Settings, factory GatewayFactory) *Manager {
	return &Manager{
		settings: settings,
		gateway:  factory,
		ttl:      time.Hour,
		sweep:    time.Minute,
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) SetDatabase(database BeneficiaryStore) {
	m.database = database
}

func (m *Manager) SetLogger(logger internal.LogHandler) {
	m.logger = logger
}

// SetExpiration sets how long an idle session lives and how often expired ones are closed
func (m *Manager) SetExpiration(ttl, sweep time.Duration) {
	if ttl > 0 {
		m.ttl = ttl
	}
	if sweep > 0 {
		m.sweep = sweep
	}
}

func (m *Manager) AddEventHandler(handler internal.EventHandler) {
	m.handlers = append(m.handlers, handler)
}

// Open starts a tipping session for the beneficiary
func (m *Manager) Open(ctx context.Context, beneficiaryId string, song models.SongRequest) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.database == nil {
		return nil, utility.Err("beneficiary store is not available")
	}
	beneficiary, err := m.database.GetBeneficiary(beneficiaryId)
	if err != nil {
		return nil, fmt.Errorf("loading beneficiary %s: %w", beneficiaryId, err)
	}
	if beneficiary == nil {
		return nil, ErrUnknownBeneficiary
	}

	session := NewSession(utility.NewUUID(), beneficiary, song, m.settings, m.gateway)
	session.SetLogger(m.logger)
	for _, handler := range m.handlers {
		session.AddEventHandler(handler)
	}

	m.mutex.Lock()
	m.sessions[session.Id()] = session
	count := len(m.sessions)
	m.mutex.Unlock()

	counters.ObserveSessions(count)
	m.logger.FeatureEvent("OpenSession", session.Id(), fmt.Sprintf("beneficiary %s; song: %s", beneficiaryId, song.SongTitle))
	return session, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Close ends the session and forgets it
func (m *Manager) Close(id string) error {
	m.mutex.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mutex.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	session.Close()
	counters.ObserveSessions(count)
	return nil
}

func (m *Manager) Count() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.sessions)
}

// Start closes expired sessions until ctx is done, then closes the rest
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.sweep)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.CloseAll()
				return
			case now := <-ticker.C:
				m.expire(now)
			}
		}
	}()
}

func (m *Manager) CloseAll() {
	m.mutex.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mutex.Unlock()

	for _, session := range sessions {
		session.Close()
	}
	counters.ObserveSessions(0)
}

func (m *Manager) expire(now time.Time) {
	var expired []*Session
	m.mutex.Lock()
	for id, session := range m.sessions {
		if now.Sub(session.LastActivity()) > m.ttl {
			expired = append(expired, session)
			delete(m.sessions, id)
		}
	}
	count := len(m.sessions)
	m.mutex.Unlock()

	for _, session := range expired {
		session.Close()
		m.logger.FeatureEvent("CloseSession", session.Id(), "expired")
	}
	if len(expired) > 0 {
		counters.ObserveSessions(count)
	}
}
