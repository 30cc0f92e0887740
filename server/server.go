package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"pixtip/checkout"
	"pixtip/internal"
	"pixtip/internal/config"
	"pixtip/utility"
)

const (
	wsEndpoint   = "/ws/:id"
	writeTimeout = 10 * time.Second
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	upgrader   websocket.Upgrader
	sessions   SessionManager
	api        *Api
	logger     internal.LogHandler
}

func NewServer(conf *config.Config, sessions SessionManager, logger internal.LogHandler) *Server {
	server := Server{
		conf:     conf,
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	server.api = NewApi(conf, sessions, logger)
	router := httprouter.New()
	server.Register(router)
	server.api.Register(router)
	server.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &server
}

func (s *Server) Register(router *httprouter.Router) {
	router.GET(wsEndpoint, s.handleWsRequest)
}

// SetLogReader enables the system log endpoint
func (s *Server) SetLogReader(logs LogReader) {
	s.api.SetLogReader(logs)
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// handleWsRequest streams session snapshots to the page until either side leaves
func (s *Server) handleWsRequest(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id := params.ByName("id")
	session, err := s.sessions.Get(id)
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	s.logger.Debug(fmt.Sprintf("feed of %s requested from %s", id, r.RemoteAddr))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade failed: ", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Warn(fmt.Sprintf("error while closing socket %s %s", id, err))
		}
	}()

	updates, unsubscribe := session.Subscribe()
	defer unsubscribe()
	gone := make(chan struct{})
	go s.messageReader(conn, id, gone)

	for {
		select {
		case <-gone:
			return
		case snapshot, ok := <-updates:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err = s.writeSnapshot(conn, snapshot); err != nil {
				s.logger.Warn(fmt.Sprintf("feed %s: %s", id, err))
				return
			}
		}
	}
}

// messageReader drains the socket; the page sends nothing meaningful
func (s *Server) messageReader(conn *websocket.Conn, id string, gone chan struct{}) {
	defer close(gone)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug(fmt.Sprintf("id %s leaving feed", id))
			} else {
				s.logger.Debug(fmt.Sprintf("id %s is closing feed %s", id, err))
			}
			return
		}
		s.logger.RawDataEvent("IN", string(message))
	}
}

func (s *Server) writeSnapshot(conn *websocket.Conn, snapshot *checkout.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	s.logger.RawDataEvent("OUT", string(data))
	if err = conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) Start() error {
	if s.conf == nil {
		return utility.Err("configuration not loaded")
	}
	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIP, s.conf.Listen.Port)
	s.logger.Debug(fmt.Sprintf("starting server on %s", serverAddress))
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}
	if s.conf.Listen.TLS {
		s.logger.Debug("starting https TLS server")
		err = s.httpServer.ServeTLS(listener, s.conf.Listen.CertFile, s.conf.Listen.KeyFile)
	} else {
		s.logger.Debug("starting http server")
		err = s.httpServer.Serve(listener)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
