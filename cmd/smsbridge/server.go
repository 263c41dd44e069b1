package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"smsbridge/internal/constants"
	"smsbridge/internal/database"
	"smsbridge/internal/httputil"
	"smsbridge/internal/metrics"
	"smsbridge/internal/models"
	"smsbridge/internal/service"
	"smsbridge/internal/validation"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server exposes the webhook and operational endpoints.
type Server struct {
	router   *mux.Router
	server   *http.Server
	inbound  *service.InboundRouter
	commands *service.CommandService
	queue    *service.MessageQueue
	db       *database.Database
	registry *metrics.Registry
	cfg      *models.Config
	logger   *logrus.Logger
}

func NewServer(cfg *models.Config, inbound *service.InboundRouter, commands *service.CommandService, queue *service.MessageQueue, db *database.Database, registry *metrics.Registry, logger *logrus.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		inbound:  inbound,
		commands: commands,
		queue:    queue,
		db:       db,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(constants.DefaultServerIdleTimeoutSec) * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	webhooks := s.router.PathPrefix("/webhook").Subrouter()
	webhooks.Use(s.authMiddleware)
	webhooks.HandleFunc("/sms", s.handleInboundSMS).Methods(http.MethodPost)
	webhooks.HandleFunc("/membership", s.handleMembership).Methods(http.MethodPost)
	webhooks.HandleFunc("/send", s.handleSend).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("Starting HTTP server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// authMiddleware enforces the shared webhook secret when one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.WebhookSecret != "" {
			provided := r.Header.Get("X-Webhook-Secret")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.Server.WebhookSecret)) != 1 {
				s.logger.WithField("client_ip", httputil.GetClientIP(r)).Warn("Rejected webhook request with invalid secret")
				s.writeError(w, http.StatusUnauthorized, "invalid webhook secret")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.GetSnapshot())
}

type inboundSMSRequest struct {
	From string `json:"from"`
	Body string `json:"body"`
}

type inboundSMSResponse struct {
	Reply string `json:"reply,omitempty"`
}

func (s *Server) handleInboundSMS(w http.ResponseWriter, r *http.Request) {
	var req inboundSMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validation.ValidatePhoneNumber(req.From); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid sender number")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"client_ip": httputil.GetClientIP(r),
	}).Debug("Received inbound SMS webhook")

	reply, err := s.inbound.ReceiveSMS(r.Context(), req.Body, req.From)
	if err != nil {
		s.logger.WithError(err).Error("Failed to route inbound SMS")
		s.writeError(w, http.StatusBadGateway, "failed to deliver message")
		return
	}
	s.writeJSON(w, http.StatusOK, inboundSMSResponse{Reply: reply})
}

type membershipEvent struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Event  string `json:"event"`
}

func (s *Server) handleMembership(w http.ResponseWriter, r *http.Request) {
	var evt membershipEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if evt.RoomID == "" || evt.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "roomId and userId are required")
		return
	}

	var err error
	switch evt.Event {
	case "join":
		if err = s.db.GetOrCreateUser(r.Context(), evt.UserID, validation.IsVirtualUserID(evt.UserID)); err == nil {
			err = s.db.RecordMembership(r.Context(), evt.RoomID, evt.UserID)
		}
		// Joining virtual users get a mapping token, so their SMS side can
		// address this room with a "#<token>" prefix.
		if err == nil && validation.IsVirtualUserID(evt.UserID) {
			var token int
			if token, err = s.db.AllocateMappingToken(r.Context(), evt.UserID, evt.RoomID); err == nil {
				s.logger.WithFields(logrus.Fields{
					"roomId": evt.RoomID,
					"userId": evt.UserID,
					"token":  token,
				}).Debug("Allocated mapping token")
			}
		}
	case "leave":
		err = s.db.RemoveMembership(r.Context(), evt.RoomID, evt.UserID)
		// A room the bot left can never deliver again; drop its queue.
		if err == nil && evt.UserID == validation.BotUserID(s.cfg.Matrix.BotUsername, s.cfg.Matrix.ServerName) {
			err = s.queue.DeleteByRoom(r.Context(), evt.RoomID)
		}
	default:
		s.writeError(w, http.StatusBadRequest, "event must be join or leave")
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to record membership change")
		s.writeError(w, http.StatusInternalServerError, "failed to record membership")
		return
	}

	// A join may unblock queued messages for the room.
	if evt.Event == "join" {
		go s.queue.Drain(context.Background())
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sendCommandRequest struct {
	Body            string   `json:"body"`
	SenderID        string   `json:"senderId"`
	ReceiverNumbers []string `json:"receiverNumbers"`
	RoomName        string   `json:"roomName,omitempty"`
	SendAfter       string   `json:"sendAfter,omitempty"`
	RoomCreation    string   `json:"roomCreation,omitempty"`
}

type sendCommandResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SenderID == "" || len(req.ReceiverNumbers) == 0 {
		s.writeError(w, http.StatusBadRequest, "senderId and receiverNumbers are required")
		return
	}

	mode := models.RoomCreationMode(req.RoomCreation)
	switch mode {
	case "":
		mode = models.RoomCreationAuto
	case models.RoomCreationAuto, models.RoomCreationAlways, models.RoomCreationNo:
	default:
		s.writeError(w, http.StatusBadRequest, "roomCreation must be AUTO, ALWAYS or NO")
		return
	}

	sendReq := service.SendRequest{
		Body:            req.Body,
		SenderID:        req.SenderID,
		ReceiverNumbers: req.ReceiverNumbers,
		RoomName:        req.RoomName,
		Mode:            mode,
	}
	if req.SendAfter != "" {
		parsed, err := time.Parse("2006-01-02 15:04:05", req.SendAfter)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "sendAfter must use format 2006-01-02 15:04:05")
			return
		}
		sendReq.SendAfter = &parsed
	}

	message := s.commands.SendToReceivers(r.Context(), sendReq)
	s.writeJSON(w, http.StatusOK, sendCommandResponse{Message: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
