package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/san-kum/fencing-cv/server/models"
	"github.com/san-kum/fencing-cv/server/pose"
	"github.com/san-kum/fencing-cv/server/processor"
	"go.uber.org/zap"
)

const (
	wsReadLimit    = 10 * 1024 * 1024
	wsPongWait     = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsWriteWait    = 10 * time.Second
)

type WebSocketHandler struct {
	processor   *processor.AnalysisProcessor
	logger      *zap.Logger
	defaultPose pose.Stance
	upgrader    websocket.Upgrader
}

// ClientMessage is a message from the browser. For "frame" messages Data is
// an image data URL; for "config" messages it is a JSON object.
type ClientMessage struct {
	Type      string `json:"type"`
	Data      string `json:"data"`
	PoseType  string `json:"pose_type,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type sessionConfig struct {
	PoseType string `json:"pose_type"`
}

// session is one websocket connection. gorilla connections allow a single
// concurrent writer, so every write goes through writeMu.
type session struct {
	conn     *websocket.Conn
	clientID string
	poseType pose.Stance
	writeMu  sync.Mutex
	inflight sync.WaitGroup
}

func NewWebSocketHandler(processor *processor.AnalysisProcessor, defaultPose pose.Stance, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		processor:   processor,
		logger:      logger,
		defaultPose: defaultPose,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket connection", zap.Error(err))
		return
	}

	s := &session{
		conn:     conn,
		clientID: conn.RemoteAddr().String(),
		poseType: h.defaultPose,
	}
	h.logger.Info("WebSocket client connected",
		zap.String("client_ip", c.ClientIP()),
		zap.String("client_id", s.clientID))

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		s.inflight.Wait()
		conn.Close()
		h.logger.Info("WebSocket client disconnected", zap.String("client_id", s.clientID))
	}()

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	go h.pingRoutine(ctx, s)

	for {
		var message ClientMessage
		if err := conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		h.handleMessage(ctx, s, &message)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, s *session, message *ClientMessage) {
	switch message.Type {
	case "frame":
		h.analyzeFrame(ctx, s, message)
	case "ping":
		h.send(s, "pong", map[string]any{"timestamp": time.Now().Unix()})
	case "config":
		h.handleConfigUpdate(s, message)
	default:
		h.logger.Warn("Unknown message type received", zap.String("type", message.Type))
		h.sendError(s, "Unknown message type: "+message.Type)
	}
}

func (h *WebSocketHandler) analyzeFrame(ctx context.Context, s *session, message *ClientMessage) {
	stance := s.poseType
	if message.PoseType != "" {
		parsed, err := pose.ParseStance(message.PoseType)
		if err != nil {
			h.sendError(s, "Invalid pose type: "+message.PoseType)
			return
		}
		stance = parsed
	}

	imageData, err := processor.DecodeDataURL(message.Data)
	if err != nil {
		h.logger.Debug("Failed to extract image data", zap.Error(err))
		h.sendError(s, "Invalid image data format")
		return
	}

	request := &processor.AnalysisRequest{
		ImageData: imageData,
		PoseType:  stance,
		ClientID:  s.clientID,
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		response, err := h.processor.Process(ctx, request)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			_, msg := errorStatus(err)
			h.logger.Error("Frame analysis failed", zap.Error(err), zap.String("client_id", s.clientID))
			h.sendError(s, msg)
			return
		}

		h.send(s, "analysis", response)
	}()
}

func (h *WebSocketHandler) handleConfigUpdate(s *session, message *ClientMessage) {
	var config sessionConfig
	if err := json.Unmarshal([]byte(message.Data), &config); err != nil {
		h.sendError(s, "Invalid configuration format")
		return
	}

	stance, err := pose.ParseStance(config.PoseType)
	if err != nil {
		h.sendError(s, "Invalid pose type: "+config.PoseType)
		return
	}
	s.poseType = stance

	h.send(s, "config_updated", map[string]any{
		"status":    "success",
		"pose_type": stance,
	})
}

func (h *WebSocketHandler) send(s *session, messageType string, data any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	message := models.WSMessage{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := s.conn.WriteJSON(message); err != nil {
		h.logger.Warn("Failed to send WebSocket message", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(s *session, errorMsg string) {
	h.send(s, "error", map[string]any{
		"message": errorMsg,
	})
}

func (h *WebSocketHandler) pingRoutine(ctx context.Context, s *session) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			s.writeMu.Unlock()
			if err != nil {
				h.logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
