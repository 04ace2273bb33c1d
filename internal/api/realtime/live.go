// Package realtime serves the live transcription WebSocket. Clients stream
// binary audio chunks and receive JSON transcript events; a flush control
// message forces transcription of everything buffered so far.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/usefreetools/toolbox/internal/speech"
	"github.com/usefreetools/toolbox/pkg/fault"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20

	// Sessions transcribe at most this much buffered audio.
	maxSessionAudio = 25 << 20

	segmentTimeout = 30 * time.Second
)

// ControlMessage is the JSON control frame clients send as text messages.
type ControlMessage struct {
	Type     string `json:"type"` // "flush" or "stop"
	MimeType string `json:"mimeType,omitempty"`
}

// TranscriptEvent is pushed to the client after each flush.
type TranscriptEvent struct {
	Type       string  `json:"type"` // "transcript" or "error"
	Transcript string  `json:"transcript,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
	Code       string  `json:"code,omitempty"`
	Final      bool    `json:"final"`
}

// Server upgrades live-transcription connections.
type Server struct {
	transcriber speech.Transcriber
	upgrader    websocket.Upgrader
}

func NewServer(transcriber speech.Transcriber) *Server {
	return &Server{
		transcriber: transcriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The REST surface is open cross-origin; the socket follows suit.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	session := &session{
		server: s,
		conn:   conn,
		mime:   "audio/wav",
	}
	session.run(r.Context())
}

// session is one live connection. The read loop owns the audio buffer; the
// write mutex serializes transcript pushes with keepalive pings.
type session struct {
	server *Server
	conn   *websocket.Conn
	mime   string

	writeMu sync.Mutex
	buffer  bytes.Buffer
}

func (s *session) run(ctx context.Context) {
	defer s.conn.Close()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	pingCtx, stopPings := context.WithCancel(ctx)
	defer stopPings()
	go s.pingLoop(pingCtx)

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("live session closed unexpectedly", "error", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msgType {
		case websocket.BinaryMessage:
			if s.buffer.Len()+len(data) > maxSessionAudio {
				s.send(TranscriptEvent{
					Type:  "error",
					Error: "Session audio limit exceeded",
					Code:  "PAYLOAD_TOO_LARGE",
					Final: true,
				})
				return
			}
			s.buffer.Write(data)

		case websocket.TextMessage:
			var control ControlMessage
			if err := json.Unmarshal(data, &control); err != nil {
				s.send(TranscriptEvent{Type: "error", Error: "Invalid control message", Code: "VALIDATION_FAILED"})
				continue
			}
			if control.MimeType != "" {
				s.mime = control.MimeType
			}
			switch control.Type {
			case "flush":
				s.flush(ctx, false)
			case "stop":
				s.flush(ctx, true)
				return
			default:
				s.send(TranscriptEvent{Type: "error", Error: "Unknown control type", Code: "VALIDATION_FAILED"})
			}
		}
	}
}

// flush transcribes the buffered audio and pushes the result. The buffer is
// reset afterwards so segments do not overlap.
func (s *session) flush(ctx context.Context, final bool) {
	if s.buffer.Len() == 0 {
		s.send(TranscriptEvent{Type: "transcript", Transcript: "", Final: final})
		return
	}

	audio := make([]byte, s.buffer.Len())
	copy(audio, s.buffer.Bytes())
	s.buffer.Reset()

	callCtx, cancel := context.WithTimeout(ctx, segmentTimeout)
	defer cancel()

	transcript, err := s.server.transcriber.Transcribe(callCtx, speech.Audio{
		Bytes:    audio,
		MimeType: s.mime,
	})
	if err != nil {
		s.send(TranscriptEvent{
			Type:  "error",
			Error: "Transcription failed",
			Code:  fault.CodeOf(err),
			Final: final,
		})
		return
	}

	s.send(TranscriptEvent{
		Type:       "transcript",
		Transcript: transcript.Text,
		Confidence: transcript.Confidence,
		Final:      final,
	})
}

func (s *session) send(event TranscriptEvent) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(event); err != nil {
		slog.Debug("live session write failed", "error", err)
	}
}

func (s *session) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
