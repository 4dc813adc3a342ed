package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/rubiojr/lunarvox/internal/recording"
	"github.com/rubiojr/lunarvox/internal/timefmt"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 * 1024

	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Command types sent by the chat view.
const (
	CmdStart       = "start"
	CmdPause       = "pause"
	CmdResume      = "resume"
	CmdStop        = "stop"
	CmdSend        = "send"
	CmdStopAndSend = "stop_and_send"
	CmdDiscard     = "discard"
)

// Event types pushed to the chat view.
const (
	EventState   = "state"
	EventLevels  = "levels"
	EventElapsed = "elapsed"
	EventPreview = "preview"
	EventSent    = "sent"
	EventError   = "error"
)

type command struct {
	Type string `json:"type"`
}

type event struct {
	Type    string             `json:"type"`
	Session *recording.Session `json:"session,omitempty"`
	Levels  []float64          `json:"levels,omitempty"`
	Seconds *int               `json:"seconds,omitempty"`
	Label   string             `json:"label,omitempty"`
	Asset   *recording.Asset   `json:"asset,omitempty"`
	URL     string             `json:"url,omitempty"`
	Message string             `json:"message,omitempty"`
}

// view is one connected chat view. It observes its controller and forwards
// every update to the websocket.
type view struct {
	id         string
	conn       *websocket.Conn
	controller *recording.Controller
	logger     *zap.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
	// lastSent is the ID of the message stored by the latest send.
	lastSent string

	// ctx is cancelled when the view goes away.
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	v := &view{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
	v.logger = s.logger.With(zap.String("view", v.id))

	opts := append([]recording.Option{}, s.opts.Controller...)
	opts = append(opts,
		recording.WithLogger(v.logger),
		recording.WithObserver(v),
		recording.WithNotifier(v),
	)
	thread := s.opts.Thread
	sink := recording.SinkFunc(func(ctx context.Context, asset recording.Asset) error {
		m, err := thread.Post(ctx, asset)
		if err != nil {
			return err
		}
		v.mu.Lock()
		v.lastSent = m.ID
		v.mu.Unlock()
		return nil
	})
	v.controller = recording.New(s.opts.Mic, s.opts.Blobs, sink, opts...)
	v.logger.Info("chat view connected")

	session := v.controller.Session()
	v.push(event{Type: EventState, Session: &session})

	go v.writePump()
	go v.readPump()
	return nil
}

// StateChanged implements recording.Observer.
func (v *view) StateChanged(s recording.Session) {
	v.push(event{Type: EventState, Session: &s})
}

// LevelsChanged implements recording.Observer.
func (v *view) LevelsChanged(levels []float64) {
	v.push(event{Type: EventLevels, Levels: levels})
}

// ElapsedChanged implements recording.Observer.
func (v *view) ElapsedChanged(seconds int) {
	v.push(event{Type: EventElapsed, Seconds: &seconds, Label: timefmt.Format(float64(seconds))})
}

// Error implements recording.Notifier.
func (v *view) Error(msg string) {
	v.push(event{Type: EventError, Message: msg})
}

// push queues ev without blocking; observers run under the controller lock.
func (v *view) push(ev event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		v.logger.Error("marshal event", zap.Error(err))
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	select {
	case v.send <- payload:
	default:
		v.logger.Warn("dropping event for slow view", zap.String("type", ev.Type))
	}
}

func (v *view) readPump() {
	defer v.close()

	v.conn.SetReadLimit(maxMessageSize)
	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		v.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := v.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				v.logger.Warn("websocket error", zap.Error(err))
			}
			return
		}
		var cmd command
		if err := json.Unmarshal(message, &cmd); err != nil {
			v.logger.Warn("malformed command", zap.Error(err))
			v.Error("Malformed command.")
			continue
		}
		v.handle(cmd)
	}
}

func (v *view) handle(cmd command) {
	v.logger.Debug("command", zap.String("type", cmd.Type))
	switch cmd.Type {
	case CmdStart:
		// Acquiring the microphone may block; keep reading so a discard
		// can abandon it.
		go func() {
			err := v.controller.Start(v.ctx)
			switch {
			case err == nil, errors.Is(err, recording.ErrAborted), errors.Is(err, recording.ErrClosed):
			case errors.Is(err, recording.ErrDeviceUnavailable):
				// Already reported through the notifier.
			default:
				v.Error(err.Error())
			}
		}()
	case CmdPause:
		v.controller.Pause()
	case CmdResume:
		v.controller.Resume()
	case CmdDiscard:
		v.controller.Discard()
	case CmdStop:
		asset, err := v.controller.Stop()
		if err != nil {
			v.commandFailed(cmd, err)
			return
		}
		v.push(event{Type: EventPreview, Asset: &asset, URL: "/blobs/" + asset.Ref.String(), Label: timefmt.Format(float64(asset.DurationSeconds))})
	case CmdSend:
		asset, err := v.controller.Send(v.ctx)
		if err != nil {
			v.commandFailed(cmd, err)
			return
		}
		v.pushSent(asset)
	case CmdStopAndSend:
		asset, err := v.controller.StopAndSend(v.ctx)
		if err != nil {
			v.commandFailed(cmd, err)
			return
		}
		v.pushSent(asset)
	default:
		v.logger.Warn("unknown command", zap.String("type", cmd.Type))
		v.Error("Unknown command " + cmd.Type + ".")
	}
}

// pushSent reports a stored message. Its preview blob is gone, so clients
// play it from the message audio route.
func (v *view) pushSent(asset recording.Asset) {
	v.mu.Lock()
	id := v.lastSent
	v.mu.Unlock()
	v.push(event{Type: EventSent, Asset: &asset, URL: "/api/v1/messages/" + id + "/audio"})
}

// commandFailed reports state errors; device and send failures were
// already shown through the notifier.
func (v *view) commandFailed(cmd command, err error) {
	v.logger.Debug("command failed", zap.String("type", cmd.Type), zap.Error(err))
	switch {
	case errors.Is(err, recording.ErrNotRecording), errors.Is(err, recording.ErrNoPreview):
		v.Error("Nothing to " + cmd.Type + ".")
	}
}

func (v *view) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case message, ok := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				v.logger.Warn("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close tears the view down: any take is discarded, the microphone is
// released and the preview revoked before the send queue closes.
func (v *view) close() {
	v.cancel()
	v.controller.Close()
	v.mu.Lock()
	if !v.closed {
		v.closed = true
		close(v.send)
	}
	v.mu.Unlock()
	v.conn.Close()
	v.logger.Info("chat view disconnected")
}
