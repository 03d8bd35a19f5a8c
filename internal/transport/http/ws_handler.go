package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"quiz-bot/internal/app"
)

// Dispatcher handles one normalized chat event.
type Dispatcher interface {
	Handle(ctx context.Context, ev app.Event) []app.Reply
}

// WSHandler exposes the bot as a WebSocket chat, one connection per user.
type WSHandler struct {
	bot      Dispatcher
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(bot Dispatcher, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		bot:    bot,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type replyPayload struct {
	Text    string            `json:"text"`
	Buttons [][]buttonPayload `json:"buttons,omitempty"`
}

type buttonPayload struct {
	Text   string `json:"text"`
	Action string `json:"action"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and feeds every inbound message to the bot.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	displayName := r.URL.Query().Get("name")
	if err != nil || displayName == "" {
		http.Error(w, "missing userId or name", http.StatusBadRequest)
		return
	}
	user := app.User{ID: userID, Username: r.URL.Query().Get("username"), FullName: displayName}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", "user_id", userID, "error", err)
				return
			}
		}
	}()

read:
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		ev, ok := toEvent(user, inbound)
		if !ok {
			if !enqueue(send, writerDone, outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message"}}) {
				break
			}
			continue
		}
		for _, reply := range h.bot.Handle(r.Context(), ev) {
			if !enqueue(send, writerDone, outboundMessage[any]{Type: "reply", Payload: toPayload(reply)}) {
				break read
			}
		}
	}

	close(send)
	<-writerDone
}

// enqueue hands msg to the writer. It reports false once the writer has stopped.
func enqueue(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}

func toEvent(user app.User, msg inboundMessage) (app.Event, bool) {
	switch msg.Type {
	case "command":
		command, args, ok := ParseCommand(msg.Payload)
		if !ok {
			return app.Event{}, false
		}
		return app.CommandEvent(user, command, args), true
	case "text":
		if command, args, ok := ParseCommand(msg.Payload); ok {
			return app.CommandEvent(user, command, args), true
		}
		return app.TextEvent(user, msg.Payload), true
	case "action":
		action, ok := app.DecodeAction(msg.Payload)
		if !ok {
			return app.Event{}, false
		}
		return app.ActionEvent(user, action), true
	default:
		return app.Event{}, false
	}
}

// ParseCommand splits "/join ABC123" into ("join", "ABC123"). A bot suffix
// such as "/start@quiz_bot" is dropped.
func ParseCommand(line string) (command, args string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") || len(line) == 1 {
		return "", "", false
	}
	command, args, _ = strings.Cut(line[1:], " ")
	command, _, _ = strings.Cut(command, "@")
	if command == "" {
		return "", "", false
	}
	return command, strings.TrimSpace(args), true
}

func toPayload(reply app.Reply) replyPayload {
	out := replyPayload{Text: reply.Text}
	for _, row := range reply.Keyboard {
		buttons := make([]buttonPayload, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, buttonPayload{Text: b.Text, Action: app.EncodeAction(b.Action)})
		}
		out.Buttons = append(out.Buttons, buttons)
	}
	return out
}

// Health answers liveness probes.
func Health(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

// NewMux mounts the health probe and the chat endpoint.
func NewMux(ws *WSHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", Health)
	mux.HandleFunc("/ws", ws.ServeWS)
	return mux
}
