package http

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/engine"
)

// WSHandler drives one quiz session over a websocket. Every state change,
// including per-second clock ticks and timer-forced advances, is pushed
// to the client as a "state" message.
type WSHandler struct {
	service  *engine.Service
	upgrader websocket.Upgrader
}

func NewWSHandler(service *engine.Service) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	CategoryID             string `json:"categoryId"`
	Username               string `json:"username"`
	TimePerQuestionSeconds int    `json:"timePerQuestionSeconds"`
	Shuffle                bool   `json:"shuffle"`
	ShuffleOptions         bool   `json:"shuffleOptions"`
}

type answerPayload struct {
	Kind   string   `json:"kind"`
	Value  string   `json:"value"`
	Values []string `json:"values"`
}

type markPayload struct {
	Index *int `json:"index"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the
// session use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	var (
		cancelSub func()
		pumpDone  chan struct{}
	)
	attach := func(session *engine.Session) {
		if cancelSub != nil {
			cancelSub()
			<-pumpDone
		}
		updates, cancel := session.Subscribe()
		done := make(chan struct{})
		go func() {
			defer close(done)
			for update := range updates {
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: update}:
				case <-closeSignals:
					return
				}
			}
		}()
		cancelSub = cancel
		pumpDone = done
	}

	if session, ok := h.service.Current(); ok {
		attach(session)
	}

	ctx := r.Context()
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}

		switch inbound.Type {
		case "start":
			var payload startPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid start payload")
				continue
			}
			session, err := h.service.StartSession(ctx, payload.CategoryID, engine.StartOptions{
				Username:               payload.Username,
				TimePerQuestionSeconds: payload.TimePerQuestionSeconds,
				Shuffle:                payload.Shuffle,
				ShuffleOptions:         payload.ShuffleOptions,
			})
			if err != nil {
				send <- errorMessage(err.Error())
				continue
			}
			attach(session)
		case "resume":
			session, err := h.service.Resume(ctx)
			if err != nil {
				send <- errorMessage(err.Error())
				continue
			}
			attach(session)
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid answer payload")
				continue
			}
			answer, err := payload.toAnswer()
			if err != nil {
				send <- errorMessage(err.Error())
				continue
			}
			h.withSession(send, func(session *engine.Session) error {
				return session.SubmitAnswer(ctx, answer)
			})
		case "advance":
			h.withSession(send, func(session *engine.Session) error {
				return session.Advance(ctx)
			})
		case "retreat":
			h.withSession(send, func(session *engine.Session) error {
				return session.Retreat(ctx)
			})
		case "mark":
			var payload markPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					send <- errorMessage("invalid mark payload")
					continue
				}
			}
			h.withSession(send, func(session *engine.Session) error {
				if payload.Index == nil {
					return session.ToggleMarkCurrent(ctx)
				}
				return session.ToggleMark(ctx, *payload.Index)
			})
		case "submit":
			h.withSession(send, func(session *engine.Session) error {
				return session.SubmitQuiz(ctx)
			})
		case "reset":
			if err := h.service.Reset(ctx); err != nil {
				send <- errorMessage(err.Error())
			}
		default:
			send <- errorMessage("unsupported message type")
		}
	}

	close(closeSignals)
	if cancelSub != nil {
		cancelSub()
		<-pumpDone
	}
	close(send)
	<-writerDone
}

func (h *WSHandler) withSession(send chan<- outboundMessage[any], op func(*engine.Session) error) {
	session, ok := h.service.Current()
	if !ok {
		send <- errorMessage("no active session")
		return
	}
	if err := op(session); err != nil {
		send <- errorMessage(err.Error())
	}
}

func (p answerPayload) toAnswer() (domain.Answer, error) {
	switch domain.AnswerKind(p.Kind) {
	case domain.AnswerSingle:
		return domain.SingleAnswer(p.Value), nil
	case domain.AnswerMulti:
		return domain.MultiAnswer(p.Values...), nil
	case domain.AnswerText:
		return domain.TextAnswer(p.Value), nil
	default:
		return domain.Answer{}, fmt.Errorf("unknown answer kind %q", p.Kind)
	}
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}
