// Package media decodes the inbound Twilio media-stream protocol and feeds
// the per-call recognizer and transcript buffer.
package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/chadiek/telecare/internal/session"
	"github.com/chadiek/telecare/internal/transcript"
)

// Engine is the streaming recognizer a loop feeds decoded audio into.
type Engine interface {
	Connect() error
	SendPCM16LE(pcm []byte) error
	Fragments() <-chan string
	Close() error
}

// Orchestrator consumes one completed utterance for a session.
type Orchestrator interface {
	HandleUtterance(ctx context.Context, sess *session.Session, utterance string)
}

// WatcherStarter begins out-of-band status watching for a newly registered
// call.
type WatcherStarter interface {
	Watch(sess *session.Session)
}

// Transport is the message-oriented connection a loop reads from;
// *websocket.Conn satisfies it.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// envelope mirrors the Twilio media-stream message format.
type envelope struct {
	Event string        `json:"event"`
	Start *startPayload `json:"start,omitempty"`
	Media *mediaPayload `json:"media,omitempty"`
}

type startPayload struct {
	CallSID          string            `json:"callSid"`
	StreamSID        string            `json:"streamSid,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

// Loop drives one media-stream connection: it registers the call session on
// `start`, pushes decoded audio on `media`, and appends recognized fragments
// to the transcript buffer until the transport closes.
type Loop struct {
	registry       *session.Registry
	engine         Engine
	orch           Orchestrator
	watch          WatcherStarter
	defaultPatient session.Patient
	tick           time.Duration
	silence        time.Duration
}

// NewLoop builds a loop for a single connection. engine must be fresh per
// connection; registry, orch and watch are shared across calls.
func NewLoop(registry *session.Registry, engine Engine, orch Orchestrator, watch WatcherStarter,
	defaultPatient session.Patient, tick, silence time.Duration) *Loop {
	return &Loop{
		registry:       registry,
		engine:         engine,
		orch:           orch,
		watch:          watch,
		defaultPatient: defaultPatient,
		tick:           tick,
		silence:        silence,
	}
}

// Run consumes the transport until disconnect or an unrecoverable read
// error. On every exit path it releases the recognizer, cancels the silence
// detector and closes the transport. The status watcher is left running:
// call completion may be observed after the stream closes.
func (l *Loop) Run(ctx context.Context, conn Transport) error {
	if err := l.engine.Connect(); err != nil {
		_ = conn.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() { _ = conn.Close() }()
	defer func() { _ = l.engine.Close() }()

	buf := transcript.NewBuffer()
	go func() {
		for fragment := range l.engine.Fragments() {
			log.Printf("recognized: %s", fragment)
			buf.Append(fragment)
		}
	}()

	detectorStarted := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("media stream closed: %v", err)
			return nil
		}

		var msg envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("malformed media-stream message: %v", err)
			continue
		}

		switch msg.Event {
		case "start":
			if msg.Start == nil || msg.Start.CallSID == "" {
				log.Printf("start event without call SID, ignoring")
				continue
			}
			callSID := msg.Start.CallSID
			sess, created := l.registry.GetOrCreate(callSID, l.patientFrom(msg.Start))
			sess.Touch()
			log.Printf("[%s] media stream started (new session: %v)", callSID, created)
			if created && l.watch != nil {
				l.watch.Watch(sess)
			}
			if !detectorStarted {
				detectorStarted = true
				det := transcript.NewDetector(buf, l.tick, l.silence, func(utterance string) {
					l.orch.HandleUtterance(ctx, sess, utterance)
				})
				go det.Run(ctx)
			}
		case "media":
			if msg.Media == nil || msg.Media.Payload == "" {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				log.Printf("dropping media frame, base64 decode failed: %v", err)
				continue
			}
			if err := l.engine.SendPCM16LE(DecodeULaw(raw)); err != nil {
				log.Printf("recognizer rejected audio: %v", err)
			}
		case "stop":
			log.Printf("media stream paused")
		default:
			log.Printf("unknown media-stream event: %q", msg.Event)
		}
	}
}

// patientFrom resolves the patient identity for a call. Custom stream
// parameters win; the configured default identity is the fallback.
func (l *Loop) patientFrom(start *startPayload) session.Patient {
	p := l.defaultPatient
	if start.CustomParameters == nil {
		return p
	}
	if name := start.CustomParameters["patientName"]; name != "" {
		p.Name = name
	}
	if ageStr := start.CustomParameters["patientAge"]; ageStr != "" {
		if age, err := strconv.Atoi(ageStr); err == nil {
			p.Age = age
		} else {
			log.Printf("invalid patientAge parameter %q: %v", ageStr, err)
		}
	}
	return p
}
