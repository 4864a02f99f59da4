// Package stt wraps the AssemblyAI v3 realtime websocket API as a streaming
// recognizer for 8kHz telephony audio.
package stt

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// AssemblyAI streams PCM to the realtime endpoint and emits finalized
// utterance fragments. Interim results are ignored; end-of-utterance
// segmentation from silence is the caller's concern.
type AssemblyAI struct {
	apiKey     string
	sampleRate int
	language   string

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool

	fragments chan string
	audioData chan []byte
	stopCh    chan struct{}
}

type beginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type turnMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	EndOfTurn  bool   `json:"end_of_turn"`
}

type terminationMessage struct {
	Type                   string  `json:"type"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// NewAssemblyAI creates a recognizer for mono PCM16LE input at sampleRate.
func NewAssemblyAI(apiKey string, sampleRate int) *AssemblyAI {
	return &AssemblyAI{
		apiKey:     apiKey,
		sampleRate: sampleRate,
		fragments:  make(chan string, 10),
		audioData:  make(chan []byte, 1000),
		stopCh:     make(chan struct{}),
	}
}

// Connect establishes the websocket session and starts the read/write
// goroutines. Calling it on a connected service is a no-op.
func (s *AssemblyAI) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}
	if s.apiKey == "" {
		return fmt.Errorf("AssemblyAI API key is empty")
	}

	params := url.Values{}
	params.Set("sample_rate", fmt.Sprintf("%d", s.sampleRate))
	params.Set("encoding", "pcm_s16le")
	params.Set("format_turns", "false")

	wsURL := fmt.Sprintf("wss://streaming.assemblyai.com/v3/ws?%s", params.Encode())
	headers := map[string][]string{"Authorization": {s.apiKey}}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("AssemblyAI connection failed with status: %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to connect to AssemblyAI: %w", err)
	}

	s.conn = conn
	s.connected = true

	go s.handleMessages()
	go s.sendAudioData()

	log.Println("Connected to AssemblyAI streaming service")
	return nil
}

// SendPCM16LE queues an audio chunk for delivery. When the queue is full the
// chunk is dropped rather than blocking the media loop.
func (s *AssemblyAI) SendPCM16LE(pcm []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return fmt.Errorf("not connected to AssemblyAI")
	}
	select {
	case s.audioData <- pcm:
	default:
		log.Println("Audio buffer full, dropping packet")
	}
	return nil
}

// Fragments returns the channel of finalized utterance fragments. It is
// closed by Close.
func (s *AssemblyAI) Fragments() <-chan string { return s.fragments }

// Close terminates the session and releases the connection. Safe to call on
// every exit path.
func (s *AssemblyAI) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	close(s.stopCh)
	if s.conn != nil {
		_ = s.conn.WriteJSON(map[string]string{"type": "Terminate"})
		_ = s.conn.Close()
	}
	s.connected = false
	s.conn = nil
	close(s.audioData)
	close(s.fragments)
	log.Println("AssemblyAI connection closed")
	return nil
}

func (s *AssemblyAI) handleMessages() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in handleMessages: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		default:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Printf("Error reading AssemblyAI message: %v", err)
				return
			}
			s.processMessage(message)
		}
	}
}

func (s *AssemblyAI) processMessage(message []byte) {
	var baseMsg map[string]interface{}
	if err := json.Unmarshal(message, &baseMsg); err != nil {
		log.Printf("Error unmarshaling AssemblyAI message: %v", err)
		return
	}
	msgType, ok := baseMsg["type"].(string)
	if !ok {
		log.Printf("AssemblyAI message missing type field")
		return
	}
	switch msgType {
	case "Begin":
		var msg beginMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling Begin message: %v", err)
			return
		}
		expires := time.Unix(msg.ExpiresAt, 0).Format(time.RFC3339)
		log.Printf("AssemblyAI session began: ID=%s, ExpiresAt=%s", msg.ID, expires)
	case "Turn":
		var msg turnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling Turn message: %v", err)
			return
		}
		if msg.EndOfTurn && msg.Transcript != "" {
			select {
			case <-s.stopCh:
			case s.fragments <- msg.Transcript:
			}
		}
	case "Termination":
		var msg terminationMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling Termination message: %v", err)
			return
		}
		log.Printf("AssemblyAI session terminated: AudioDuration=%.2fs, SessionDuration=%.2fs",
			msg.AudioDurationSeconds, msg.SessionDurationSeconds)
	case "Error":
		var msg errorMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling Error message: %v", err)
			return
		}
		log.Printf("AssemblyAI error: %s", msg.Error)
	default:
		log.Printf("Unknown AssemblyAI message type: %s", msgType)
	}
}

func (s *AssemblyAI) sendAudioData() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in sendAudioData: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		case audioData, ok := <-s.audioData:
			if !ok {
				return
			}
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				if err := conn.WriteMessage(websocket.BinaryMessage, audioData); err != nil {
					log.Printf("Error sending audio data: %v", err)
					return
				}
			}
		}
	}
}
