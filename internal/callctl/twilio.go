// Package callctl wraps the Twilio REST API: outbound call placement,
// mid-call TwiML updates for playback, and status polling.
package callctl

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
)

const (
	sayVoice    = "Polly.Lea-Neural"
	sayLanguage = "fr-FR"
	greeting    = "Bonjour, je suis votre assistante médicale"
)

// Service is the call-control side channel shared by the orchestrator, the
// status watcher and the HTTP layer.
type Service struct {
	client       *twilio.RestClient
	callerNumber string
	publicHost   string
}

// New builds the service. publicHost may be a bare hostname or a full URL.
func New(accountSID, authToken, callerNumber, publicHost string) *Service {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Service{
		client:       client,
		callerNumber: callerNumber,
		publicHost:   publicHost,
	}
}

func (s *Service) publicURL() string {
	if strings.HasPrefix(s.publicHost, "http://") || strings.HasPrefix(s.publicHost, "https://") {
		return strings.TrimRight(s.publicHost, "/")
	}
	return "https://" + strings.TrimRight(s.publicHost, "/")
}

// Speak updates the live call to say text, then redirects it back into the
// incoming-call entry point so the conversation loop continues.
func (s *Service) Speak(ctx context.Context, callSID, text string) error {
	doc, err := speakTwiML(text, s.publicURL())
	if err != nil {
		return fmt.Errorf("failed to build playback TwiML: %w", err)
	}
	params := &twilioApi.UpdateCallParams{}
	params.SetTwiml(doc)
	if _, err := s.client.Api.UpdateCall(callSID, params); err != nil {
		return fmt.Errorf("failed to update call %s: %w", callSID, err)
	}
	log.Printf("[%s] call updated to play reply", callSID)
	return nil
}

// speakTwiML builds the say-then-redirect document used for every reply.
func speakTwiML(text, publicURL string) (string, error) {
	say := &twiml.VoiceSay{Message: text, Voice: sayVoice, Language: sayLanguage}
	redirect := &twiml.VoiceRedirect{Url: publicURL + "/incoming-call?redirected=true"}
	return twiml.Voice([]twiml.Element{say, redirect})
}

// Status fetches the provider's view of the call ("queued", "in-progress",
// "completed", ...).
func (s *Service) Status(ctx context.Context, callSID string) (string, error) {
	call, err := s.client.Api.FetchCall(callSID, &twilioApi.FetchCallParams{})
	if err != nil {
		return "", fmt.Errorf("failed to fetch call %s: %w", callSID, err)
	}
	if call.Status == nil {
		return "", fmt.Errorf("call %s has no status", callSID)
	}
	return *call.Status, nil
}

// Place starts an outbound call to number and returns the new call SID. The
// DTMF digits unlock automated phone gateways in retirement facilities.
func (s *Service) Place(ctx context.Context, number string) (string, error) {
	params := &twilioApi.CreateCallParams{}
	params.SetFrom(s.callerNumber)
	params.SetTo(number)
	params.SetUrl(s.publicURL() + "/incoming-call")
	params.SetMethod("GET")
	params.SetSendDigits("1234#")

	call, err := s.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("failed to place call to %s: %w", number, err)
	}
	if call.Sid == nil {
		return "", fmt.Errorf("created call to %s has no SID", number)
	}
	log.Printf("outbound call placed to %s, SID %s", number, *call.Sid)
	return *call.Sid, nil
}

// IncomingTwiML builds the answer document for the incoming-call webhook:
// greet on first entry, then connect the media stream. Re-entries after a
// reply redirect skip the greeting.
func IncomingTwiML(host string, redirected bool) (string, error) {
	var elements []twiml.Element
	if !redirected {
		elements = append(elements, &twiml.VoiceSay{
			Message:  greeting,
			Voice:    sayVoice,
			Language: sayLanguage,
		})
	}
	stream := &twiml.VoiceStream{Url: fmt.Sprintf("wss://%s/media-stream", host)}
	connect := &twiml.VoiceConnect{InnerElements: []twiml.Element{stream}}
	elements = append(elements, connect)
	return twiml.Voice(elements)
}
