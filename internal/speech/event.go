package speech

import (
	"errors"
	"strings"

	"github.com/goccy/go-json"
)

// ErrMalformedMessage is returned for upstream messages that do not match any
// known event shape.
var ErrMalformedMessage = errors.New("malformed upstream message")

// Message types sent by the speech backend.
const (
	TypeResults       = "Results"
	TypeMetadata      = "Metadata"
	TypeUtteranceEnd  = "UtteranceEnd"
	TypeSpeechStarted = "SpeechStarted"
	TypeError         = "Error"
)

// Event is a decoded upstream message. Exactly one of the variant pointers is
// set. Raw keeps the original bytes so the event can be relayed unchanged.
type Event struct {
	Type          string
	Transcription *Transcription
	Metadata      *Metadata
	Notice        *Notice
	Failure       *Failure
	Raw           []byte
}

// Transcription is an interim or final recognition result.
type Transcription struct {
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Start       float64 `json:"start"`
	Duration    float64 `json:"duration"`
	Channel     *struct {
		Alternatives []Alternative `json:"alternatives"`
	} `json:"channel"`
}

type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words"`
}

type Word struct {
	Word    string  `json:"word"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker *int    `json:"speaker,omitempty"`
}

// Metadata describes the upstream request once the stream is accepted.
type Metadata struct {
	RequestID string  `json:"request_id"`
	Duration  float64 `json:"duration"`
	Channels  int     `json:"channels"`
}

// Notice covers the voice-activity events (speech started, utterance end).
type Notice struct {
	Timestamp   float64 `json:"timestamp"`
	LastWordEnd float64 `json:"last_word_end"`
}

// Failure is an error reported in-band by the speech backend.
type Failure struct {
	Code        string `json:"err_code"`
	Message     string `json:"err_msg"`
	Description string `json:"description"`
}

// Text returns the trimmed transcript of the first alternative.
func (t *Transcription) Text() string {
	if t.Channel == nil || len(t.Channel.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(t.Channel.Alternatives[0].Transcript)
}

// SpeakerIndex returns the diarization index of the first word, or -1 when the
// result carries no speaker information.
func (t *Transcription) SpeakerIndex() int {
	if t.Channel == nil || len(t.Channel.Alternatives) == 0 {
		return -1
	}
	words := t.Channel.Alternatives[0].Words
	if len(words) == 0 || words[0].Speaker == nil {
		return -1
	}
	return *words[0].Speaker
}

// Decode validates and decodes one upstream message. Messages without a type
// field are treated as transcription results.
func Decode(raw []byte) (*Event, error) {
	var envelope struct {
		Type    string          `json:"type"`
		Channel json.RawMessage `json:"channel"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, ErrMalformedMessage
	}

	event := &Event{Type: envelope.Type, Raw: raw}
	switch envelope.Type {
	case TypeResults, "":
		if len(envelope.Channel) == 0 {
			return nil, ErrMalformedMessage
		}
		var t Transcription
		if err := json.Unmarshal(raw, &t); err != nil || t.Channel == nil || t.Channel.Alternatives == nil {
			return nil, ErrMalformedMessage
		}
		event.Type = TypeResults
		event.Transcription = &t
	case TypeMetadata:
		var m Metadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, ErrMalformedMessage
		}
		event.Metadata = &m
	case TypeSpeechStarted, TypeUtteranceEnd:
		var n Notice
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, ErrMalformedMessage
		}
		event.Notice = &n
	case TypeError:
		var f Failure
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, ErrMalformedMessage
		}
		event.Failure = &f
	default:
		return nil, ErrMalformedMessage
	}

	return event, nil
}
