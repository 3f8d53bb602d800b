package speech

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTranscription(t *testing.T) {
	raw := []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":" wat is het probleem ","words":[{"word":"wat","speaker":0},{"word":"is","speaker":1}]}]}}`)

	event, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, event.Transcription)
	assert.Equal(t, TypeResults, event.Type)
	assert.True(t, event.Transcription.IsFinal)
	assert.Equal(t, "wat is het probleem", event.Transcription.Text())
	assert.Equal(t, 0, event.Transcription.SpeakerIndex())
	assert.Equal(t, raw, event.Raw)
}

func TestDecodeUntypedTranscription(t *testing.T) {
	event, err := Decode([]byte(`{"is_final":false,"channel":{"alternatives":[{"transcript":"hallo","words":[]}]}}`))
	require.NoError(t, err)
	require.NotNil(t, event.Transcription)
	assert.False(t, event.Transcription.IsFinal)
	assert.Equal(t, -1, event.Transcription.SpeakerIndex())
}

func TestDecodeOtherVariants(t *testing.T) {
	event, err := Decode([]byte(`{"type":"Metadata","request_id":"r-1","channels":1}`))
	require.NoError(t, err)
	require.NotNil(t, event.Metadata)
	assert.Equal(t, "r-1", event.Metadata.RequestID)

	event, err = Decode([]byte(`{"type":"UtteranceEnd","last_word_end":2.5}`))
	require.NoError(t, err)
	require.NotNil(t, event.Notice)
	assert.Equal(t, 2.5, event.Notice.LastWordEnd)

	event, err = Decode([]byte(`{"type":"Error","err_code":"BAD","description":"nope"}`))
	require.NoError(t, err)
	require.NotNil(t, event.Failure)
	assert.Equal(t, "BAD", event.Failure.Code)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `nope`},
		{"missing channel", `{"type":"Results","is_final":true}`},
		{"null channel", `{"is_final":true,"channel":null}`},
		{"missing alternatives", `{"is_final":true,"channel":{}}`},
		{"wrong field type", `{"is_final":"yes","channel":{"alternatives":[]}}`},
		{"unknown type", `{"type":"Surprise"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := Decode([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrMalformedMessage)
			assert.Nil(t, event)
		})
	}
}

func TestTranscriptionTextWithoutAlternatives(t *testing.T) {
	event, err := Decode([]byte(`{"is_final":true,"channel":{"alternatives":[]}}`))
	require.NoError(t, err)
	assert.Equal(t, "", event.Transcription.Text())
	assert.Equal(t, -1, event.Transcription.SpeakerIndex())
}
