package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeakerFromIndex(t *testing.T) {
	assert.Equal(t, SpeakerAgent, SpeakerFromIndex(0))
	assert.Equal(t, SpeakerCaller, SpeakerFromIndex(1))
	assert.Equal(t, SpeakerUnknown, SpeakerFromIndex(2))
	assert.Equal(t, SpeakerUnknown, SpeakerFromIndex(-1))
}

func TestPrincipalValid(t *testing.T) {
	var nilPrincipal *Principal
	assert.False(t, nilPrincipal.Valid())
	assert.False(t, (&Principal{UserID: "u1"}).Valid())
	assert.True(t, (&Principal{UserID: "u1", TenantID: "t1"}).Valid())
}

func TestSuggestionBatchTexts(t *testing.T) {
	batch := SuggestionBatch{Items: []SuggestionItem{{Text: "a"}, {Text: "b"}}}
	assert.Equal(t, []string{"a", "b"}, batch.Texts())
	assert.Equal(t, []string{}, SuggestionBatch{}.Texts())
}
