package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/meshhub/normalize"
)

func ptr(s string) *string { return &s }

func TestNormalizePromptNilPassesThrough(t *testing.T) {
	assert.Nil(t, normalize.NormalizePrompt(nil))
}

func TestNormalizePromptStripsStopWordsAndCollapsesWhitespace(t *testing.T) {
	got := normalize.NormalizePrompt(ptr("  What   is the Weather   in Paris?  "))
	require.NotNil(t, got)
	assert.Equal(t, "weather paris", *got)
}

func TestNormalizePromptIdempotent(t *testing.T) {
	once := normalize.NormalizePrompt(ptr("What is the weather in Paris?"))
	twice := normalize.NormalizePrompt(once)
	assert.Equal(t, *once, *twice)
}

func TestNormalizeLocationCityCommaCountryName(t *testing.T) {
	got := normalize.NormalizeLocation(ptr("Nice, Fr"))
	require.NotNil(t, got)
	assert.Equal(t, "Nice,FR", *got)
}

func TestNormalizeLocationIATACode(t *testing.T) {
	got := normalize.NormalizeLocation(ptr("NCE"))
	require.NotNil(t, got)
	assert.Equal(t, "Nice,FR", *got)
}

func TestNormalizeLocationBareCityAlias(t *testing.T) {
	got := normalize.NormalizeLocation(ptr("paris"))
	require.NotNil(t, got)
	assert.Equal(t, "Paris,FR", *got)
}

func TestNormalizeLocationIdempotent(t *testing.T) {
	once := normalize.NormalizeLocation(ptr("Nice, Fr"))
	twice := normalize.NormalizeLocation(once)
	assert.Equal(t, *once, *twice)
}

func TestNormalizeLocationUnrecognizedPassesThroughTrimmed(t *testing.T) {
	got := normalize.NormalizeLocation(ptr("  Atlantis  "))
	require.NotNil(t, got)
	assert.Equal(t, "Atlantis", *got)
}

func TestNormalizeDateISOPassthrough(t *testing.T) {
	got := normalize.NormalizeDate(ptr("2026-07-31"))
	require.NotNil(t, got)
	assert.Equal(t, "2026-07-31", *got)
}

func TestNormalizeDateUSFormat(t *testing.T) {
	got := normalize.NormalizeDate(ptr("07/31/2026"))
	require.NotNil(t, got)
	assert.Equal(t, "2026-07-31", *got)
}

func TestNormalizeDateLongMonthNameFormat(t *testing.T) {
	got := normalize.NormalizeDate(ptr("July 31, 2026"))
	require.NotNil(t, got)
	assert.Equal(t, "2026-07-31", *got)
}

func TestNormalizeDateUnparsablePassesThroughUnchanged(t *testing.T) {
	got := normalize.NormalizeDate(ptr("whenever is convenient"))
	require.NotNil(t, got)
	assert.Equal(t, "whenever is convenient", *got)
}

func TestNormalizeDateIdempotent(t *testing.T) {
	once := normalize.NormalizeDate(ptr("07/31/2026"))
	twice := normalize.NormalizeDate(once)
	assert.Equal(t, *once, *twice)
}

func TestNormalizeLanguageFullName(t *testing.T) {
	assert.Equal(t, "en", *normalize.NormalizeLanguage(ptr("English")))
	assert.Equal(t, "fr", *normalize.NormalizeLanguage(ptr("french")))
}

func TestNormalizeLanguageBCP47Tag(t *testing.T) {
	got := normalize.NormalizeLanguage(ptr("en-US"))
	require.NotNil(t, got)
	assert.Equal(t, "en", *got)
}

func TestNormalizeLanguageIdempotent(t *testing.T) {
	once := normalize.NormalizeLanguage(ptr("English"))
	twice := normalize.NormalizeLanguage(once)
	assert.Equal(t, *once, *twice)
}

func TestNormalizeAllNilPassThrough(t *testing.T) {
	assert.Nil(t, normalize.NormalizeLocation(nil))
	assert.Nil(t, normalize.NormalizeDate(nil))
	assert.Nil(t, normalize.NormalizeLanguage(nil))
}
