package cti

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUserMessageDistinctPerKind(t *testing.T) {
	msgs := map[string]bool{}
	for _, err := range []error{
		fmt.Errorf("scan: %w", ErrInvalidInput),
		fmt.Errorf("%w: deadline", ErrTimeout),
		fmt.Errorf("%w: refused", ErrUnreachable),
		&AnalysisFailedError{StatusCode: 500, Message: "Threat analysis failed: boom"},
	} {
		msg := UserMessage(err)
		assert.NotEmpty(t, msg)
		assert.False(t, msgs[msg], "duplicate message %q", msg)
		msgs[msg] = true
	}
	assert.Equal(t, "", UserMessage(nil))
}

func TestAnalysisFailedErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("scan 8.8.8.8: %w", &AnalysisFailedError{Message: "quota"})
	assert.True(t, errors.Is(err, ErrAnalysisFailed))
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, "quota", UserMessage(err))
}

func TestProviderResultsStatus(t *testing.T) {
	var p ProviderResults
	p.VirusTotal.Available = true
	p.Shodan.Error = "quota exceeded"

	status := p.Status()
	assert.Len(t, status, 4)
	assert.True(t, status[ProviderVirusTotal])
	assert.False(t, status[ProviderShodan])
	assert.Equal(t, 1, p.AvailableCount())
}

func TestEpochRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 500_000_000, time.UTC)
	got := EpochTime(Epoch(now))
	assert.WithinDuration(t, now, got, time.Microsecond)
}

func TestCountryOrUnknown(t *testing.T) {
	assert.Equal(t, UnknownCountry, HistoryEntry{}.CountryOrUnknown())
	assert.Equal(t, "Germany", HistoryEntry{Location: Location{Country: "Germany"}}.CountryOrUnknown())
	assert.Equal(t, TargetUnknown, ParseTargetType("ipv6"))
	assert.Equal(t, TargetDomain, ParseTargetType("domain"))
}
