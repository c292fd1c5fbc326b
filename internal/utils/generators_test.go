package utils

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateOrderNumber(t *testing.T) {
	now := time.Date(2026, 10, 19, 14, 32, 7, 0, time.UTC)

	n := GenerateOrderNumber(now)
	assert.Regexp(t, regexp.MustCompile(`^261019143207\d{6}$`), n)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		seen[GenerateOrderNumber(now)] = true
	}
	assert.Greater(t, len(seen), 1, "suffix must vary")
}

func TestGenerateOrderNumber_SameSecondBurst(t *testing.T) {
	now := time.Date(2026, 10, 19, 14, 32, 7, 0, time.UTC)

	seen := map[string]bool{}
	for i := 0; i < 300; i++ {
		seen[GenerateOrderNumber(now)] = true
	}
	// expected clashes for 300 draws from 10^6 is ~0.045
	assert.GreaterOrEqual(t, len(seen), 298)
}
