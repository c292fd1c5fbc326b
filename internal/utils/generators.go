package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const orderSuffixSpace = 1000000

// GenerateOrderNumber returns a numeric, time-ordered order reference with a
// six digit random suffix, e.g. 261019143207582133. Callers still check for
// collisions before claiming a number.
func GenerateOrderNumber(now time.Time) string {
	randomNum, err := rand.Int(rand.Reader, big.NewInt(orderSuffixSpace))
	if err != nil {
		randomNum = big.NewInt(now.UnixNano() % orderSuffixSpace)
	}
	return fmt.Sprintf("%s%06d", now.UTC().Format("060102150405"), randomNum.Int64())
}
