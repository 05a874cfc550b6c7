package delivery

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Code format: ENT-<orderID>-<customerCode>-<millis>-<suffix>
const (
	CodePrefix    = "ENT"
	CodeDelimiter = "-"

	// UnknownCustomerCode is used when the order has no bound customer yet
	UnknownCustomerCode = "0"

	suffixLength = 6
)

const suffixCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateCode derives a delivery code from the order, the customer and the
// current time. Codes minted at the same millisecond for the same order and
// customer are still distinguished by the random suffix. The generator never
// consults storage, so uniqueness is probabilistic; the record store rejects
// duplicates at insertion.
func GenerateCode(orderID int64, customerCode string, nowMillis int64) string {
	if customerCode == "" {
		customerCode = UnknownCustomerCode
	}
	return strings.Join([]string{
		CodePrefix,
		fmt.Sprintf("%d", orderID),
		customerCode,
		fmt.Sprintf("%d", nowMillis),
		randomSuffix(suffixLength),
	}, CodeDelimiter)
}

// randomSuffix returns n random characters from the suffix charset
func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand is effectively infallible; fall back to UUID entropy
		id := uuid.New()
		copy(buf, id[:])
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = suffixCharset[int(b)%len(suffixCharset)]
	}
	return string(out)
}
