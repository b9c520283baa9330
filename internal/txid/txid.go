package txid

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Prefix is the leading tag on every transaction ID.
const Prefix = "EXP"

const dateFormat = "20060102"

// Format returns a transaction ID like "EXP-20250115-001".
// The sequence is unique within the billing date.
func Format(billingDate time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%03d", Prefix, billingDate.Format(dateFormat), seq)
}

// Parse splits a transaction ID into its billing date and sequence.
func Parse(id string) (billingDate time.Time, seq int, err error) {
	parts := strings.SplitN(id, "-", 3)
	if len(parts) != 3 || parts[0] != Prefix {
		return time.Time{}, 0, fmt.Errorf("invalid transaction ID format: %q", id)
	}

	billingDate, err = time.Parse(dateFormat, parts[1])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid date in transaction ID %q: %w", id, err)
	}

	seq, err = strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid sequence in transaction ID %q: %w", id, err)
	}
	if seq < 1 {
		return time.Time{}, 0, fmt.Errorf("sequence must be positive in transaction ID %q", id)
	}

	return billingDate, seq, nil
}
