package domain

import (
	"fmt"
	"net/mail"
)

// DefaultQuota is the number of items a recipient receives when the store
// holds no usable value.
const DefaultQuota = 10

// maxStoredQuota bounds what a stored quota may be; anything above is
// treated as garbage and replaced by DefaultQuota.
const maxStoredQuota = 255

// Recipient is one subscriber loaded from the store.
type Recipient struct {
	Email string `json:"email"`
	Quota int    `json:"quota"`
}

// QuotaFromStore converts a raw store column into a quota.
// NULL and out-of-range values map to DefaultQuota.
func QuotaFromStore(v int64, valid bool) int {
	if !valid || v < 0 || v > maxStoredQuota {
		return DefaultQuota
	}
	return int(v)
}

// MaxQuota returns the largest quota among recipients, or DefaultQuota
// when the slice is empty.
func MaxQuota(recipients []Recipient) int {
	if len(recipients) == 0 {
		return DefaultQuota
	}
	highest := recipients[0].Quota
	for _, r := range recipients[1:] {
		highest = max(highest, r.Quota)
	}
	return highest
}

// ValidateAddress checks that addr is a bare RFC 5322 mailbox such as
// "jane@example.com". Display-name forms are rejected because the value is
// used verbatim as an SMTP envelope address.
func ValidateAddress(addr string) error {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return fmt.Errorf("parse %q: %w", addr, err)
	}
	if parsed.Name != "" || parsed.Address != addr {
		return fmt.Errorf("%q is not a bare mail address", addr)
	}
	return nil
}
