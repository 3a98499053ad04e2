package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Domain prefixes for hashes. The version suffix allows changing the
// normalization without mixing old and new hashes.
const (
	DomainContent = "cfgmigrate/content/v1"
	DomainFields  = "cfgmigrate/fields/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeContent prepares content text for hashing: NFC, LF line endings,
// no surrounding whitespace.
func NormalizeContent(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

// HashContent hashes content text as ContentHash does.
func HashContent(s string) string {
	return hashWithDomain(DomainContent, []byte(NormalizeContent(s)))
}

// ContentHash returns the hash of the object's content field, or "" when the
// kind has no content field or the field is empty.
func ContentHash(o Object) string {
	spec, ok := SpecFor(o.Kind)
	if !ok || spec.ContentField == "" {
		return ""
	}
	text := o.String(spec.ContentField)
	if NormalizeContent(text) == "" {
		return ""
	}
	return HashContent(text)
}

// FieldsHash hashes the canonical JSON of the named fields of o.
// Absent fields hash as null.
func FieldsHash(o Object, fields []string) (string, error) {
	subset := make(map[string]any, len(fields))
	for _, f := range fields {
		subset[f] = o.Fields[f]
	}
	canonical, err := MarshalCanonical(subset)
	if err != nil {
		return "", fmt.Errorf("FieldsHash %s: %w", o.Key(), err)
	}
	return hashWithDomain(DomainFields, canonical), nil
}

// RuleExclusionID builds the composite ID of an exclusion attached to a rule.
func RuleExclusionID(ruleID, source string) string {
	return ruleID + ":" + HashContent(source)[:12]
}
