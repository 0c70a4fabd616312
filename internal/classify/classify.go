// Package classify flags questions that reference a concrete on-chain
// instance, so the chat pipeline can refuse them outside onchain mode
// before any quota is charged.
package classify

import (
	"regexp"
	"strings"
)

type Kind string

const (
	KindGeneral          Kind = "general"
	KindInstanceSpecific Kind = "instance-specific"
)

// Result carries the classification plus the signals that produced it.
type Result struct {
	Kind    Kind     `json:"kind"`
	Signals []string `json:"signals"`
}

var instanceKeywordPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy\s+(wallet|address|account|balance|transaction|tx|signature|nft|token|tokens|portfolio|holdings)\b`),
	regexp.MustCompile(`(?i)\bthis\s+(wallet|address|account|balance|transaction|tx|signature|nft|token|program|contract|mint)\b`),
	regexp.MustCompile(`(?i)\b(tx|transaction)\s+id\b`),
}

var (
	base58Address = regexp.MustCompile(`\b[1-9A-HJ-NP-Za-km-z]{32,64}\b`)
	hexAddress    = regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)
)

func isInstanceSpecific(question string) bool {
	if base58Address.MatchString(question) || hexAddress.MatchString(question) {
		return true
	}
	for _, pattern := range instanceKeywordPatterns {
		if pattern.MatchString(question) {
			return true
		}
	}
	return false
}

// Question classifies a user question. Empty input is general.
func Question(question string) Result {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return Result{Kind: KindGeneral, Signals: []string{"empty"}}
	}
	if isInstanceSpecific(trimmed) {
		return Result{Kind: KindInstanceSpecific, Signals: []string{"address-or-instance-detected"}}
	}
	return Result{Kind: KindGeneral, Signals: []string{}}
}
