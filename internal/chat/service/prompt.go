package service

import (
	"fmt"
	"strings"

	quotadomain "github.com/vylinhq/vylin/internal/quota/domain"
	"github.com/vylinhq/vylin/internal/providers/search"
)

var systemPromptBase = []string{
	"You are Vylin, a Solana-first technical assistant.",
	"Be concise, technical, and neutral.",
	"Do not guess or hallucinate.",
	"When sources are provided, answer only using those sources.",
	"If the needed information is missing from sources, reply exactly: Not found in sources",
	"Instance-specific analysis is allowed only when on-chain data is explicitly provided by the system.",
	"Do not imply access to wallets, private data, or live chain state.",
	"If on-chain data is insufficient to determine a cause, say that explicitly.",
}

func buildSystemPrompt(mode quotadomain.Category) string {
	lines := systemPromptBase
	if mode == quotadomain.CategoryOnchain {
		lines = append(lines[:len(lines):len(lines)],
			"If on-chain data is provided, treat it as factual input supplied by the system.")
	}
	return strings.Join(lines, "\n")
}

func buildUserPrompt(question string, sources []search.Result, onchainData string) string {
	var sections []string

	if len(sources) > 0 {
		blocks := make([]string, 0, len(sources))
		for _, src := range sources {
			blocks = append(blocks, strings.Join([]string{
				"SOURCES",
				"Title: " + strings.TrimSpace(src.Title),
				"URL: " + strings.TrimSpace(src.URL),
				"Excerpt: " + strings.TrimSpace(src.Excerpt),
			}, "\n"))
		}
		sections = append(sections, strings.Join(blocks, "\n\n"))
	}

	if data := strings.TrimSpace(onchainData); data != "" {
		sections = append(sections, "ON-CHAIN DATA\n"+data)
	}

	sections = append(sections, "QUESTION\n"+strings.TrimSpace(question))
	return strings.Join(sections, "\n\n")
}

func refusalMessage(onchainCost int) string {
	return fmt.Sprintf(
		"This question refers to a specific on-chain instance. Analyzing transactions, wallets, or addresses is only available in onchain mode, which costs %d credits. Please switch to onchain mode to proceed.",
		onchainCost,
	)
}
