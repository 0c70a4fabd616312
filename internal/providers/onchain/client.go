// Package onchain fetches and summarizes Solana transactions through a
// Helius RPC endpoint. The summary is plain text injected into prompts, so
// every field is sanitized before use.
package onchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/vylinhq/vylin/internal/config"
	obsmetrics "github.com/vylinhq/vylin/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Unavailable is the summary used whenever transaction data cannot be
// fetched. Callers still get an answerable prompt.
const Unavailable = "On-chain data unavailable for the given transaction."

var (
	txSignature = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,88}$`)

	// Full Solana signatures are 64-88 base58 characters; the embedded form
	// is stricter than ValidTxHash so short account keys in prose do not
	// match.
	embeddedSignature = regexp.MustCompile(`\b[1-9A-HJ-NP-Za-km-z]{64,88}\b`)
)

// ValidTxHash reports whether the string is a plausible base58 signature.
func ValidTxHash(hash string) bool {
	return txSignature.MatchString(hash)
}

// ExtractTxHash returns the first signature-shaped token in the text, or ""
// when there is none.
func ExtractTxHash(text string) string {
	return embeddedSignature.FindString(text)
}

// Client talks JSON-RPC to a Helius endpoint. A missing API key disables
// the client; fetch failures degrade to the Unavailable summary.
type Client struct {
	log     *zap.Logger
	http    *http.Client
	metrics *obsmetrics.Metrics

	rpcURL string
	apiKey string
}

type ClientParam struct {
	fx.In

	Log     *zap.Logger
	Cfg     config.Config
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewClient(p ClientParam) *Client {
	return &Client{
		log:     p.Log.Named("onchain"),
		http:    &http.Client{Timeout: 15 * time.Second},
		metrics: p.Metrics,
		rpcURL:  strings.TrimRight(p.Cfg.HeliusRPCURL, "/"),
		apiKey:  p.Cfg.HeliusAPIKey,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type instruction struct {
	ProgramID      string `json:"programId"`
	ProgramIDIndex *int   `json:"programIdIndex"`
}

type txMessage struct {
	AccountKeys  []json.RawMessage `json:"accountKeys"`
	Instructions []instruction     `json:"instructions"`
}

type txMeta struct {
	Err                  any  `json:"err"`
	ComputeUnitsConsumed *int `json:"computeUnitsConsumed"`
	InnerInstructions    []struct {
		Instructions []instruction `json:"instructions"`
	} `json:"innerInstructions"`
}

type txResult struct {
	Transaction struct {
		Message txMessage `json:"message"`
	} `json:"transaction"`
	Meta *txMeta `json:"meta"`
}

type txResponse struct {
	Result *txResult `json:"result"`
}

// TransactionSummary fetches the transaction and renders the plain-text
// block used as prompt input.
func (c *Client) TransactionSummary(ctx context.Context, txHash string) string {
	if c.apiKey == "" {
		return Unavailable
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTransaction",
		Params: []any{
			txHash,
			map[string]any{"maxSupportedTransactionVersion": 0},
		},
	})
	if err != nil {
		return Unavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL+"/?api-key="+c.apiKey, bytes.NewReader(body))
	if err != nil {
		return Unavailable
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.record(ctx, "error")
		c.log.Warn("transaction fetch failed", zap.Error(err))
		return Unavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.record(ctx, "error")
		c.log.Warn("transaction fetch rejected", zap.Int("status", resp.StatusCode))
		return Unavailable
	}

	var parsed txResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || parsed.Result == nil {
		c.record(ctx, "error")
		return Unavailable
	}

	c.record(ctx, "ok")
	return summarize(parsed)
}

func (c *Client) record(ctx context.Context, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordProviderRequest(ctx, "onchain", outcome)
	}
}

func summarize(parsed txResponse) string {
	res := parsed.Result
	accountKeys := extractAccountKeys(res.Transaction.Message.AccountKeys)
	programIDs := extractProgramIDs(res, accountKeys)

	feePayer := ""
	if len(accountKeys) > 0 {
		feePayer = accountKeys[0]
	}

	status := "success"
	errValue := ""
	var computeUnits *int
	if res.Meta != nil {
		if res.Meta.Err != nil {
			status = "failure"
			errValue = sanitizeValue(res.Meta.Err)
		}
		computeUnits = res.Meta.ComputeUnitsConsumed
	}

	lines := []string{
		"ONCHAIN DATA",
		"Status: " + status,
	}
	if errValue != "" {
		lines = append(lines, "Error: "+errValue)
	}
	if computeUnits != nil {
		lines = append(lines, fmt.Sprintf("Compute units: %d", *computeUnits))
	}
	if feePayer != "" {
		lines = append(lines, "Fee payer: "+sanitizeText(feePayer))
	}
	if l := formatList("Accounts", accountKeys, 10); l != "" {
		lines = append(lines, l)
	}
	if l := formatList("Program IDs", programIDs, 8); l != "" {
		lines = append(lines, l)
	}
	return strings.Join(lines, "\n")
}

// extractAccountKeys tolerates both string keys and the object form with a
// pubkey field.
func extractAccountKeys(raw []json.RawMessage) []string {
	keys := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, entry := range raw {
		var key string
		if err := json.Unmarshal(entry, &key); err != nil {
			var obj struct {
				Pubkey string `json:"pubkey"`
			}
			if err := json.Unmarshal(entry, &obj); err != nil {
				continue
			}
			key = obj.Pubkey
		}
		key = sanitizeText(key)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

func extractProgramIDs(res *txResult, accountKeys []string) []string {
	var ids []string
	seen := make(map[string]struct{})

	add := func(ix instruction) {
		id := ix.ProgramID
		if id == "" && ix.ProgramIDIndex != nil {
			idx := *ix.ProgramIDIndex
			if idx >= 0 && idx < len(accountKeys) {
				id = accountKeys[idx]
			}
		}
		id = sanitizeText(id)
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for _, ix := range res.Transaction.Message.Instructions {
		add(ix)
	}
	if res.Meta != nil {
		for _, group := range res.Meta.InnerInstructions {
			for _, ix := range group.Instructions {
				add(ix)
			}
		}
	}
	return ids
}

var (
	reNewlines = regexp.MustCompile(`[\r\n]+`)
	reControls = regexp.MustCompile(`[\x00-\x1F\x7F]+`)
	reSpaces   = regexp.MustCompile(`\s+`)
)

func sanitizeText(input string) string {
	out := reNewlines.ReplaceAllString(input, " ")
	out = reControls.ReplaceAllString(out, " ")
	return strings.TrimSpace(reSpaces.ReplaceAllString(out, " "))
}

func sanitizeValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return sanitizeText(v)
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return sanitizeText(string(encoded))
}

func formatList(label string, values []string, limit int) string {
	if len(values) == 0 {
		return ""
	}
	shown := values
	if len(shown) > limit {
		shown = shown[:limit]
	}
	suffix := ""
	if remainder := len(values) - len(shown); remainder > 0 {
		suffix = fmt.Sprintf(" and %d more", remainder)
	}
	return fmt.Sprintf("%s: %s%s", label, strings.Join(shown, ", "), suffix)
}
