package onchain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vylinhq/vylin/internal/config"
	"go.uber.org/zap"
)

func TestValidTxHash(t *testing.T) {
	if !ValidTxHash("5j7s88aJwr3N1RnMBZtiXJ4Dt5y8domPEJzCKvsB" + strings.Repeat("1", 24)) {
		t.Fatal("expected valid base58 signature")
	}
	if ValidTxHash("short") {
		t.Fatal("short string must not validate")
	}
	if ValidTxHash("0OIl" + strings.Repeat("a", 40)) {
		t.Fatal("non-base58 characters must not validate")
	}
}

func TestExtractTxHash(t *testing.T) {
	signature := strings.Repeat("5j7s88aJwr3N1RnMB", 4)
	if got := ExtractTxHash("why did " + signature + " fail?"); got != signature {
		t.Fatalf("expected embedded signature, got %q", got)
	}
	// Account keys are 32-44 chars and must not be mistaken for signatures.
	if got := ExtractTxHash("balance of TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"); got != "" {
		t.Fatalf("expected no match for an account key, got %q", got)
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, apiKey string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientParam{
		Log: zap.NewNop(),
		Cfg: config.Config{HeliusRPCURL: srv.URL, HeliusAPIKey: apiKey},
	})
}

const sampleTx = `{
	"result": {
		"transaction": {
			"message": {
				"accountKeys": [
					"FeePayer1111111111111111111111111111111111",
					{"pubkey": "Account2222222222222222222222222222222222"},
					"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
				],
				"instructions": [
					{"programIdIndex": 2},
					{"programId": "ComputeBudget111111111111111111111111111111"}
				]
			}
		},
		"meta": {
			"err": {"InstructionError": [0, "Custom"]},
			"computeUnitsConsumed": 4021,
			"innerInstructions": [
				{"instructions": [{"programIdIndex": 2}]}
			]
		}
	}
}`

func TestTransactionSummary(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api-key") != "helius-key" {
			t.Errorf("missing api key in url")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleTx))
	}, "helius-key")

	summary := client.TransactionSummary(context.Background(), "somehash")

	for _, want := range []string{
		"ONCHAIN DATA",
		"Status: failure",
		"Compute units: 4021",
		"Fee payer: FeePayer1111111111111111111111111111111111",
		"Program IDs: TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA, ComputeBudget111111111111111111111111111111",
	} {
		if !strings.Contains(summary, want) {
			t.Fatalf("summary missing %q:\n%s", want, summary)
		}
	}
	if !strings.Contains(summary, "Error: ") {
		t.Fatalf("summary missing error line:\n%s", summary)
	}
}

func TestTransactionSummaryUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, "helius-key")

	if got := client.TransactionSummary(context.Background(), "somehash"); got != Unavailable {
		t.Fatalf("expected unavailable summary, got %q", got)
	}
}

func TestTransactionSummaryWithoutAPIKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without an api key")
	}, "")

	if got := client.TransactionSummary(context.Background(), "somehash"); got != Unavailable {
		t.Fatalf("expected unavailable summary, got %q", got)
	}
}

func TestTransactionSummaryNullResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": null}`))
	}, "helius-key")

	if got := client.TransactionSummary(context.Background(), "missing"); got != Unavailable {
		t.Fatalf("expected unavailable summary for null result, got %q", got)
	}
}
