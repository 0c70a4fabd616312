package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	auditdomain "github.com/vylinhq/vylin/internal/audit/domain"
	chatdomain "github.com/vylinhq/vylin/internal/chat/domain"
	"github.com/vylinhq/vylin/internal/config"
	"github.com/vylinhq/vylin/internal/providers/llm"
	"github.com/vylinhq/vylin/internal/providers/search"
	quotadomain "github.com/vylinhq/vylin/internal/quota/domain"
	"go.uber.org/zap"
)

type ledgerStub struct {
	calls  int
	result quotadomain.ChargeResult
	err    error
}

func (l *ledgerStub) Charge(ctx context.Context, identity string, category quotadomain.Category) (quotadomain.ChargeResult, error) {
	l.calls++
	if l.err != nil {
		return quotadomain.ChargeResult{}, l.err
	}
	res := l.result
	res.Cost = 1
	return res, nil
}

type completerStub struct {
	calls      int
	lastSystem string
	lastPrompt string
	text       string
	err        error
}

func (c *completerStub) Complete(ctx context.Context, system, prompt string) (llm.Completion, error) {
	c.calls++
	c.lastSystem = system
	c.lastPrompt = prompt
	if c.err != nil {
		return llm.Completion{}, c.err
	}
	return llm.Completion{Text: c.text}, nil
}

type searcherStub struct {
	calls   int
	results []search.Result
}

func (s *searcherStub) Search(ctx context.Context, query string, maxResults int) []search.Result {
	s.calls++
	return s.results
}

type chainStub struct {
	calls    int
	summary  string
	lastHash string
}

func (c *chainStub) TransactionSummary(ctx context.Context, txHash string) string {
	c.calls++
	c.lastHash = txHash
	return c.summary
}

type recorderStub struct {
	entries []auditdomain.Entry
}

func (r *recorderStub) Record(ctx context.Context, entry auditdomain.Entry) {
	r.entries = append(r.entries, entry)
}

type fixture struct {
	svc      chatdomain.Service
	ledger   *ledgerStub
	llm      *completerStub
	search   *searcherStub
	chain    *chainStub
	recorder *recorderStub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	holder := &config.QuotaPolicyHolder{}
	holder.Set(config.DefaultQuotaPolicy())

	f := &fixture{
		ledger:   &ledgerStub{result: quotadomain.ChargeResult{Allowed: true, Remaining: 4, Limit: 5}},
		llm:      &completerStub{text: "answer text"},
		search:   &searcherStub{},
		chain:    &chainStub{summary: "ONCHAIN DATA\nStatus: success"},
		recorder: &recorderStub{},
	}
	f.svc = NewService(Params{
		Log:      zap.NewNop(),
		Policy:   holder,
		Ledger:   f.ledger,
		LLM:      f.llm,
		Search:   f.search,
		Chain:    f.chain,
		Recorder: f.recorder,
	})
	return f
}

const validTxHash = "5j7s88aJwr3N1RnMBZtiXJ4Dt5y8domPEJzCKvsB1111"

func TestAskNormalMode(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Ask(context.Background(), "user-1", chatdomain.Request{
		Question: "How does Solana rent work?",
		Mode:     "normal",
	})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if resp.Answer != "answer text" || resp.Refusal != "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Quota == nil || !resp.Quota.Allowed {
		t.Fatalf("expected quota on answered response, got %+v", resp.Quota)
	}
	if f.search.calls != 0 || f.chain.calls != 0 {
		t.Fatal("normal mode must not call search or chain providers")
	}
	if !strings.Contains(f.llm.lastPrompt, "QUESTION\nHow does Solana rent work?") {
		t.Fatalf("prompt missing question section:\n%s", f.llm.lastPrompt)
	}
	if strings.Contains(f.llm.lastSystem, "on-chain data is provided, treat it") {
		t.Fatal("normal mode must not carry the onchain system line")
	}
}

func TestAskResearchMode(t *testing.T) {
	f := newFixture(t)
	f.search.results = []search.Result{
		{Title: "Rent", URL: "https://docs.solana.com/rent", Excerpt: "Rent is charged per epoch."},
	}

	resp, err := f.svc.Ask(context.Background(), "user-1", chatdomain.Request{
		Question: "How does rent work?",
		Mode:     "research",
	})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if f.search.calls != 1 {
		t.Fatalf("expected one search call, got %d", f.search.calls)
	}
	if len(resp.Sources) != 1 {
		t.Fatalf("expected sources in response, got %d", len(resp.Sources))
	}
	if !strings.Contains(f.llm.lastPrompt, "SOURCES") || !strings.Contains(f.llm.lastPrompt, "https://docs.solana.com/rent") {
		t.Fatalf("prompt missing sources:\n%s", f.llm.lastPrompt)
	}
}

func TestAskOnchainMode(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Ask(context.Background(), "user-1", chatdomain.Request{
		Question: "Why did this transaction fail?",
		Mode:     "onchain",
		TxHash:   validTxHash,
	})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if resp.Refusal != "" {
		t.Fatal("onchain mode must not refuse instance-specific questions")
	}
	if f.chain.calls != 1 {
		t.Fatalf("expected one chain call, got %d", f.chain.calls)
	}
	if !strings.Contains(f.llm.lastPrompt, "ON-CHAIN DATA") {
		t.Fatalf("prompt missing onchain section:\n%s", f.llm.lastPrompt)
	}
	if !strings.Contains(f.llm.lastSystem, "treat it as factual input") {
		t.Fatal("onchain system prompt line missing")
	}
}

func TestAskOnchainExtractsSignatureFromQuestion(t *testing.T) {
	f := newFixture(t)
	signature := strings.Repeat("5j7s88aJwr3N1RnMB", 4) // 68 base58 chars

	_, err := f.svc.Ask(context.Background(), "user-1", chatdomain.Request{
		Question: "Why did " + signature + " fail?",
		Mode:     "onchain",
	})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if f.chain.lastHash != signature {
		t.Fatalf("expected signature extracted from question, got %q", f.chain.lastHash)
	}
}

func TestAskOnchainRequiresTxHash(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Ask(context.Background(), "user-1", chatdomain.Request{
		Question: "Why did this transaction fail?",
		Mode:     "onchain",
		TxHash:   "not-a-signature",
	})
	if !errors.Is(err, chatdomain.ErrInvalidTxHash) {
		t.Fatalf("expected ErrInvalidTxHash, got %v", err)
	}
	if f.ledger.calls != 0 {
		t.Fatal("invalid request must not be charged")
	}
}

func TestAskRefusesInstanceSpecificOutsideOnchain(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Ask(context.Background(), "user-1", chatdomain.Request{
		Question: "Why did my wallet lose SOL?",
		Mode:     "normal",
	})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if resp.Refusal == "" {
		t.Fatal("expected a refusal")
	}
	if !strings.Contains(resp.Refusal, "costs 3 credits") {
		t.Fatalf("refusal must name the onchain cost, got %q", resp.Refusal)
	}
	if resp.Quota != nil {
		t.Fatal("refusal must not carry a quota decision")
	}
	if f.ledger.calls != 0 {
		t.Fatal("refusal must happen before any charge")
	}
	if f.llm.calls != 0 {
		t.Fatal("refusal must not reach the model")
	}
	if len(f.recorder.entries) != 1 || !f.recorder.entries[0].Refused {
		t.Fatalf("expected one refused audit entry, got %+v", f.recorder.entries)
	}
}

func TestAskDeniedCharge(t *testing.T) {
	f := newFixture(t)
	f.ledger.result = quotadomain.ChargeResult{
		Allowed:   false,
		Remaining: 2,
		Limit:     5,
		Reason:    quotadomain.ReasonCooldown,
	}

	resp, err := f.svc.Ask(context.Background(), "user-1", chatdomain.Request{
		Question: "How does rent work?",
		Mode:     "normal",
	})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !resp.Denied() {
		t.Fatalf("expected denial, got %+v", resp)
	}
	if resp.Quota.Reason != quotadomain.ReasonCooldown || resp.Quota.Remaining != 2 {
		t.Fatalf("denial must surface reason and remaining, got %+v", resp.Quota)
	}
	if f.llm.calls != 0 {
		t.Fatal("denied charge must not reach the model")
	}
}

func TestAskValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Ask(ctx, "user-1", chatdomain.Request{Question: "  ", Mode: "normal"}); !errors.Is(err, chatdomain.ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
	if _, err := f.svc.Ask(ctx, "user-1", chatdomain.Request{Question: strings.Repeat("a", 501), Mode: "normal"}); !errors.Is(err, chatdomain.ErrQuestionTooLong) {
		t.Fatalf("expected ErrQuestionTooLong, got %v", err)
	}
	if _, err := f.svc.Ask(ctx, "user-1", chatdomain.Request{Question: "hello", Mode: "premium"}); !errors.Is(err, chatdomain.ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
	if f.ledger.calls != 0 {
		t.Fatal("invalid requests must not be charged")
	}
}

func TestAskDefaultsToNormalMode(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Ask(context.Background(), "user-1", chatdomain.Request{Question: "How does rent work?"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if resp.Mode != quotadomain.CategoryNormal {
		t.Fatalf("expected normal mode default, got %q", resp.Mode)
	}
}

func TestAskCompletionFailureIsNotRefunded(t *testing.T) {
	f := newFixture(t)
	f.llm.err = errors.New("upstream down")

	_, err := f.svc.Ask(context.Background(), "user-1", chatdomain.Request{
		Question: "How does rent work?",
		Mode:     "normal",
	})
	if err == nil {
		t.Fatal("expected provider error to surface")
	}
	if f.ledger.calls != 1 {
		t.Fatalf("expected exactly one charge, got %d", f.ledger.calls)
	}
}
