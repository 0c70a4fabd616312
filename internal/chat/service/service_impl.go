// Package service orchestrates one chat turn: validate, classify, charge
// the quota ledger, then answer through the mode's providers.
package service

import (
	"context"
	"strings"

	auditdomain "github.com/vylinhq/vylin/internal/audit/domain"
	chatdomain "github.com/vylinhq/vylin/internal/chat/domain"
	"github.com/vylinhq/vylin/internal/classify"
	"github.com/vylinhq/vylin/internal/config"
	"github.com/vylinhq/vylin/internal/observability/logger"
	"github.com/vylinhq/vylin/internal/providers/llm"
	"github.com/vylinhq/vylin/internal/providers/onchain"
	"github.com/vylinhq/vylin/internal/providers/search"
	quotadomain "github.com/vylinhq/vylin/internal/quota/domain"
	"github.com/vylinhq/vylin/internal/usagemetrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxSources = 10

// Completer produces the final answer text.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (llm.Completion, error)
}

// Searcher retrieves documentation sources for research mode.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) []search.Result
}

// ChainReader summarizes a transaction for onchain mode.
type ChainReader interface {
	TransactionSummary(ctx context.Context, txHash string) string
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Policy   *config.QuotaPolicyHolder
	Ledger   quotadomain.Ledger
	LLM      Completer
	Search   Searcher
	Chain    ChainReader
	Recorder auditdomain.Recorder `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	policy   *config.QuotaPolicyHolder
	ledger   quotadomain.Ledger
	llm      Completer
	search   Searcher
	chain    ChainReader
	recorder auditdomain.Recorder
}

func NewService(p Params) chatdomain.Service {
	return &Service{
		log:      p.Log.Named("chat"),
		policy:   p.Policy,
		ledger:   p.Ledger,
		llm:      p.LLM,
		search:   p.Search,
		chain:    p.Chain,
		recorder: p.Recorder,
	}
}

func (s *Service) Ask(ctx context.Context, identity string, req chatdomain.Request) (chatdomain.Response, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return chatdomain.Response{}, chatdomain.ErrEmptyQuestion
	}
	if len(question) > chatdomain.MaxQuestionLength {
		return chatdomain.Response{}, chatdomain.ErrQuestionTooLong
	}

	mode, ok := quotadomain.ParseCategory(strings.TrimSpace(req.Mode))
	if !ok {
		return chatdomain.Response{}, chatdomain.ErrUnknownMode
	}

	txHash := strings.TrimSpace(req.TxHash)
	if mode == quotadomain.CategoryOnchain {
		if txHash == "" {
			txHash = onchain.ExtractTxHash(question)
		}
		if !onchain.ValidTxHash(txHash) {
			return chatdomain.Response{}, chatdomain.ErrInvalidTxHash
		}
	}

	// Instance-specific questions outside onchain mode are refused before
	// any charge is attempted.
	if mode != quotadomain.CategoryOnchain {
		if result := classify.Question(question); result.Kind == classify.KindInstanceSpecific {
			resp := chatdomain.Response{
				Refusal: refusalMessage(s.onchainCost()),
				Mode:    mode,
			}
			usagemetrics.RecordRefusal()
			s.audit(ctx, identity, mode, question, resp, nil, map[string]any{"signals": result.Signals})
			return resp, nil
		}
	}

	charge, err := s.ledger.Charge(ctx, identity, mode)
	if err != nil {
		return chatdomain.Response{}, err
	}
	if charge.Degraded {
		usagemetrics.RecordDegraded()
	}
	if !charge.Allowed {
		usagemetrics.RecordCharge(string(mode), string(charge.Reason))
		resp := chatdomain.Response{Mode: mode, Quota: &charge}
		s.audit(ctx, identity, mode, question, resp, &charge, nil)
		return resp, nil
	}
	usagemetrics.RecordCharge(string(mode), "allowed")

	var sources []search.Result
	onchainData := ""
	switch mode {
	case quotadomain.CategoryResearch:
		sources = s.search.Search(ctx, question, maxSources)
	case quotadomain.CategoryOnchain:
		onchainData = s.chain.TransactionSummary(ctx, txHash)
	}

	completion, err := s.llm.Complete(ctx, buildSystemPrompt(mode), buildUserPrompt(question, sources, onchainData))
	if err != nil {
		// The charge is not refunded; the caller sees the provider error.
		logger.WithContext(ctx, s.log).Error("completion failed",
			zap.String("mode", string(mode)),
			zap.Error(err),
		)
		return chatdomain.Response{}, err
	}

	usagemetrics.RecordTokens(completion.Usage.PromptTokens, completion.Usage.CompletionTokens)

	resp := chatdomain.Response{
		Answer:  completion.Text,
		Mode:    mode,
		Sources: sources,
		Quota:   &charge,
	}
	s.audit(ctx, identity, mode, question, resp, &charge, nil)
	return resp, nil
}

func (s *Service) onchainCost() int {
	cost, err := s.policy.Get().CostOf(string(quotadomain.CategoryOnchain))
	if err != nil {
		return 0
	}
	return cost
}

func (s *Service) audit(ctx context.Context, identity string, mode quotadomain.Category, question string, resp chatdomain.Response, charge *quotadomain.ChargeResult, extra map[string]any) {
	if s.recorder == nil {
		return
	}
	metadata := map[string]any{"sources": len(resp.Sources)}
	for k, v := range extra {
		metadata[k] = v
	}
	entry := auditdomain.Entry{
		Identity:       identity,
		Mode:           string(mode),
		Refused:        resp.Refusal != "",
		QuestionLength: len(question),
		Metadata:       metadata,
	}
	if charge != nil {
		entry.Allowed = charge.Allowed
		entry.Reason = string(charge.Reason)
		entry.Cost = charge.Cost
		entry.Remaining = charge.Remaining
		entry.Degraded = charge.Degraded
	}
	s.recorder.Record(ctx, entry)
}
