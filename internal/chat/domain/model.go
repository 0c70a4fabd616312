// Package domain defines the chat pipeline's request and response types.
package domain

import (
	"context"
	"errors"

	"github.com/vylinhq/vylin/internal/providers/search"
	quotadomain "github.com/vylinhq/vylin/internal/quota/domain"
)

// MaxQuestionLength bounds the accepted question size in bytes.
const MaxQuestionLength = 500

var (
	ErrEmptyQuestion   = errors.New("question is required")
	ErrQuestionTooLong = errors.New("question exceeds the maximum length")
	ErrUnknownMode     = errors.New("unknown mode")
	ErrInvalidTxHash   = errors.New("onchain mode requires a valid transaction signature")
)

// Request is one chat turn. TxHash is consulted in onchain mode only.
type Request struct {
	Question string `json:"question"`
	Mode     string `json:"mode"`
	TxHash   string `json:"txHash,omitempty"`
}

// Response is the pipeline outcome. A refusal carries no quota because no
// charge was attempted; a denied charge carries quota but no answer.
type Response struct {
	Answer  string                    `json:"answer,omitempty"`
	Refusal string                    `json:"refusal,omitempty"`
	Mode    quotadomain.Category      `json:"mode"`
	Sources []search.Result           `json:"sources,omitempty"`
	Quota   *quotadomain.ChargeResult `json:"quota,omitempty"`
}

// Denied reports whether the response is a quota denial.
func (r Response) Denied() bool {
	return r.Quota != nil && !r.Quota.Allowed
}

// Service runs the chat pipeline: validate, classify, charge, answer.
type Service interface {
	Ask(ctx context.Context, identity string, req Request) (Response, error)
}
