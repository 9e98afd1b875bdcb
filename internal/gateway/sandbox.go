package gateway

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// SandboxClient creates local orders without contacting a processor.
// It is meant for development and for deployments that test the webhook flow.
type SandboxClient struct{}

// NewSandboxClient constructs a SandboxClient.
func NewSandboxClient() *SandboxClient {
	return &SandboxClient{}
}

// CreateIntent returns a locally generated order reference.
func (c *SandboxClient) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if ctx != nil {
		if errCtx := ctx.Err(); errCtx != nil {
			return Intent{}, errCtx
		}
	}
	amountMinor, err := ToMinorUnits(req.AmountUnits)
	if err != nil {
		return Intent{}, err
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return Intent{
		OrderRef:    "order_sbx_" + id[:14],
		AmountUnits: req.AmountUnits,
		AmountMinor: amountMinor,
		Currency:    normalizeCurrency(req.Currency),
	}, nil
}
