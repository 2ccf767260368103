package market

import (
	"context"
	"fmt"

	"carbon-scribe/credit-market/internal/ledger"
)

// RecipientPolicy decides whether a direct transfer may credit recipient
type RecipientPolicy interface {
	Authorize(ctx context.Context, sender, recipient string) error
}

// Recipient policy modes accepted by NewRecipientPolicy
const (
	PolicyAllowAll  = "allow_all"
	PolicyAllowList = "allow_list"
	PolicyDenyList  = "deny_list"
)

// AllowAll permits every recipient
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, string, string) error { return nil }

// AllowList permits only the listed recipients
type AllowList struct {
	allowed map[string]struct{}
}

func NewAllowList(recipients []string) *AllowList {
	return &AllowList{allowed: toSet(recipients)}
}

func (p *AllowList) Authorize(_ context.Context, _, recipient string) error {
	if _, ok := p.allowed[recipient]; !ok {
		return fmt.Errorf("%w: %s is not on the allow list", ledger.ErrRecipientRejected, recipient)
	}
	return nil
}

// DenyList rejects the listed recipients
type DenyList struct {
	denied map[string]struct{}
}

func NewDenyList(recipients []string) *DenyList {
	return &DenyList{denied: toSet(recipients)}
}

func (p *DenyList) Authorize(_ context.Context, _, recipient string) error {
	if _, ok := p.denied[recipient]; ok {
		return fmt.Errorf("%w: %s is on the deny list", ledger.ErrRecipientRejected, recipient)
	}
	return nil
}

// NewRecipientPolicy builds the policy named by mode
func NewRecipientPolicy(mode string, recipients []string) (RecipientPolicy, error) {
	switch mode {
	case "", PolicyAllowAll:
		return AllowAll{}, nil
	case PolicyAllowList:
		return NewAllowList(recipients), nil
	case PolicyDenyList:
		return NewDenyList(recipients), nil
	default:
		return nil, fmt.Errorf("unknown recipient policy %q", mode)
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
