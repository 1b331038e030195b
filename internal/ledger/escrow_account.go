package ledger

import "context"

// EscrowAccount exposes the ledger's escrow operations with settlement fees
// routed to a fixed platform account. It satisfies escrow.LedgerService.
type EscrowAccount struct {
	ledger     *Ledger
	platformID string
}

// ForEscrow returns an EscrowAccount that credits fees to platformID.
func (l *Ledger) ForEscrow(platformID string) *EscrowAccount {
	return &EscrowAccount{ledger: l, platformID: platformID}
}

func (a *EscrowAccount) EscrowLock(ctx context.Context, userID string, amount int64, reference string) error {
	return a.ledger.EscrowLock(ctx, userID, amount, reference)
}

func (a *EscrowAccount) RefundEscrow(ctx context.Context, userID string, amount int64, reference string) error {
	return a.ledger.RefundEscrow(ctx, userID, amount, reference)
}

func (a *EscrowAccount) SettleEscrow(ctx context.Context, buyerID, sellerID string, amount, fee int64, reference string) error {
	return a.ledger.SettleEscrow(ctx, Settlement{
		BuyerID:    buyerID,
		SellerID:   sellerID,
		PlatformID: a.platformID,
		Amount:     amount,
		Fee:        fee,
		Reference:  reference,
	})
}
