package escrow

import "strings"

// TransferInRollup reassigns amount of sender's claim to receiver without
// moving funds. The move is zero-sum so total_deposited, read as the sum
// of currently claimable funds, is unchanged.
func (p *Pool) TransferInRollup(sender, receiver string, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(receiver) == "" {
		return ErrInvalidReceiver
	}
	if p.IsFinalized {
		return ErrMatchFinalized
	}
	si := p.indexOf(sender)
	if si < 0 || p.Deposits[si].Amount < amount {
		return ErrInsufficientBalance
	}
	if sender == receiver {
		return nil
	}

	ri := p.indexOf(receiver)
	if ri < 0 && len(p.Deposits) >= MaxDeposits {
		return ErrCapacityExceeded
	}
	senderNext, err := checkedSub(p.Deposits[si].Amount, amount)
	if err != nil {
		return err
	}
	if ri >= 0 {
		receiverNext, err := checkedAdd(p.Deposits[ri].Amount, amount)
		if err != nil {
			return err
		}
		p.Deposits[ri].Amount = receiverNext
	} else {
		p.Deposits = append(p.Deposits, Deposit{User: receiver, Amount: amount})
	}
	p.Deposits[si].Amount = senderNext
	return nil
}
