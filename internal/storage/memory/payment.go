package memory

import (
	"context"

	"github.com/xenking/kart-commerce/internal/domain/payment"
)

func (s *PaymentRepository) Save(ctx context.Context, p *payment.Payment) error {
	defer s.lock(ctx)()

	if p.ID == 0 {
		p.ID = s.nextID()
	} else if _, ok := s.payments[p.ID]; !ok {
		return payment.ErrNotFound
	}
	s.onRollback(ctx, restore(s.payments, p.ID))
	s.payments[p.ID] = *p
	return nil
}

func (s *PaymentRepository) FindByOrderID(ctx context.Context, orderID int64) (*payment.Payment, error) {
	defer s.lock(ctx)()

	var latest *payment.Payment
	for _, p := range s.payments {
		if p.OrderID != orderID {
			continue
		}
		if latest == nil || p.ID > latest.ID {
			latest = &p
		}
	}
	if latest == nil {
		return nil, payment.ErrNotFound
	}
	return latest, nil
}
