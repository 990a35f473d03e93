package store

import (
	"context"
	"testing"
	"time"
)

func TestRecordOrderIsIdempotentOnClientOrderID(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	firstID, err := s.RecordOrder(ctx, "coid-1", "BTC/USDT", "BUY", 0.1, "NEW", now)
	if err != nil {
		t.Fatalf("RecordOrder: %v", err)
	}
	secondID, err := s.RecordOrder(ctx, "coid-1", "BTC/USDT", "BUY", 0.1, "FILLED", now)
	if err != nil {
		t.Fatalf("RecordOrder (re-submit): %v", err)
	}
	if firstID != secondID {
		t.Fatalf("expected re-submitting the same client_order_id to return the same row id, got %s vs %s", firstID, secondID)
	}

	orders, err := s.OrdersBySymbol(ctx, "BTC/USDT", 10)
	if err != nil {
		t.Fatalf("OrdersBySymbol: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected exactly one audit row for a repeated client_order_id, got %d", len(orders))
	}
	if orders[0].Status != "FILLED" {
		t.Fatalf("expected status to have been updated to FILLED, got %s", orders[0].Status)
	}
}

func TestRecordTradeUpsertsPosition(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.RecordTrade(ctx, "order-1", "ETH/USDT", "BUY", 3000, 1, 0, 1, 3000, now); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}

	pos, err := s.GetPosition(ctx, "ETH/USDT")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if pos.Quantity != 1 || pos.AvgPrice != 3000 {
		t.Fatalf("unexpected position after first fill: %+v", pos)
	}

	if err := s.RecordTrade(ctx, "order-2", "ETH/USDT", "BUY", 3200, 1, 0, 2, 3100, now); err != nil {
		t.Fatalf("RecordTrade (second fill): %v", err)
	}
	pos, err = s.GetPosition(ctx, "ETH/USDT")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if pos.Quantity != 2 || pos.AvgPrice != 3100 {
		t.Fatalf("unexpected position after second fill: %+v", pos)
	}
}

func TestGetPositionUnknownSymbolReturnsErrNotFound(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.GetPosition(context.Background(), "DOES/NOTEXIST"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
