package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gSa1fe/isusP-sub000/internal/model"
	"github.com/gSa1fe/isusP-sub000/internal/repository"
)

// Topics outbox 消息投递的 Kafka topic
type Topics struct {
	TopupEvents  string
	LedgerEvents string
}

// writeOutbox 与业务数据同事务写入本地消息表，按用户ID作为分区 key
func writeOutbox(ctx context.Context, s repository.Stores, topic string, userID int64, payload interface{}) error {
	if topic == "" {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.Outbox.Create(ctx, &model.OutboxMessage{
		MessageKey: strconv.FormatInt(userID, 10),
		Topic:      topic,
		Payload:    string(body),
		Status:     model.OutboxStatusPending,
	})
}

func topupEvent(event string, t *model.TopupRequest, operatorID int64) *model.TopupEvent {
	e := &model.TopupEvent{
		Event:       event,
		TopupNo:     t.TopupNo,
		UserID:      t.UserID,
		Status:      t.Status,
		CoinsAmount: t.CoinsAmount,
		OperatorID:  operatorID,
		OccurredAt:  time.Now(),
	}
	if t.RejectReason != nil {
		e.RejectReason = *t.RejectReason
	}
	return e
}

func ledgerEvent(tx *model.CoinTransaction) *model.LedgerEvent {
	return &model.LedgerEvent{
		Event:         model.EventLedgerAppended,
		TransactionNo: tx.TransactionNo,
		UserID:        tx.UserID,
		Type:          tx.Type,
		Amount:        tx.Amount,
		BalanceAfter:  tx.BalanceAfter,
		ReferenceID:   tx.ReferenceID,
		OccurredAt:    time.Now(),
	}
}
