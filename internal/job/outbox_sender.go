package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gSa1fe/isusP-sub000/internal/model"
	"github.com/gSa1fe/isusP-sub000/internal/repository"
)

// Publisher 消息投递，生产环境是 Kafka
type Publisher interface {
	Publish(topic, key, value string) error
}

// OutboxSender 轮询本地消息表，把充值状态变化和流水追加事件投递给通知服务
//
// 投递失败只重试，不影响已提交的审批结果；超过最大重试次数标记为 FAILED 等待人工处理。
type OutboxSender struct {
	outbox     repository.OutboxStore
	publisher  Publisher
	stopCh     chan struct{}
	stopOnce   sync.Once
	interval   time.Duration
	batchSize  int
	maxRetries int
}

func NewOutboxSender(outbox repository.OutboxStore, publisher Publisher, interval time.Duration, batchSize, maxRetries int) *OutboxSender {
	return &OutboxSender{
		outbox:     outbox,
		publisher:  publisher,
		stopCh:     make(chan struct{}),
		interval:   interval,
		batchSize:  batchSize,
		maxRetries: maxRetries,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	slog.Info("[OutboxSender] 消息发送任务启动", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			slog.Info("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// processPendingMessages 处理一批待发送消息，返回发送成功的条数
func (s *OutboxSender) processPendingMessages(ctx context.Context) int {
	messages, err := s.outbox.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		slog.Error("[OutboxSender] 查询消息失败", "err", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)

	if err == nil {
		if updateErr := s.outbox.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			slog.Error("[OutboxSender] 更新消息状态失败", "id", msg.ID, "err", updateErr)
			return false
		}
		slog.Debug("[OutboxSender] 消息发送成功", "id", msg.ID, "topic", msg.Topic, "key", msg.MessageKey)
		return true
	}

	slog.Warn("[OutboxSender] 消息发送失败", "id", msg.ID, "topic", msg.Topic, "retry", msg.RetryCount, "err", err)

	if err := s.outbox.IncrementRetryCount(ctx, msg.ID); err != nil {
		slog.Error("[OutboxSender] 增加重试次数失败", "id", msg.ID, "err", err)
	}

	if msg.RetryCount+1 >= s.maxRetries {
		if err := s.outbox.MarkAsFailed(ctx, msg.ID); err != nil {
			slog.Error("[OutboxSender] 标记消息失败状态失败", "id", msg.ID, "err", err)
		} else {
			slog.Error("[OutboxSender] 消息超过最大重试次数，标记为失败", "id", msg.ID, "topic", msg.Topic)
		}
	}
	return false
}
