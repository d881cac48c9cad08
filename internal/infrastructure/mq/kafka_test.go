package mq

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"event":"topup.approved"}` {
			return errors.New("unexpected payload")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewPublisher(producer)
	require.NoError(t, p.Publish("wallet.topup.events", "7", `{"event":"topup.approved"}`))
	assert.ErrorIs(t, p.Publish("wallet.topup.events", "7", `{}`), sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}
