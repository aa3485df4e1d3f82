package events

import (
	"context"
	"encoding/json"
	"testing"

	"YONASettlement/internal/models"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("ok, none driver", func(t *testing.T) {
		p, err := New(Config{Driver: "none"})
		require.NoError(t, err)
		require.NoError(t, p.Publish(context.Background(), StatusChanged("I1", models.StatusPaymentInitiated, models.StatusDescriptorReceived)))
		require.NoError(t, p.Close())
	})

	t.Run("ok, kafka writer keyed by topic", func(t *testing.T) {
		p, err := New(Config{Driver: "kafka", Brokers: []string{"localhost:9092"}, Topic: "yona.intents"})
		require.NoError(t, err)
		kp := p.(*KafkaPublisher)
		require.Equal(t, "yona.intents", kp.Writer.Topic)
	})

	t.Run("fail, kafka without brokers", func(t *testing.T) {
		_, err := New(Config{Driver: "kafka"})
		require.Error(t, err)
	})

	t.Run("fail, unknown driver", func(t *testing.T) {
		_, err := New(Config{Driver: "carrier-pigeon"})
		require.Error(t, err)
	})
}

func TestEventJSON(t *testing.T) {
	e := StatusChanged("INTENT_1", models.StatusTemplateReceived, models.StatusTRAccepted)
	b, err := json.Marshal(e)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	require.Equal(t, TypeStatusChanged, m["type"])
	require.Equal(t, "TR_ACCEPTED", m["status"])
	require.Equal(t, "TEMPLATE_RECEIVED", m["previous_status"])
	require.NotContains(t, m, "tx_hash")
}
