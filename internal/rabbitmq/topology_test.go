package rabbitmq

import (
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDeclarer struct {
	exchanges []string
	queues    []QueueDeclaration
	bindings  []Binding
	bindErr   error
}

func (d *recordingDeclarer) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	d.exchanges = append(d.exchanges, name+":"+kind)
	return nil
}

func (d *recordingDeclarer) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	d.queues = append(d.queues, QueueDeclaration{Name: name, Durable: durable, AutoDelete: autoDelete, Exclusive: exclusive})
	if name == "" {
		name = "amq.gen-1"
	}
	return amqp.Queue{Name: name}, nil
}

func (d *recordingDeclarer) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	if d.bindErr != nil {
		return d.bindErr
	}
	d.bindings = append(d.bindings, Binding{Queue: name, Exchange: exchange, RoutingKey: key})
	return nil
}

func TestDeclareTopology(t *testing.T) {
	t.Run("unit topology binds the generated queue", func(t *testing.T) {
		d := &recordingDeclarer{}
		queue, err := DeclareTopology(d, UnitTopology("unitbus", "unit.infra.gate", "room.#"))
		require.NoError(t, err)

		assert.Equal(t, "amq.gen-1", queue)
		assert.Equal(t, []string{"unitbus:topic"}, d.exchanges)
		require.Len(t, d.queues, 1)
		assert.True(t, d.queues[0].Exclusive)
		assert.True(t, d.queues[0].AutoDelete)
		assert.False(t, d.queues[0].Durable)
		assert.Equal(t, []Binding{
			{Queue: "amq.gen-1", Exchange: "unitbus", RoutingKey: "unit.infra.gate"},
			{Queue: "amq.gen-1", Exchange: "unitbus", RoutingKey: "room.#"},
		}, d.bindings)
	})

	t.Run("binding failures are topology errors", func(t *testing.T) {
		cause := errors.New("access refused")
		d := &recordingDeclarer{bindErr: cause}

		_, err := DeclareTopology(d, UnitTopology("unitbus", "room.#"))
		var topoErr *TopologyError
		require.ErrorAs(t, err, &topoErr)
		assert.Equal(t, "binding", topoErr.Component)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("invalid topology is rejected before declaring", func(t *testing.T) {
		d := &recordingDeclarer{}
		_, err := DeclareTopology(d, Topology{Exchanges: []ExchangeDeclaration{{Name: "unitbus"}}})
		assert.ErrorIs(t, err, ErrInvalidTopology)
		assert.Empty(t, d.exchanges)
	})
}
