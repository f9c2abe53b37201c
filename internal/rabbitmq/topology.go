package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Declarer is the part of *amqp.Channel used to declare topology
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// ExchangeDeclaration defines an exchange to be declared
type ExchangeDeclaration struct {
	Name       string
	Type       string
	Durable    bool
	AutoDelete bool
	Arguments  amqp.Table
}

// QueueDeclaration defines a queue to be declared. An empty name lets the broker
// generate one.
type QueueDeclaration struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Arguments  amqp.Table
}

// Binding defines a queue-to-exchange binding. An empty queue refers to the queue of the
// topology.
type Binding struct {
	Queue      string
	Exchange   string
	RoutingKey string
	Arguments  amqp.Table
}

// Topology is the set of exchanges, the consuming queue and its bindings of one unit
type Topology struct {
	Exchanges []ExchangeDeclaration
	Queue     QueueDeclaration
	Bindings  []Binding
}

// UnitTopology describes a topic exchange and a private queue bound with the given keys
func UnitTopology(exchange string, keys ...string) Topology {
	t := Topology{
		Exchanges: []ExchangeDeclaration{{
			Name:    exchange,
			Type:    amqp.ExchangeTopic,
			Durable: true,
		}},
		Queue: QueueDeclaration{
			AutoDelete: true,
			Exclusive:  true,
		},
	}
	for _, key := range keys {
		t.Bindings = append(t.Bindings, Binding{Exchange: exchange, RoutingKey: key})
	}
	return t
}

// Validate checks the topology for obvious mistakes
func (t Topology) Validate() error {
	for _, ex := range t.Exchanges {
		if ex.Name == "" || ex.Type == "" {
			return fmt.Errorf("%w: exchange needs a name and a type", ErrInvalidTopology)
		}
	}
	for _, b := range t.Bindings {
		if b.Exchange == "" || b.RoutingKey == "" {
			return fmt.Errorf("%w: binding needs an exchange and a routing key", ErrInvalidTopology)
		}
	}
	return nil
}

// DeclareTopology declares the topology and returns the name of its queue
func DeclareTopology(ch Declarer, topology Topology) (string, error) {
	if err := topology.Validate(); err != nil {
		return "", err
	}

	for _, ex := range topology.Exchanges {
		if err := ch.ExchangeDeclare(ex.Name, ex.Type, ex.Durable, ex.AutoDelete, false, false, ex.Arguments); err != nil {
			return "", &TopologyError{Component: "exchange", Name: ex.Name, Op: "declare", Err: err}
		}
	}

	q := topology.Queue
	declared, err := ch.QueueDeclare(q.Name, q.Durable, q.AutoDelete, q.Exclusive, false, q.Arguments)
	if err != nil {
		return "", &TopologyError{Component: "queue", Name: q.Name, Op: "declare", Err: err}
	}

	for _, b := range topology.Bindings {
		queue := b.Queue
		if queue == "" {
			queue = declared.Name
		}
		if err := ch.QueueBind(queue, b.RoutingKey, b.Exchange, false, b.Arguments); err != nil {
			return "", &TopologyError{Component: "binding", Name: b.RoutingKey, Op: "bind", Err: err}
		}
	}

	return declared.Name, nil
}
