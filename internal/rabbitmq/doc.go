// Package rabbitmq holds the AMQP plumbing of the RabbitMQ transport.
//
// ConnectionManager owns one connection and reports its end to state listeners; it
// does not reconnect. DeclareTopology sets up the topic exchange, the private queue
// of a unit and its bindings.
package rabbitmq
