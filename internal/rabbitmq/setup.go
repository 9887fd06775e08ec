package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

// Имена обмена, очереди и ключа маршрутизации для находок аудитора.
const (
	AuditExchange   = "audit"
	AuditQueue      = "audit.findings"
	AuditRoutingKey = "findings"
)

// SetupChannel открывает канал и объявляет топологию обмена audit.
func SetupChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	err = ch.ExchangeDeclare(
		AuditExchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	_, err = ch.QueueDeclare(
		AuditQueue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	err = ch.QueueBind(AuditQueue, AuditRoutingKey, AuditExchange, false, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ch, err
}
