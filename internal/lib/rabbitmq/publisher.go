// Package rabbitmq содержит публикацию отчётов аудита в брокер.
package rabbitmq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// PublishReport сериализует отчёт и публикует его в обмен.
// Сообщение помечено устойчивым, чтобы отчёт пережил перезапуск брокера,
// а MessageId позволяет потребителю различать повторные доставки.
func PublishReport(ch *amqp.Channel, exchange string, routingKey string, report any) error {
	const op = "rabbitmq.PublishReport"
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
