package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/sl"
)

// ConsumeReports читает отчёты аудита из очереди и передаёт их обработчику.
// Отчёты обрабатываются последовательно: каждый запуск аудита производит
// один отчёт, и порядок писем должен совпадать с порядком запусков.
// При ошибке обработчика сообщение возвращается в очередь.
func ConsumeReports(ctx context.Context, ch *amqp.Channel, queueName string,
	log *slog.Logger, handler func([]byte) error) error {
	const op = "rabbitmq.ConsumeReports"

	delivery, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	go func() {
		for {
			select {
			case d, ok := <-delivery:
				if !ok {
					return
				}
				if err := handler(d.Body); err != nil {
					log.Error("failed to process audit report", sl.Err(err))
					if nackErr := d.Nack(false, true); nackErr != nil {
						log.Error("failed to nack report", sl.Err(nackErr))
					}
					continue
				}
				if ackErr := d.Ack(false); ackErr != nil {
					log.Error("failed to ack report", sl.Err(ackErr))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
