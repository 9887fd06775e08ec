// Package smtp отправляет письма с отчётами аудита по SMTP с STARTTLS.
package smtp

import "io"

// Client — минимальный срез net/smtp клиента, достаточный для отправки
// одного письма. Выделен в интерфейс ради подмены в тестах отправителя.
type Client interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// TransportInterface устанавливает соединение с SMTP-сервером.
type TransportInterface interface {
	Connect() (Client, error)
	GetSMTPUser() string
}
