// Package batch реализует постраничный обход больших коллекций
// с ограничением темпа между страницами. Пакетные задания читают
// хранилище страницами фиксированного размера, чтобы ограничить
// нагрузку, а пауза между страницами задаётся лимитером.
package batch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// FetchFunc загружает и обрабатывает одну страницу.
// Возвращает количество прочитанных записей: страница короче limit
// означает конец коллекции.
type FetchFunc func(ctx context.Context, limit, offset int) (int, error)

// Pager обходит коллекцию страницами фиксированного размера.
type Pager struct {
	size    int
	limiter *rate.Limiter
}

// NewPager создает Pager с размером страницы size и паузой delay
// между страницами. Неположительный size заменяется на 500.
func NewPager(size int, delay time.Duration) *Pager {
	if size <= 0 {
		size = 500
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	return &Pager{size: size, limiter: limiter}
}

// Size возвращает размер страницы.
func (p *Pager) Size() int { return p.size }

// Run вызывает fetch страница за страницей, пока коллекция не будет
// исчерпана или контекст не будет отменён.
func (p *Pager) Run(ctx context.Context, fetch FetchFunc) error {
	const op = "batch.Run"
	offset := 0
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		n, err := fetch(ctx, p.size, offset)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if n < p.size {
			return nil
		}
		offset += n
	}
}
