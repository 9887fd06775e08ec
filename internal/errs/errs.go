// Package errs определяет доменную таксономию ошибок лицензионного ядра.
//
// ErrNotFound — запись, на которую ссылаются, отсутствует; останавливает
// конкретную операцию, но не весь пакет. ErrDuplicateConflict — две записи
// претендуют на один естественный ключ; разрешается политикой выбора
// хранителя, а не падением. IdentityProviderError — сбой внешнего
// провайдера идентификации; прерывает операцию только для одной записи.
package errs

import (
	"errors"
	"fmt"
)

// ErrNotFound возвращается, когда запись по ссылке или естественному
// ключу отсутствует в хранилище.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateConflict возвращается, когда несколько записей претендуют
// на один естественный ключ и требуется выбор хранителя.
var ErrDuplicateConflict = errors.New("duplicate records for natural key")

// NotFound оборачивает ErrNotFound с указанием коллекции и ссылки.
func NotFound(collection, ref string) error {
	return fmt.Errorf("%s %q: %w", collection, ref, ErrNotFound)
}

// IdentityProviderError описывает сбой внешнего провайдера идентификации.
// Локальная запись пользователя при таком сбое не фиксируется.
type IdentityProviderError struct {
	Op  string // Операция провайдера: create или update
	Err error  // Исходная ошибка
}

func (e *IdentityProviderError) Error() string {
	return fmt.Sprintf("identity provider %s failed: %v", e.Op, e.Err)
}

func (e *IdentityProviderError) Unwrap() error {
	return e.Err
}
