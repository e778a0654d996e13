package service

import (
	"errors"
	"fmt"
)

// Классы ошибок торгового слоя. Вызывающие ветвятся через errors.Is по
// классу, не по тексту.
var (
	ErrConnectivity   = errors.New("connectivity error")
	ErrOrderRejected  = errors.New("order rejected")
	ErrModifyRejected = errors.New("modify rejected")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrValidation     = errors.New("validation error")
)

// OpError несёт и класс, и исходную причину: errors.Is находит оба.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// классификация по операции: отказ терминала на send — reject ордера,
// на модификацию/закрытие — reject модификации, всё сетевое — connectivity.
func wrapOp(op string, err error) error {
	if err == nil {
		return nil
	}

	kind := ErrConnectivity
	if isBackendReject(err) {
		switch op {
		case "order_send":
			kind = ErrOrderRejected
		case "order_modify", "order_close_delete", "order_close_by":
			kind = ErrModifyRejected
		}
	}
	return &OpError{Op: op, Kind: kind, Err: err}
}

// isBackendReject отличает ответ терминала с кодом ошибки от сетевого
// сбоя. Бэкенд-ошибка имеет метод Code() либо является структурой с
// кодом; мы опознаём её по интерфейсу.
type coder interface {
	Error() string
	BackendCode() int
}

func isBackendReject(err error) bool {
	var c coder
	return errors.As(err, &c)
}
