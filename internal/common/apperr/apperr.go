package apperr

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Kind 业务错误类别（封闭枚举）。
// 上层根据 Kind 做分发，不允许匹配错误文案。
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidTransition
	KindVehicleUnavailable
	KindEmptyPlan
	KindValidation
	KindVehicleConflict
	KindDriverConflict
	KindTransaction
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindVehicleUnavailable:
		return "vehicle_unavailable"
	case KindEmptyPlan:
		return "empty_plan"
	case KindValidation:
		return "validation"
	case KindVehicleConflict:
		return "vehicle_conflict"
	case KindDriverConflict:
		return "driver_conflict"
	case KindTransaction:
		return "transaction"
	default:
		return "unknown"
	}
}

// Error 带类别的业务错误。
// ConflictID 仅在排班冲突类错误上填充（指向冲突的 assignment）。
type Error struct {
	Kind       Kind
	Msg        string
	ConflictID string
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is 支持 errors.Is(err, &Error{Kind: ...}) 形式的类别比较。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), cause: cause}
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func InvalidTransition(format string, args ...interface{}) *Error {
	return New(KindInvalidTransition, format, args...)
}

func VehicleUnavailable(format string, args ...interface{}) *Error {
	return New(KindVehicleUnavailable, format, args...)
}

func EmptyPlan(format string, args ...interface{}) *Error {
	return New(KindEmptyPlan, format, args...)
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

// VehicleConflict 车辆排班冲突，conflictID 为已存在的冲突 assignment。
func VehicleConflict(conflictID, format string, args ...interface{}) *Error {
	e := New(KindVehicleConflict, format, args...)
	e.ConflictID = conflictID
	return e
}

// DriverConflict 司机排班冲突。
func DriverConflict(conflictID, format string, args ...interface{}) *Error {
	e := New(KindDriverConflict, format, args...)
	e.ConflictID = conflictID
	return e
}

func Transaction(cause error) *Error {
	return Wrap(KindTransaction, cause, "transaction failed")
}

// KindOf 提取错误类别；非业务错误返回 KindUnknown。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ConflictIDOf 提取冲突排班 id；非冲突类错误返回空串。
func ConflictIDOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.ConflictID
	}
	return ""
}

// FromDB 把存储层错误翻译为业务错误：记录不存在 -> NotFound，其余 -> Transaction。
func FromDB(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(format, args...)
	}
	return Wrap(KindTransaction, err, format, args...)
}
