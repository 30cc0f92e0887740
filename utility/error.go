package utility

import "fmt"

// AppError is an application error without an underlying cause
type AppError struct {
	message string
}

func (e *AppError) Error() string {
	return e.message
}

// Err returns an AppError; with args the message is a fmt format
func Err(format string, args ...interface{}) error {
	if len(args) == 0 {
		return &AppError{format}
	}
	return &AppError{fmt.Sprintf(format, args...)}
}
