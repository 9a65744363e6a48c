package backend

import (
	"encoding/json"
	"errors"
	"fmt"

	http_utils "github.com/jwichpas/backend-project-admin-sub000/pkg/httpUtils"
)

// Error is the backend's error envelope. Error() returns the message as
// sent so callers can surface it unchanged.
type Error struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend request failed with status %d", e.Status)
	}
	return e.Message
}

// IsCode reports whether err is a backend error with the given code.
func IsCode(err error, code string) bool {
	var be *Error
	return errors.As(err, &be) && be.Code == code
}

// fromStatus turns a non-2xx response into *Error. Bodies that are not the
// usual envelope keep their raw text as the message.
func fromStatus(se *http_utils.StatusError) *Error {
	be := &Error{Status: se.StatusCode}
	if err := json.Unmarshal(se.Body, be); err != nil || be.Message == "" {
		be.Message = string(se.Body)
	}
	be.Status = se.StatusCode
	return be
}
