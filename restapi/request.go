/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// MalformedRequestError is returned when the request cannot be decoded.
type MalformedRequestError struct {
	HTTPStatusCode int
	Message        string
}

func (e *MalformedRequestError) Error() string {
	return e.Message
}

func newBadRequest(format string, args ...interface{}) *MalformedRequestError {
	return &MalformedRequestError{http.StatusBadRequest, fmt.Sprintf(format, args...)}
}

// DecodeRequestJSON decodes the request body as a single JSON value.
// Bodies cut by http.MaxBytesReader yield 413.
func DecodeRequestJSON(r *http.Request, dst interface{}) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != ContentTypeAppJSON {
			return &MalformedRequestError{http.StatusUnsupportedMediaType, fmt.Sprintf("Content-Type %q is not supported.", ct)}
		}
	}

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return newBadRequest("Request body must not be empty.")
		case errors.Is(err, io.ErrUnexpectedEOF):
			return newBadRequest("Request body contains badly-formed JSON.")
		case errors.As(err, &syntaxErr):
			return newBadRequest("Request body contains badly-formed JSON (at position %d).", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			if typeErr.Field != "" {
				return newBadRequest("Request body contains an invalid value for the %q field (at position %d).",
					typeErr.Field, typeErr.Offset)
			}
			return newBadRequest("Request body contains an invalid value of type %q.", typeErr.Value)
		case errors.As(err, &maxBytesErr):
			return &MalformedRequestError{http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body must not be larger than %d bytes.", maxBytesErr.Limit)}
		default:
			return err
		}
	}
	if dec.More() {
		return newBadRequest("Request body must only contain a single JSON object.")
	}
	return nil
}
