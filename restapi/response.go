/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/railreport/reportqueue/log"
)

// ContentTypeAppJSON is the MIME type of JSON.
const ContentTypeAppJSON = "application/json"

// ErrorResponseData is the envelope of error responses: {"error": {...}}.
type ErrorResponseData struct {
	Err *Error `json:"error"`
}

// marshalJSON encodes v without HTML escaping and without the trailing newline.
func marshalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// RespondJSON responds with 200 and the JSON-encoded data.
func RespondJSON(rw http.ResponseWriter, respData interface{}, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, http.StatusOK, respData, logger)
}

// RespondCodeAndJSON responds with the status code and the JSON-encoded data.
// A nil respData produces an empty body.
func RespondCodeAndJSON(rw http.ResponseWriter, statusCode int, respData interface{}, logger log.FieldLogger) {
	if respData == nil {
		rw.WriteHeader(statusCode)
		return
	}
	body, err := marshalJSON(respData)
	if err != nil {
		if logger != nil {
			logger.Error("failed to marshal response body", log.Error(err))
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", ContentTypeAppJSON)
	}
	rw.WriteHeader(statusCode)
	if _, err = rw.Write(body); err != nil && logger != nil {
		logger.Error("failed to write response body", log.Error(err))
	}
}

// RespondError logs the error, counts it in metrics and responds with it in the envelope.
func RespondError(rw http.ResponseWriter, httpStatusCode int, err *Error, logger log.FieldLogger) {
	if logger != nil {
		fields := []log.Field{log.String("error_code", err.Code), log.String("error_message", err.Message)}
		if len(err.Context) != 0 {
			fields = append(fields, log.Any("error_context", err.Context))
		}
		if httpStatusCode >= http.StatusInternalServerError {
			logger.Error("error in response", fields...)
		} else {
			logger.Warn("error in response", fields...)
		}
	}
	responseErrors.inc(err)
	RespondCodeAndJSON(rw, httpStatusCode, ErrorResponseData{err}, logger)
}

// RespondInternalError responds with 500 and an internal error of the domain.
func RespondInternalError(rw http.ResponseWriter, domain string, logger log.FieldLogger) {
	RespondError(rw, http.StatusInternalServerError, NewInternalError(domain), logger)
}

// RespondMalformedRequestOrInternalError responds with the status of a *MalformedRequestError,
// or with 500 for any other error.
func RespondMalformedRequestOrInternalError(rw http.ResponseWriter, domain string, err error, logger log.FieldLogger) {
	var reqErr *MalformedRequestError
	if !errors.As(err, &reqErr) {
		if logger != nil {
			logger.Error(fmt.Sprintf("failed to handle request: %v", err), log.Error(err))
		}
		RespondInternalError(rw, domain, logger)
		return
	}
	RespondError(rw, reqErr.HTTPStatusCode, NewError(domain, httpCodeToErrorCode(reqErr.HTTPStatusCode), reqErr.Message), logger)
}
