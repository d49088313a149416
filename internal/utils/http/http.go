package http

import (
	"encoding/json"
	ers "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang/gddo/httputil/header"
	"github.com/resq-app/resq-backend/internal/logging"
	"github.com/resq-app/resq-backend/internal/utils"
	"github.com/resq-app/resq-backend/internal/utils/errors"
	rpccode "google.golang.org/genproto/googleapis/rpc/code"
)

const maxBodyBytes = 1048576

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// DecodeJSONBody decodes a single JSON object from the request body into dst and validates it.
// Based on https://www.alexedwards.net/blog/how-to-properly-parse-a-json-request-body
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Header.Get("Content-Type") != "" {
		value, _ := header.ParseValueAndParams(r.Header, "Content-Type")
		if value != "application/json" {
			msg := "Content-Type header is not application/json"
			return &errors.MalformedRequestError{Status: http.StatusUnsupportedMediaType, Msg: msg}
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError

		switch {
		case ers.As(err, &syntaxError):
			msg := fmt.Sprintf("Request body contains badly-formed JSON (at position %d)", syntaxError.Offset)
			return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}

		case ers.Is(err, io.ErrUnexpectedEOF):
			msg := "Request body contains badly-formed JSON"
			return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}

		case ers.As(err, &unmarshalTypeError):
			msg := fmt.Sprintf("Request body contains an invalid value for the %q field (at position %d)", unmarshalTypeError.Field, unmarshalTypeError.Offset)
			return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}

		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			msg := fmt.Sprintf("Request body contains unknown field %s", fieldName)
			return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}

		case ers.Is(err, io.EOF):
			msg := "Request body must not be empty"
			return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}

		case err.Error() == "http: request body too large":
			msg := "Request body must not be larger than 1MB"
			return &errors.MalformedRequestError{Status: http.StatusRequestEntityTooLarge, Msg: msg}

		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if err != io.EOF {
		msg := "Request body must only contain a single JSON object"
		return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}
	}

	return ValidateRequest(dst)
}

// ValidateRequest runs struct validation and wraps failures as malformed request.
func ValidateRequest(dst interface{}) error {
	if err := utils.Validate.Struct(dst); err != nil {
		msg := fmt.Sprintf("Validation of the request has failed: %v", err.Error())
		return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}
	}
	return nil
}

// DecodeJSONOrReportError decodes the body and answers with an error response when it fails.
// Returns false when the handler must stop.
func DecodeJSONOrReportError(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := DecodeJSONBody(w, r, dst); err != nil {
		logging.FromContext(r.Context()).Debugf("Could not decode request: %v", err)
		SendErrorResponse(w, r, err)
		return false
	}
	return true
}

// SendResponse writes the response as JSON with status 200.
func SendResponse(w http.ResponseWriter, r *http.Request, response interface{}) {
	sendJSON(w, r, http.StatusOK, response)
}

// SendErrorResponse writes `{success:false, error}` with a status derived from the error type.
func SendErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "Unknown error"

	var malformed *errors.MalformedRequestError
	var coded errors.ResqError

	switch {
	case ers.As(err, &malformed):
		status = malformed.Status
		if status == 0 {
			status = http.StatusBadRequest
		}
		msg = malformed.Msg
	case ers.As(err, &coded):
		status = StatusFromCode(coded.Code())
		msg = coded.Error()
	default:
		logging.FromContext(r.Context()).Warnf("Unexpected error: %v", err)
	}

	sendJSON(w, r, status, errorResponse{Success: false, Error: msg})
}

// StatusFromCode maps rpc codes to HTTP statuses.
func StatusFromCode(code rpccode.Code) int {
	switch code {
	case rpccode.Code_OK:
		return http.StatusOK
	case rpccode.Code_INVALID_ARGUMENT:
		return http.StatusBadRequest
	case rpccode.Code_UNAUTHENTICATED:
		return http.StatusUnauthorized
	case rpccode.Code_PERMISSION_DENIED:
		return http.StatusForbidden
	case rpccode.Code_NOT_FOUND:
		return http.StatusNotFound
	case rpccode.Code_UNAVAILABLE:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func sendJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(r.Context()).Warnf("Could not write response: %v", err)
	}
}
