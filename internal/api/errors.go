package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"docrag/internal/util"
)

var errBadRequest = errors.New("bad request")

// statusClientClosed is the nginx convention for a request the client gave up on.
const statusClientClosed = 499

type apiError struct {
	Code    string
	Type    string
	Message string
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest
	}
	if errors.Is(err, context.Canceled) {
		return statusClientClosed
	}
	switch util.ErrorType(err) {
	case util.TypeInvalidFormat, util.TypeInvalidQuery:
		return http.StatusBadRequest
	case util.TypeNoExtractableText:
		return http.StatusUnprocessableEntity
	case util.TypeNotFound:
		return http.StatusNotFound
	case util.TypeEmbeddingFailure, util.TypeGenerationError:
		return http.StatusBadGateway
	case util.TypeIndexError:
		return http.StatusServiceUnavailable
	case util.TypeCollaboratorTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

var typeErrors = map[string]apiError{
	util.TypeInvalidFormat:       {Code: "DR-DOC-4001", Message: "The upload is not a readable PDF."},
	util.TypeNoExtractableText:   {Code: "DR-DOC-4221", Message: "No text could be extracted from the PDF, even with OCR."},
	util.TypeInvalidQuery:        {Code: "DR-QRY-4001", Message: "The question is empty or malformed."},
	util.TypeNotFound:            {Code: "DR-API-4004", Message: "Requested resource was not found."},
	util.TypeEmbeddingFailure:    {Code: "DR-EMB-5021", Message: "Embedding provider unavailable. Retry shortly."},
	util.TypeGenerationError:     {Code: "DR-GEN-5022", Message: "Answer generation failed. Retry shortly."},
	util.TypeIndexError:          {Code: "DR-IDX-5031", Message: "Vector index unavailable. Retry shortly."},
	util.TypeCollaboratorTimeout: {Code: "DR-API-5040", Message: "An upstream service timed out. Retry shortly."},
}

func toAPIError(status int, err error) apiError {
	typ := util.ErrorType(err)
	if errors.Is(err, errBadRequest) {
		return apiError{Code: "DR-API-4000", Type: "BadRequest", Message: userMessage(err)}
	}
	switch status {
	case http.StatusMethodNotAllowed:
		return apiError{Code: "DR-API-4005", Type: "MethodNotAllowed", Message: "This endpoint does not support the requested method."}
	case statusClientClosed:
		return apiError{Code: "DR-API-4990", Type: "Canceled", Message: "The request was canceled."}
	}
	if e, ok := typeErrors[typ]; ok {
		e.Type = typ
		if status < 500 && err != nil {
			e.Message = e.Message + " " + userMessage(err)
		}
		return e
	}
	if status == http.StatusNotFound {
		return apiError{Code: "DR-API-4004", Type: util.TypeNotFound, Message: "Requested resource was not found."}
	}

	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}
	switch {
	case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
		return apiError{Code: "DR-DB-5001", Type: util.TypeInternal, Message: "Database schema is not initialized. Run migrations and retry."}
	case strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
		return apiError{Code: "DR-DB-5002", Type: util.TypeInternal, Message: "A backing service is unavailable. Check local services and retry."}
	}
	return apiError{Code: "DR-API-5000", Type: util.TypeInternal, Message: "Internal server error. Please retry or check service logs."}
}

// userMessage keeps validation context for 4xx responses, capped so raw
// parser output never floods a response.
func userMessage(err error) string {
	if err == nil {
		return ""
	}
	return util.DisplaySnippet(err.Error(), 300)
}
