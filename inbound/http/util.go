package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"workshop-enrollment/common/errs"
	"workshop-enrollment/model"
	"workshop-enrollment/usecase/checkout"

	"github.com/go-playground/validator/v10"
)

func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func writeErrorResponse(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	w.Header().Set("Content-Type", "application/json")

	var (
		message       string
		data          any
		httpErr       *errs.HttpError
		validationErr validator.ValidationErrors
		cartErr       *checkout.InvalidCartError
	)

	switch {
	case errors.As(err, &httpErr):
		message = httpErr.Message
		data = httpErr.Data
		w.WriteHeader(httpErr.Code)
	case errors.As(err, &validationErr):
		message = "Validation failed"
		w.WriteHeader(http.StatusBadRequest)

		validationErrors := make(map[string]string)
		for _, fieldErr := range validationErr {
			validationErrors[fieldErr.Field()] = fieldErr.Tag()
		}

		data = validationErrors
	case errors.As(err, &cartErr):
		domainErr := errs.FromDomain(err)
		message = domainErr.Message
		data = cartErr.Problems
		w.WriteHeader(domainErr.Code)
	default:
		if domainErr := errs.FromDomain(err); domainErr != nil {
			message = domainErr.Message
			w.WriteHeader(domainErr.Code)
			break
		}
		message = "Internal Server Error"
		w.WriteHeader(http.StatusInternalServerError)
	}

	errorResponse := model.ErrorResponse{Error: message, Data: data}
	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

var errInvalidRequest = &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errInvalidRequest
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidRequest
	}
	return id, nil
}
