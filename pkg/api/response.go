// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/service"
)

const (
	contentType   = "application/json; charset=utf-8"
	odataVersion  = "4.0"
	generalError  = "Base.1.0.GeneralError"
	entityMessage = "EntityOperationException exception encountered."
)

// wrappedResponseRecorder captures the status and size of a response.
type wrappedResponseRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (w *wrappedResponseRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *wrappedResponseRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}

func (w *wrappedResponseRecorder) status() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}

func setHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("OData-Version", odataVersion)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		writeError(w, r, service.NewInternalError(err))
		return
	}
	setHeaders(w)
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logger.Ctx(r.Context()).Debug().Err(err).Msg("api: failed to write response")
	}
}

// writeCreated answers 201 with the Location of the new resource.
func writeCreated(w http.ResponseWriter, r *http.Request, location string, v any) {
	w.Header().Set("Location", location)
	if v == nil {
		setHeaders(w)
		w.WriteHeader(http.StatusCreated)
		return
	}
	writeJSON(w, r, http.StatusCreated, v)
}

func writeNoContent(w http.ResponseWriter) {
	w.Header().Set("OData-Version", odataVersion)
	w.WriteHeader(http.StatusNoContent)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code         string         `json:"code"`
	Message      string         `json:"message"`
	ExtendedInfo []extendedInfo `json:"@Message.ExtendedInfo"`
}

type extendedInfo struct {
	Message string `json:"Message"`
}

// writeError renders err as a Redfish error. Errors without a code are
// internal errors.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		svcErr = service.NewInternalError(err)
	}
	status := svcErr.HTTPStatus()
	body := errorBody{Error: errorDetail{
		Code:         generalError,
		Message:      svcErr.Message,
		ExtendedInfo: []extendedInfo{},
	}}

	switch svcErr.Code {
	case service.ErrCodeRequestValidation:
		for _, v := range svcErr.Violations {
			body.Error.ExtendedInfo = append(body.Error.ExtendedInfo, extendedInfo{Message: v})
		}
	case service.ErrCodeEntityOperation:
		body.Error.Message = entityMessage
		body.Error.ExtendedInfo = append(body.Error.ExtendedInfo, extendedInfo{Message: svcErr.Message})
	case service.ErrCodeAssetNotAvailable:
		secs := int(svcErr.RetryAfter.Seconds())
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		body.Error.ExtendedInfo = append(body.Error.ExtendedInfo, extendedInfo{
			Message: fmt.Sprintf("Retry request after %d seconds.", secs),
		})
	}

	ev := logger.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		ev = logger.Ctx(r.Context()).Error()
	}
	ev.Err(err).Int("status", status).Str("code", svcErr.Code.String()).Msg("api: request failed")
	writeJSON(w, r, status, body)
}
