package main

import (
	"encoding/json"
	"net/http"

	"github.com/totalhack/zar-numberpool/apierrors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("encode response failed")
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind, _ := apierrors.Classify(err)
	status, body := errorResponse(kind)
	log.WithError(err).WithField("kind", kind.String()).Warn("request failed")
	writeJSON(w, status, body)
}

func errorResponse(kind apierrors.Kind) (int, map[string]any) {
	switch kind {
	case apierrors.KindNoSID:
		return http.StatusBadRequest, map[string]any{"error": true, "no_sid": true}
	case apierrors.KindPoolCookieExpired:
		return http.StatusOK, map[string]any{"expired": true}
	case apierrors.KindPoolUnavailable, apierrors.KindPoolEmpty, apierrors.KindSessionNumberUnavailable,
		apierrors.KindNumberNotFound, apierrors.KindMaxRenewalExceeded, apierrors.KindSessionKeyMismatch:
		return http.StatusConflict, map[string]any{"error": true, "kind": kind.String()}
	case apierrors.KindForbidden:
		return http.StatusForbidden, map[string]any{"error": true, "forbidden": true}
	case apierrors.KindConfigError:
		return http.StatusInternalServerError, map[string]any{"error": true, "internal_error": true}
	default:
		return http.StatusInternalServerError, map[string]any{"error": true, "internal_error": true}
	}
}
