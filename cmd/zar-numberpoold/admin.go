package main

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/totalhack/zar-numberpool/apierrors"
	"github.com/totalhack/zar-numberpool/kvstore"
)

func (s *server) requireAdminKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminKey != "" && r.URL.Query().Get("admin_key") != s.cfg.AdminKey {
			writeError(w, apierrors.Wrap(apierrors.KindForbidden, apierrors.ErrForbidden, "bad admin key"))
			return
		}
		next(w, r)
	}
}

func parsePoolIDList(raw string) []int64 {
	if raw == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *server) handleRefreshConn(w http.ResponseWriter, r *http.Request) {
	store, err := kvstore.Connect(r.Context(), kvstore.Options{
		Addr:     s.cfg.KVAddr,
		Password: s.cfg.KVPassword,
		DB:       s.cfg.KVDB,
	}, uint(s.cfg.ConnectTries), s.cfg.ConnectRetryPause)
	if err != nil {
		writeError(w, apierrors.Wrap(apierrors.KindConfigError, err, "reconnect failed"))
		return
	}
	s.engine.RefreshConn(store)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handleInitPools(w http.ResponseWriter, r *http.Request) {
	ids := parsePoolIDList(r.URL.Query().Get("pool_id"))
	errs, err := s.engine.InitPools(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make(map[string]string, len(errs))
	for id, e := range errs {
		if e != nil {
			out[strconv.FormatInt(id, 10)] = e.Error()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": out})
}

func (s *server) handleResetPool(w http.ResponseWriter, r *http.Request) {
	poolID, err := strconv.ParseInt(r.URL.Query().Get("pool_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": true})
		return
	}
	preserve := r.URL.Query().Get("preserve") == "1"
	if err := s.engine.ResetPool(r.Context(), poolID, nil, preserve); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handlePoolStats(w http.ResponseWriter, r *http.Request) {
	withContexts := r.URL.Query().Get("with_contexts") == "1"
	stats, err := s.engine.GetAllPoolStats(r.Context(), withContexts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
