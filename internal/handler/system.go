package handler

import (
	"encoding/json"
	"net/http"

	"github.com/jmoiron/sqlx"

	"custodia/pkg/cache"
)

type SystemHandler struct {
	db    *sqlx.DB
	cache *cache.RedisCache
}

func NewSystemHandler(db *sqlx.DB, c *cache.RedisCache) *SystemHandler {
	return &SystemHandler{db: db, cache: c}
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{
		"database": "ok",
		"redis":    "ok",
	}
	status := http.StatusOK

	if err := h.db.PingContext(r.Context()); err != nil {
		services["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if _, err := h.cache.Exists(r.Context(), "health"); err != nil {
		services["redis"] = "unavailable"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"services": services})
}
