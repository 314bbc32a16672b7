package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/apperr"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/cipher"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/store"
)

// EnvHandler serves per-environment config/secret bindings. Secret values
// are encrypted on write and never returned in plaintext on read
// (spec.md §7 "Secrets").
type EnvHandler struct {
	store  *store.Store
	cipher *cipher.Envelope
}

func NewEnvHandler(st *store.Store, env *cipher.Envelope) *EnvHandler {
	return &EnvHandler{store: st, cipher: env}
}

func envNameParam(c *gin.Context) (domain.EnvName, bool) {
	env := domain.EnvName(c.Query("env"))
	return env, env.Valid()
}

// Get handles GET /robots/:robot_id/env?env=PROD|HML|TEST.
func (h *EnvHandler) Get(c *gin.Context) {
	robotID, ok := parseUUIDParam(c.Param("robot_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid robot_id"})
		return
	}
	env, ok := envNameParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or missing env"})
		return
	}
	bindings, err := h.store.ListEnvBindings(c.Request.Context(), robotID, env)
	if err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.EnvGet", err))
		return
	}
	out := make([]envBindingDTO, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, toEnvBindingDTO(b))
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

// Put handles PUT /robots/:robot_id/env?env=PROD|HML|TEST.
func (h *EnvHandler) Put(c *gin.Context) {
	robotID, ok := parseUUIDParam(c.Param("robot_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid robot_id"})
		return
	}
	env, ok := envNameParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or missing env"})
		return
	}
	var req putEnvRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, item := range req.Items {
		value := item.Value
		if item.IsSecret {
			ciphertext, err := h.cipher.Encrypt(item.Value)
			if err != nil {
				respondErr(c, apperr.New(apperr.Fatal, "httpapi.EnvPut", err))
				return
			}
			value = ciphertext
		}
		binding := &domain.RobotEnvBinding{
			RobotID:  robotID,
			EnvName:  env,
			Key:      item.Key,
			Value:    value,
			IsSecret: item.IsSecret,
		}
		if err := h.store.UpsertEnvBinding(c.Request.Context(), binding); err != nil {
			respondErr(c, apperr.New(apperr.Transient, "httpapi.EnvPut", err))
			return
		}
	}
	c.Status(http.StatusNoContent)
}

// Delete handles DELETE /robots/:robot_id/env/:key?env=PROD|HML|TEST.
func (h *EnvHandler) Delete(c *gin.Context) {
	robotID, ok := parseUUIDParam(c.Param("robot_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid robot_id"})
		return
	}
	env, ok := envNameParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or missing env"})
		return
	}
	key := c.Param("key")
	if err := h.store.DeleteEnvBinding(c.Request.Context(), robotID, env, key); err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.EnvDelete", err))
		return
	}
	c.Status(http.StatusNoContent)
}
