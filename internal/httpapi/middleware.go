// Package httpapi wires spec.md §6's HTTP/WebSocket surface onto RunEngine
// and Store using gin, grounded on the teacher's internal/http/handler
// package layout (one handler struct per resource, gin.H JSON bodies).
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity is the authenticated caller RunEngine operations attribute
// mutations to. Resolving it is an external collaborator's job (spec.md
// §1 excludes identity/RBAC from the core); this is the narrow shape the
// core needs back.
type Identity struct {
	UserID uuid.UUID
}

// IdentityResolver authenticates a request's bearer token and returns the
// caller identity. The core ships no implementation — a real one lives in
// the identity collaborator's own package and is injected at wiring time.
type IdentityResolver interface {
	Resolve(r *http.Request) (Identity, error)
}

// DeployTokenChecker validates the x-deploy-token header used by the CI
// deploy route, a distinct credential from the interactive bearer token
// (spec.md §6).
type DeployTokenChecker interface {
	Check(token string) bool
}

const identityContextKey = "httpapi.identity"

// AuthMiddleware resolves the caller identity via resolver and aborts with
// 401 on failure. Every route except /health, /metrics and the deploy
// publish route runs behind this (spec.md §6).
func AuthMiddleware(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolver.Resolve(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(identityContextKey, id)
		c.Next()
	}
}

func identityFrom(c *gin.Context) Identity {
	v, _ := c.Get(identityContextKey)
	id, _ := v.(Identity)
	return id
}

// DeployAuthMiddleware checks x-deploy-token instead of the bearer token,
// for the CI-facing publish route (spec.md §6).
func DeployAuthMiddleware(checker DeployTokenChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("x-deploy-token")
		if token == "" || !checker.Check(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid deploy token"})
			return
		}
		c.Next()
	}
}
