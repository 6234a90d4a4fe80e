package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
	domainwf "github.com/garyjia/offer-lifecycle/internal/domain/workflow"
	"github.com/garyjia/offer-lifecycle/pkg/auth"
)

const actorKey = "actor"

// TokenValidator resolves a bearer token into identity claims
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// authMiddleware requires a valid bearer token and stores the caller as an entity.Actor.
// The system role is reserved for in-process callers and is dropped from tokens.
func authMiddleware(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			abortUnauthenticated(c, "missing bearer token")
			return
		}

		claims, err := tokens.Validate(strings.TrimSpace(token))
		if err != nil {
			abortUnauthenticated(c, "invalid token")
			return
		}

		roles := make(domainwf.RoleSet, 0, len(claims.Roles))
		for _, r := range domainwf.ParseRoles(claims.Roles) {
			if r != domainwf.RoleSystem {
				roles = append(roles, r)
			}
		}

		c.Set(actorKey, entity.Actor{ID: claims.Subject, Roles: roles})
		c.Next()
	}
}

func abortUnauthenticated(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
		Success: false,
		Error:   msg,
		Code:    CodeUnauthenticated,
	})
}

// actorFrom returns the caller set by authMiddleware
func actorFrom(c *gin.Context) entity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(entity.Actor); ok {
			return actor
		}
	}
	return entity.Actor{}
}
