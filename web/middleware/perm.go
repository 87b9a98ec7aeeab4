package middleware

import (
	"net/http"

	"github.com/modix-panel/modix/access"
	"github.com/modix-panel/modix/util/common"
	"github.com/modix-panel/modix/web/entity"
	"github.com/modix-panel/modix/web/service"
	"github.com/modix-panel/modix/web/session"

	"github.com/gin-gonic/gin"
)

// Gate wires the access engine, the audit sink and the container
// registry into route guards.
type Gate struct {
	Engine     *access.Engine
	Audit      *service.AuditService
	Containers *service.ContainerService
}

// RequirePermission guards a route with a panel-wide permission.
func (g *Gate) RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		g.check(c, permission, nil, "")
	}
}

// RequireContainerPermission guards a route with a container-scoped
// permission; the workload's runtime id is read from the named path
// parameter. Unregistered workloads resolve against global grants only.
func (g *Gate) RequireContainerPermission(permission, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		workloadID := c.Param(param)

		var containerID *int
		if container, err := g.Containers.GetContainerByDockerId(workloadID); err == nil {
			containerID = &container.Id
		}
		g.check(c, permission, containerID, workloadID)
	}
}

// RequireContainerPermissionQuery is the query-string variant for
// routes whose workload id cannot live in the path, like EventSource
// streams.
func (g *Gate) RequireContainerPermissionQuery(permission, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		workloadID := c.Query(key)

		var containerID *int
		if container, err := g.Containers.GetContainerByDockerId(workloadID); err == nil {
			containerID = &container.Id
		}
		g.check(c, permission, containerID, workloadID)
	}
}

func (g *Gate) check(c *gin.Context, permission string, containerID *int, workload string) {
	user := session.GetLoginUser(c)
	if user == nil {
		abortUnauthorized(c, "missing subject")
		return
	}

	mutating := c.Request.Method != http.MethodGet

	decision, err := g.Engine.Resolve(user, permission, containerID)
	if err != nil {
		// A store failure is not a policy denial; record the
		// distinction and surface infrastructure.
		g.Audit.Record(user.Username, permission, workload, service.OutcomeUndeterminable, err.Error())
		c.AbortWithStatusJSON(http.StatusServiceUnavailable,
			entity.Msg{Success: false, Msg: "authorization temporarily unavailable"})
		return
	}

	if decision != access.Allow {
		g.Audit.Record(user.Username, permission, workload, service.OutcomeDeny, decision.String())
		c.AbortWithStatusJSON(http.StatusForbidden,
			entity.Msg{Success: false, Msg: "permission denied"})
		return
	}

	// Root short-circuits are always recorded; other allows only on
	// mutating actions.
	if root := g.isRoot(user.Username); root || mutating {
		reason := ""
		if root {
			reason = "root"
		}
		g.Audit.Record(user.Username, permission, workload, service.OutcomeAllow, reason)
	}
	c.Next()
}

func (g *Gate) isRoot(username string) bool {
	if g.Engine.RootPrincipals == nil {
		return false
	}
	for _, name := range g.Engine.RootPrincipals() {
		if name == username {
			return true
		}
	}
	return false
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(err error) int {
	switch common.KindOf(err) {
	case common.KindUnauthorized:
		return http.StatusUnauthorized
	case common.KindForbidden, common.KindPathTraversal:
		return http.StatusForbidden
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindConflict:
		return http.StatusConflict
	case common.KindInvalidArgument:
		return http.StatusBadRequest
	case common.KindTimeout:
		return http.StatusGatewayTimeout
	case common.KindInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
