package gateway

import (
	"net/http"
	"strings"

	"github.com/stagehand-ai/stagehand/pkg/models"
)

// Static bearer-token table. Anything else, including no token at all,
// falls back to readonly. TODO: replace with a real identity provider
// once one is deployed alongside the gateway.
var tokenRoles = map[string]models.Role{
	"admin-token-123":    models.RoleAdmin,
	"operator-token-456": models.RoleOperator,
	"dev-token-789":      models.RoleDev,
}

// roleFromRequest resolves the caller's role from the Authorization
// header. Unknown or missing tokens degrade to readonly rather than
// rejecting the request.
func roleFromRequest(r *http.Request) models.Role {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return models.RoleReadonly
	}
	if role, ok := tokenRoles[strings.TrimSpace(token)]; ok {
		return role
	}
	return models.RoleReadonly
}
