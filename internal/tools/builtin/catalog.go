package builtin

import (
	"database/sql"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/stagehand-ai/stagehand/internal/tools"
)

// Deps carries the connectors backing the built-in catalog.
type Deps struct {
	DB      *sql.DB
	Redis   *redis.Client
	FSRoot  string
	WorkDir string
	HTTP    *http.Client
}

// NewCatalog assembles the full built-in tool registry.
func NewCatalog(deps Deps) (*tools.Registry, error) {
	reg := tools.NewRegistry()

	all := make([]tools.Tool, 0, 21)
	all = append(all, DBTools(deps.DB)...)
	all = append(all, RedisTools(deps.Redis)...)
	all = append(all, FSTools(deps.FSRoot)...)
	all = append(all, GitTools(deps.WorkDir)...)
	all = append(all, WebTools(deps.HTTP)...)

	for _, t := range all {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
