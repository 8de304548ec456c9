package checker

import (
	"context"
	"time"

	"github.com/hazz-dev/shipcheck/internal/config"
)

// Check names, also used as evidence file prefixes.
const (
	NameFileStructure  = "file_structure"
	NameDatabaseSchema = "database_schema"
	NameAPIEndpoints   = "api_endpoints"
)

// Checker evaluates one verification criterion.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// All returns the three checkers for cfg in execution order.
func All(cfg *config.Config) []Checker {
	return []Checker{
		NewFileChecker(cfg.RootDir, cfg.Files),
		NewSchemaChecker(cfg.Database),
		NewEndpointChecker(cfg.API),
	}
}

func begin(name string) (CheckResult, time.Time) {
	start := time.Now()
	return CheckResult{
		Name:      name,
		Timestamp: start,
		Details:   Details{},
	}, start
}
