package artifact

import (
	"fmt"
	"time"

	"github.com/artpar/fnrelease/internal/core/domain"
)

// TimestampLayout formats the deployment timestamp of unversioned keys. The
// fraction is fixed width so keys of one environment sort chronologically.
const TimestampLayout = "20060102T150405.000000000Z"

// =============================================================================
// Key Types
// =============================================================================

// Keys are the store keys for one deployment.
type Keys struct {
	// WriteKey is where the artifact is stored.
	WriteKey string `json:"write_key" yaml:"write_key"`

	// ConflictCheckKey is where a prior deployment would be found. For
	// versioned environments it is identical to WriteKey. It is empty when
	// Checkable is false.
	ConflictCheckKey string `json:"conflict_check_key,omitempty" yaml:"conflict_check_key,omitempty"`

	// Checkable is false for timestamp-keyed environments; such keys are
	// treated as never existing.
	Checkable bool `json:"checkable" yaml:"checkable"`
}

// =============================================================================
// Key Resolution
// =============================================================================

// Resolve maps a deployment to its store keys.
//
// Example:
//
//	Resolve("orders", domain.EnvProd, "1.0.0", t)
//	// WriteKey == ConflictCheckKey == "orders/environments/prod/versions/1.0.0/orders-1.0.0.zip"
//
//	Resolve("orders", domain.EnvDev, "1.0.0", t)
//	// WriteKey == "orders/environments/dev/deployments/20260102T030405.000000000Z/artifact.zip"
func Resolve(function string, env domain.Environment, version string, timestamp time.Time) (Keys, error) {
	if err := domain.ValidateSegment("function", function); err != nil {
		return Keys{}, err
	}
	if err := domain.ValidateSegment("environment", env.Name); err != nil {
		return Keys{}, err
	}
	if err := domain.ValidateSegment("version", version); err != nil {
		return Keys{}, err
	}

	if env.Class.Versioned() {
		key := versionKey(function, env.Name, version)
		return Keys{WriteKey: key, ConflictCheckKey: key, Checkable: true}, nil
	}

	if timestamp.IsZero() {
		return Keys{}, domain.NewInvalidInputError("timestamp", "", "required for unversioned environment "+env.Name)
	}
	return Keys{WriteKey: deploymentKey(function, env.Name, timestamp)}, nil
}

// versionKey generates the key of a version-addressed artifact.
// Pattern: {function}/environments/{env}/versions/{version}/{function}-{version}.zip
func versionKey(function, env, version string) string {
	return fmt.Sprintf("%s/environments/%s/versions/%s/%s-%s.zip", function, env, version, function, version)
}

// deploymentKey generates the key of a timestamp-addressed artifact.
// Pattern: {function}/environments/{env}/deployments/{timestamp}/artifact.zip
func deploymentKey(function, env string, timestamp time.Time) string {
	return fmt.Sprintf("%s/environments/%s/deployments/%s/artifact.zip", function, env, timestamp.UTC().Format(TimestampLayout))
}
