package domain

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// Policy Classes
// =============================================================================

// PolicyClass decides how an environment keys its artifacts and how it reacts
// to an artifact that already exists.
type PolicyClass string

const (
	// ClassUnversioned environments key artifacts by timestamp and never conflict.
	ClassUnversioned PolicyClass = "unversioned"
	// ClassFlexibleVersioned environments warn when a version is redeployed.
	ClassFlexibleVersioned PolicyClass = "flexible"
	// ClassStrictVersioned environments refuse to redeploy a version unless forced.
	ClassStrictVersioned PolicyClass = "strict"
)

// Versioned reports whether artifacts in this class are addressed by version.
func (c PolicyClass) Versioned() bool {
	return c == ClassFlexibleVersioned || c == ClassStrictVersioned
}

// ParsePolicyClass accepts the class names used in configuration.
func ParsePolicyClass(s string) (PolicyClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unversioned", "dev":
		return ClassUnversioned, nil
	case "flexible", "flexible-versioned", "staging":
		return ClassFlexibleVersioned, nil
	case "strict", "strict-versioned", "prod":
		return ClassStrictVersioned, nil
	}
	return "", NewInvalidInputError("policy class", s, "must be one of unversioned, flexible, strict")
}

// =============================================================================
// Environment
// =============================================================================

// Environment is a deployment target. Its policy class is carried as data so
// that nothing downstream has to switch on the environment name.
type Environment struct {
	Name  string      `json:"name" yaml:"name"`
	Class PolicyClass `json:"class" yaml:"class"`
}

// Built-in environments.
var (
	EnvDev     = Environment{Name: "dev", Class: ClassUnversioned}
	EnvPre     = Environment{Name: "pre", Class: ClassFlexibleVersioned}
	EnvStaging = Environment{Name: "staging", Class: ClassFlexibleVersioned}
	EnvProd    = Environment{Name: "prod", Class: ClassStrictVersioned}
)

// Tag is the upper-case prefix used in version descriptions, e.g. "PROD".
func (e Environment) Tag() string {
	return strings.ToUpper(e.Name)
}

// AliasName is the per-environment pointer name: "<environment>-current".
func (e Environment) AliasName() string {
	return e.Name + "-current"
}

func (e Environment) String() string {
	return e.Name
}

// =============================================================================
// Environment Registry
// =============================================================================

// Environments is the closed set of environments a deployment may target.
type Environments struct {
	byName map[string]Environment
}

// DefaultEnvironments returns the built-in set.
func DefaultEnvironments() Environments {
	envs := Environments{byName: make(map[string]Environment)}
	for _, e := range []Environment{EnvDev, EnvPre, EnvStaging, EnvProd} {
		envs.byName[e.Name] = e
	}
	return envs
}

// WithCustom returns a copy of the registry extended with custom environments,
// given as name -> class. A custom entry may redeclare a built-in.
func (r Environments) WithCustom(custom map[string]string) (Environments, error) {
	out := Environments{byName: make(map[string]Environment, len(r.byName)+len(custom))}
	for k, v := range r.byName {
		out.byName[k] = v
	}
	for name, class := range custom {
		name = strings.ToLower(strings.TrimSpace(name))
		if err := ValidateSegment("environment", name); err != nil {
			return Environments{}, err
		}
		c, err := ParsePolicyClass(class)
		if err != nil {
			return Environments{}, fmt.Errorf("environment %s: %w", name, err)
		}
		out.byName[name] = Environment{Name: name, Class: c}
	}
	return out, nil
}

// Lookup resolves an environment by name.
func (r Environments) Lookup(name string) (Environment, error) {
	env, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Environment{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownEnvironment, name, strings.Join(r.Names(), ", "))
	}
	return env, nil
}

// Names returns the registered environment names in sorted order.
func (r Environments) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
