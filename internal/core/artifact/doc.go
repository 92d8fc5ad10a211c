// Package artifact derives content store keys for function artifacts.
//
// All functions are pure (no I/O, no side effects). Resolve is the only place
// a key is built: the pipeline writes to, checks, and rolls back from the
// keys it returns, so the key that is checked for a prior deployment is always
// the key that was written.
//
// # Layout
//
//	<function>/environments/<env>/versions/<version>/<function>-<version>.zip   versioned classes
//	<function>/environments/<env>/deployments/<timestamp>/artifact.zip          unversioned class
//
// # Usage
//
//	keys, err := artifact.Resolve("orders", domain.EnvProd, "1.0.0", now)
//	if keys.Checkable {
//		exists, err = store.Exists(ctx, keys.ConflictCheckKey)
//	}
package artifact
