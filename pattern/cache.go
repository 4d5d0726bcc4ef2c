package pattern

import (
	"fmt"

	"github.com/krotik/common/datautil"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/registry"
)

// compileCache memoizes Compile results keyed by (registries version,
// pattern identity), since the same constraint/rule pattern is recompiled
// on every constraint check and every rule evaluation within a
// transaction (package constraint and package rule both need the compiled
// pattern on every binding pass, and go through CompileCached for it). Registries are immutable once published, so a cache
// entry never needs invalidation beyond the version bump a new
// Registries carries, which is folded into the key.
var compileCache = datautil.NewMapCache(4096, 0)

func cacheKey(reg *registry.Registries, p *ast.Pattern) string {
	return fmt.Sprintf("%d:%p", reg.Version(), p)
}

// CompileCached is Compile with memoization across repeated calls for the
// same (registries version, pattern) pair. Constraint checking and rule
// firing call this instead of Compile directly; ad-hoc MATCH/WALK
// statements call Compile since their patterns are never reused.
func CompileCached(reg *registry.Registries, p *ast.Pattern) *Compiled {
	key := cacheKey(reg, p)
	if v, ok := compileCache.Get(key); ok {
		return v.(*Compiled)
	}
	c := Compile(reg, p)
	compileCache.Put(key, c)
	return c
}
