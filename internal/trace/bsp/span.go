package bsp

import (
	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/collector/pdata/pcommon"
)

// scopeKey identifies the instrumentation scope a buffer groups spans by.
type scopeKey uint64

// hashScope computes the grouping key for an instrumentation scope from
// its name and version. pcommon.InstrumentationScope carries no schema
// URL, so the schema URL is not part of the key.
func hashScope(scope pcommon.InstrumentationScope) scopeKey {
	h := xxhash.New()
	h.Write([]byte(scope.Name()))
	h.Write([]byte(scope.Version()))
	return scopeKey(h.Sum64())
}
