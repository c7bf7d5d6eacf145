package analyzer

import "strings"

// RequirementSet is the capability vector of a compiled module: which pieces of
// runtime support the emitted program needs. Sets only grow; Merge is a logical
// OR over every flag, which makes it associative, commutative and idempotent.
type RequirementSet struct {
	NeedsJSON          bool `yaml:"json" json:"json"`
	NeedsHTTP          bool `yaml:"http" json:"http"`
	NeedsAsync         bool `yaml:"async" json:"async"`
	NeedsAllocator     bool `yaml:"allocator" json:"allocator"`
	NeedsRuntime       bool `yaml:"runtime" json:"runtime"`
	NeedsStringUtils   bool `yaml:"string_utils" json:"string_utils"`
	NeedsHashmapHelper bool `yaml:"hashmap_helper" json:"hashmap_helper"`
	NeedsStd           bool `yaml:"std" json:"std"`
}

// Merge returns the union of r and other.
func (r RequirementSet) Merge(other RequirementSet) RequirementSet {
	return RequirementSet{
		NeedsJSON:          r.NeedsJSON || other.NeedsJSON,
		NeedsHTTP:          r.NeedsHTTP || other.NeedsHTTP,
		NeedsAsync:         r.NeedsAsync || other.NeedsAsync,
		NeedsAllocator:     r.NeedsAllocator || other.NeedsAllocator,
		NeedsRuntime:       r.NeedsRuntime || other.NeedsRuntime,
		NeedsStringUtils:   r.NeedsStringUtils || other.NeedsStringUtils,
		NeedsHashmapHelper: r.NeedsHashmapHelper || other.NeedsHashmapHelper,
		NeedsStd:           r.NeedsStd || other.NeedsStd,
	}
}

// IsEmpty reports whether no flag is set.
func (r RequirementSet) IsEmpty() bool {
	return r == RequirementSet{}
}

// Flags lists the names of the set flags in declaration order.
func (r RequirementSet) Flags() []string {
	var out []string
	add := func(on bool, name string) {
		if on {
			out = append(out, name)
		}
	}
	add(r.NeedsJSON, "json")
	add(r.NeedsHTTP, "http")
	add(r.NeedsAsync, "async")
	add(r.NeedsAllocator, "allocator")
	add(r.NeedsRuntime, "runtime")
	add(r.NeedsStringUtils, "string_utils")
	add(r.NeedsHashmapHelper, "hashmap_helper")
	add(r.NeedsStd, "std")
	return out
}

func (r RequirementSet) String() string {
	return "{" + strings.Join(r.Flags(), ", ") + "}"
}

var (
	jsonReqs  = RequirementSet{NeedsJSON: true, NeedsAllocator: true}
	httpReqs  = RequirementSet{NeedsHTTP: true, NeedsRuntime: true, NeedsAllocator: true}
	asyncReqs = RequirementSet{NeedsAsync: true, NeedsRuntime: true, NeedsAllocator: true}
	allocReqs = RequirementSet{NeedsAllocator: true}
	mapReqs   = RequirementSet{NeedsAllocator: true, NeedsHashmapHelper: true}
	caseReqs  = RequirementSet{NeedsAllocator: true, NeedsStringUtils: true}
	stdReqs   = RequirementSet{NeedsStd: true}
)

// moduleRequirements maps dynamic-resource modules to the capabilities any call
// into them needs.
var moduleRequirements = map[string]RequirementSet{
	"json":    jsonReqs,
	"http":    httpReqs,
	"asyncio": asyncReqs,
}

// methodRequirements applies to a method name regardless of receiver type.
var methodRequirements = map[string]RequirementSet{
	"append":  allocReqs,
	"extend":  allocReqs,
	"insert":  allocReqs,
	"remove":  allocReqs,
	"clone":   allocReqs,
	"replace": allocReqs,
	"split":   allocReqs,
	"upper":   caseReqs,
	"lower":   caseReqs,
}

// builtinRequirements applies to calls of bare built-in names.
var builtinRequirements = map[string]RequirementSet{
	"reversed": allocReqs,
	"sorted":   allocReqs,
	"str":      allocReqs,
	"print":    stdReqs,
}
