package planner

import (
	"github.com/sarchlab/psplanner"
)

// A DistributedVar records one shard produced while materializing blocks.
type DistributedVar struct {
	Origin  psplanner.TensorVar
	Slice   psplanner.TensorVar
	BlockID int
	// Offset is the flat element offset of the shard in the origin, 0 for a
	// whole variable and -1 for uniformly split sparse tables.
	Offset   int
	IsSlice  bool
	VType    string
	Endpoint string
}

// A Registry records where every shard of every variable lives.
type Registry struct {
	entries []DistributedVar
	byName  map[string][]int
}

func newRegistry(entries []DistributedVar, placement Placement) *Registry {
	r := &Registry{
		entries: make([]DistributedVar, len(entries)),
		byName:  make(map[string][]int),
	}

	for i, e := range entries {
		e.Endpoint, _ = placement.EndpointOf(e.Slice.Name)
		r.entries[i] = e
		r.byName[e.Origin.Name] = append(r.byName[e.Origin.Name], i)
	}

	return r
}

// Entries returns the shards of an origin variable in block order.
func (r *Registry) Entries(origin string) []DistributedVar {
	idx := r.byName[origin]
	out := make([]DistributedVar, len(idx))
	for i, j := range idx {
		out[i] = r.entries[j]
	}

	return out
}

// Len returns the number of recorded shards.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Endpoint returns the endpoint that serves block id of a variable.
func (r *Registry) Endpoint(origin string, blockID int) (string, bool) {
	for _, e := range r.Entries(origin) {
		if e.BlockID == blockID {
			return e.Endpoint, e.Endpoint != ""
		}
	}

	return "", false
}

// A ShardLocation tells which endpoint serves a shard and how many rows the
// shard has.
type ShardLocation struct {
	Name     string
	Endpoint string
	Size     int
}

// VarDistributed returns the shards of a param (isParam) or grad variable,
// scanning the placement in endpoint order.
func (p *Plan) VarDistributed(varName string, isParam bool) []ShardLocation {
	mapping := p.gradMapping
	if isParam {
		mapping = p.paramMapping
	}

	shards, ok := mapping.get(varName)
	if !ok {
		return nil
	}

	names := make(map[string]bool, len(shards))
	for _, s := range shards {
		names[s.Name] = true
	}

	var out []ShardLocation
	for _, es := range p.placement {
		list := es.Grads
		if isParam {
			list = es.Params
		}

		for _, v := range list {
			if names[v.Name] {
				out = append(out, ShardLocation{
					Name:     v.Name,
					Endpoint: es.Endpoint,
					Size:     v.Rows(),
				})
			}
		}
	}

	return out
}

// SparseVarNamesOnServer lists the sparse table shards owned by an endpoint.
func (p *Plan) SparseVarNamesOnServer(endpoint string) []string {
	var names []string
	for _, table := range SparseTableNames(p.program) {
		for _, loc := range p.VarDistributed(table, true) {
			if loc.Endpoint == endpoint {
				names = append(names, loc.Name)
			}
		}
	}

	return names
}
