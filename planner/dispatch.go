package planner

import (
	"github.com/sarchlab/psplanner"
	"k8s.io/klog/v2"
)

// EndpointShards lists the shards owned by one server endpoint. Params[i]
// is the parameter shard updated by Grads[i].
type EndpointShards struct {
	Endpoint string
	Params   []psplanner.TensorVar
	Grads    []psplanner.TensorVar
}

// A Placement lists the shards of every endpoint, in endpoint order.
type Placement []EndpointShards

// EndpointOf returns the first endpoint whose params or grads contain a
// shard with the given name.
func (p Placement) EndpointOf(shardName string) (string, bool) {
	for _, es := range p {
		for _, v := range es.Params {
			if v.Name == shardName {
				return es.Endpoint, true
			}
		}

		for _, v := range es.Grads {
			if v.Name == shardName {
				return es.Endpoint, true
			}
		}
	}

	return "", false
}

// Shards returns the shards of an endpoint.
func (p Placement) Shards(endpoint string) (EndpointShards, bool) {
	for _, es := range p {
		if es.Endpoint == endpoint {
			return es, true
		}
	}

	return EndpointShards{}, false
}

// RoundRobin assigns n items to endpointCount endpoints starting at the
// start cursor. It returns the endpoint index of every item and the cursor
// to continue from.
func RoundRobin(n, endpointCount, start int) ([]int, int) {
	assign := make([]int, n)
	cursor := start

	for i := range assign {
		assign[i] = cursor
		cursor = (cursor + 1) % endpointCount
	}

	return assign, cursor
}

// dispatch places grad shards and their param shards on endpoints. Dense
// variables share one round-robin cursor. Each sparse variable starts again
// from the first endpoint.
func dispatch(
	endpoints []string,
	grads varMapping,
	gradToParam map[string]psplanner.TensorVar,
	sparseGrads map[string]bool,
) Placement {
	placement := make(Placement, len(endpoints))
	for i, ep := range endpoints {
		placement[i].Endpoint = ep
	}

	place := func(gradShards []psplanner.TensorVar, assign []int) {
		for i, g := range gradShards {
			es := &placement[assign[i]]
			es.Grads = append(es.Grads, g)
			es.Params = append(es.Params, gradToParam[g.Name])

			klog.V(4).Infof("shard %s -> %s", g.Name, es.Endpoint)
		}
	}

	cursor := 0
	for _, name := range grads.order {
		if sparseGrads[name] {
			continue
		}

		shards, _ := grads.get(name)
		var assign []int
		assign, cursor = RoundRobin(len(shards), len(endpoints), cursor)
		place(shards, assign)
	}

	for _, name := range grads.order {
		if !sparseGrads[name] {
			continue
		}

		shards, _ := grads.get(name)
		assign, _ := RoundRobin(len(shards), len(endpoints), 0)
		place(shards, assign)
	}

	return placement
}
