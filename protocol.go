package psplanner

import "gitlab.com/akita/akita/v3/sim"

// Purposes of a ShardMsg.
const (
	PurposePush = "push"
	PurposePull = "pull"
)

// A ShardMsg represents the transfer of one shard between a trainer and a
// server.
type ShardMsg struct {
	sim.MsgMeta
	// ShardName is the wire-level name of the shard.
	ShardName string
	// VarName is the logical variable of the communication context.
	VarName     string
	NumElements int
	Purpose     string
	TrainerID   int
	Endpoint    string
	Step        int
}

// Meta returns the meta data of the message.
func (m *ShardMsg) Meta() *sim.MsgMeta {
	return &m.MsgMeta
}
