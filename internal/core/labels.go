// Package core defines core types.
package core

// Log field naming constants shared by every package that logs NoC traffic.
const (
	FieldSession = "session"
	FieldOp      = "op"
	FieldTarget  = "target"
	FieldAddr    = "addr"
	FieldLen     = "len"
	FieldReqID   = "req_id"
	FieldMode    = "mode"
	FieldRetry   = "retry"
	FieldPeer    = "peer"
	FieldEP      = "endpoint"
)
