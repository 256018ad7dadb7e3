package ws

const (
	// client - server
	MsgPing = "ping"

	// server - client
	MsgReady  = "ready"
	MsgPong   = "pong"
	MsgLedger = "ledger"
	MsgError  = "error"
)
