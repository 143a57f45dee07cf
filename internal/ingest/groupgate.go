package ingest

import "github.com/chatline/chatline/internal/protocol"

// RejectGroup reports whether an event must be dropped before any
// processing: the conversation is a group chat and the tenant has group
// ingestion disabled. Rejected events leave no record and no ticket
// mutation.
func RejectGroup(info protocol.MessageInfo, blockGroups bool) bool {
	return blockGroups && info.IsGroup()
}
