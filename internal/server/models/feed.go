package models

import "encoding/json"

// FeedEvent is an application feed payload pushed by a local server, tagged
// with the sender.
type FeedEvent struct {
	Identity    string
	FeedType    string
	FeedContent json.RawMessage
}
