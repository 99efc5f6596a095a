package models

import "time"

// LocalServer is the persisted record of a local server. PhysicalAddress is
// its identity on the channel.
type LocalServer struct {
	PhysicalAddress   string
	DisplayName       string
	ContactMail       string
	Platform          string
	Version           string
	LocalIP           string
	Comment           string
	ValidUsers        []string
	LastConnection    *time.Time
	LastDisconnection *time.Time
}

// HasUser reports whether email is in the authorized user list.
func (s *LocalServer) HasUser(email string) bool {
	for _, u := range s.ValidUsers {
		if u == email {
			return true
		}
	}
	return false
}

// ServerMeta is the self-reported information a local server sends on
// handshake.
type ServerMeta struct {
	Platform string
	Version  string
	LocalIP  string
}

// MetaChanged reports whether m differs from what is stored for s.
func (s *LocalServer) MetaChanged(m ServerMeta) bool {
	return s.Platform != m.Platform || s.Version != m.Version || s.LocalIP != m.LocalIP
}

// ServerStatus pairs a record with its live channel state.
type ServerStatus struct {
	LocalServer
	Connected bool
}

// StatusEvent is published on every authenticated connect and disconnect.
type StatusEvent struct {
	Identity  string
	Connected bool
	At        time.Time
}
