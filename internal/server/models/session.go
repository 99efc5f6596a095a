package models

// ServerSession holds the hashed auth key of a local server.
type ServerSession struct {
	PhysicalAddress string
	HashedKey       string
}
