package storage

import (
	"time"

	"github.com/google/uuid"
)

// Quantities a snapshot can hold.
const (
	QuantityStrengths = "strengths"
	QuantityHardwares = "hardwares"
)

// SnapshotInfo is the header of a stored snapshot.
type SnapshotInfo struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Accelerator string    `json:"accelerator"`
	Peer        string    `json:"peer"`
	Target      string    `json:"target"` // array name
	Quantity    string    `json:"quantity"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Snapshot holds one value per array member, in array order.
type Snapshot struct {
	SnapshotInfo
	Values []SnapshotValue `json:"values"`
}

type SnapshotValue struct {
	Element string  `json:"element"`
	Value   float64 `json:"value"`
	Unit    string  `json:"unit"`
}
