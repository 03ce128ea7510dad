package machine

import "time"

// PeerName selects one of the two backends an accelerator is attached to.
type PeerName string

const (
	PeerDesign PeerName = "design" // simulator over the design lattice
	PeerLive   PeerName = "live"   // control system
)

type PeerStatus struct {
	Name           PeerName `json:"name"`
	ID             string   `json:"id"`
	Elements       int      `json:"elements"`
	MagnetRigidity float64  `json:"magnet_rigidity"`
}

type Status struct {
	Accelerator      string       `json:"accelerator"`
	Energy           float64      `json:"energy"`
	Arrays           []string     `json:"arrays"`
	Peers            []PeerStatus `json:"peers"`
	LastEnergyChange time.Time    `json:"last_energy_change"`
}
