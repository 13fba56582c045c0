package model

// Audit record types.
const (
	AuditIslandAllocated = "ISLAND_ALLOCATED"
	AuditIslandBuilt     = "ISLAND_BUILT"
	AuditIslandAssigned  = "ISLAND_ASSIGNED"
	AuditChestState      = "CHEST_STATE"
	AuditChestDone       = "CHEST_DONE"
	AuditChestAbandoned  = "CHEST_ABANDONED"
	AuditRespawn         = "RESPAWN"
)

// AuditEntry is one structured record of something the island subsystem did.
type AuditEntry struct {
	Tick     uint64 `json:"tick"`
	Type     string `json:"type"`
	PlayerID string `json:"player_id,omitempty"`
	World    string `json:"world,omitempty"`
	Pos      [3]int `json:"pos"`
	State    string `json:"state,omitempty"`
	Attempt  int    `json:"attempt,omitempty"`
	Items    int    `json:"items,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Auditor receives audit entries. Implementations must not block the tick.
type Auditor interface {
	Audit(e AuditEntry)
}

// Auditors fans an entry out to every non-nil auditor.
type Auditors []Auditor

func (as Auditors) Audit(e AuditEntry) {
	for _, a := range as {
		if a != nil {
			a.Audit(e)
		}
	}
}

type NopAuditor struct{}

func (NopAuditor) Audit(AuditEntry) {}
