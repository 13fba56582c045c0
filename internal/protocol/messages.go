package protocol

// HELLO (host -> server). Sent once when a player connects.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerID        string `json:"player_id"`
	Name            string `json:"name"`
	World           string `json:"world,omitempty"`
	FirstJoin       bool   `json:"first_join"`
}

// WELCOME (server -> host)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	PlayerID        string     `json:"player_id"`
	Tick            uint64     `json:"tick"`
	HasIsland       bool       `json:"has_island"`
	Island          *IslandRef `json:"island,omitempty"`
}

type IslandRef struct {
	World string `json:"world"`
	Pos   [3]int `json:"pos"`
}

// RESPAWN (host -> server). BedSpawn reports that the host already resolved
// the respawn to a bed.
type RespawnMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	BedSpawn        bool   `json:"bed_spawn"`
}

// RESPAWN_TARGET (server -> host)
type RespawnTargetMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	World           string `json:"world"`
	Pos             [3]int `json:"pos"`
	Source          string `json:"source"`
}

// TELEPORT and SET_RESPAWN (server -> host) share a shape.
type LocationMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	World           string `json:"world"`
	Pos             [3]int `json:"pos"`
}

// NOTICE (server -> host): text to show the player.
type NoticeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Text            string `json:"text"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

func NewError(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: msg}
}
