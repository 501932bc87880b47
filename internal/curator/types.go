package curator

// Source identifies one Steam curator list that contributes games to the dataset.
type Source struct {
	CuratorID int    `json:"curator_id"`
	Name      string `json:"name,omitempty"`
}

// GameRecord is the availability verdict for a single Steam app id.
type GameRecord struct {
	AppID     string `json:"-"`
	Available bool   `json:"available"`
	CuratorID int    `json:"curator_id,omitempty"`
}

// Page is one decoded response of the filtered recommendations endpoint.
type Page struct {
	AppIDs     []string
	TotalCount int
}

// DefaultSources are the GeForce NOW friendly curator lists, in merge order.
var DefaultSources = []Source{
	{CuratorID: 38115929, Name: "Geforce Now Friendly"},
	{CuratorID: 45481916, Name: "Geforce Now Friendly Part 2"},
}

// SourceName returns the known display name of a curator, or "" when it is not one of the defaults.
func SourceName(curatorID int) string {
	for _, s := range DefaultSources {
		if s.CuratorID == curatorID {
			return s.Name
		}
	}
	return ""
}
