package room

type Member struct {
	ConnectionId string `redis:"-" json:"connection_id"`
	DisplayName  string `redis:"display_name" json:"display_name"`
	AvatarURL    string `redis:"avatar_url" json:"avatar_url"`
}

// Others returns members without the given connection.
func Others(members []Member, connectionId string) []Member {
	others := make([]Member, 0, len(members))
	for _, member := range members {
		if member.ConnectionId != connectionId {
			others = append(others, member)
		}
	}

	return others
}
