package steam

// PlayerSummary is a public Steam profile.
type PlayerSummary struct {
	SteamID                  string `json:"steamid"`
	PersonaName              string `json:"personaname"`
	ProfileURL               string `json:"profileurl"`
	Avatar                   string `json:"avatar"`
	AvatarMedium             string `json:"avatarmedium"`
	AvatarFull               string `json:"avatarfull"`
	PersonaState             int    `json:"personastate"`
	CommunityVisibilityState int    `json:"communityvisibilitystate"`
	TimeCreated              int64  `json:"timecreated,omitempty"`
	LocCountryCode           string `json:"loccountrycode,omitempty"`
}

// OwnedGame is one entry of a player's library.
type OwnedGame struct {
	AppID           int   `json:"appid"`
	PlaytimeForever int   `json:"playtime_forever"`
	RTimeLastPlayed int64 `json:"rtime_last_played,omitempty"`
}

// AppDetails is the subset of store metadata the locator needs.
type AppDetails struct {
	Type         string   `json:"type,omitempty"`
	Name         string   `json:"name"`
	SteamAppID   int      `json:"steam_appid"`
	CapsuleImage string   `json:"capsule_image"`
	HeaderImage  string   `json:"header_image,omitempty"`
	Developers   []string `json:"developers"`
	Publishers   []string `json:"publishers,omitempty"`
}

// FirstDeveloper returns the first listed developer, or "".
func (d *AppDetails) FirstDeveloper() string {
	if d == nil {
		return ""
	}
	for _, dev := range d.Developers {
		if dev != "" {
			return dev
		}
	}
	return ""
}

// AppDetailsEntry is one value of the store appdetails response object.
type AppDetailsEntry struct {
	Success bool        `json:"success"`
	Data    *AppDetails `json:"data,omitempty"`
}

type resolveVanityResponse struct {
	Response struct {
		SteamID string `json:"steamid"`
		Success int    `json:"success"`
		Message string `json:"message"`
	} `json:"response"`
}

type playerSummariesResponse struct {
	Response struct {
		Players []PlayerSummary `json:"players"`
	} `json:"response"`
}

type ownedGamesResponse struct {
	Response struct {
		GameCount int         `json:"game_count"`
		Games     []OwnedGame `json:"games"`
	} `json:"response"`
}
