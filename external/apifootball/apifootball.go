package apifootball

import "encoding/json"

// Wire shapes for the API-Football v3 envelope. Every endpoint answers
// 200 with the same frame; failures ride in the errors field.

type paging struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

type envelope struct {
	Get        string `json:"get"`
	Parameters any    `json:"parameters"`
	// Errors is [] when empty and an object keyed by error class when
	// not, so it has to be decoded loosely.
	Errors   any             `json:"errors"`
	Results  int             `json:"results"`
	Paging   paging          `json:"paging"`
	Response json.RawMessage `json:"response"`
}

type teamRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type playerRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type transferMovement struct {
	Date  string `json:"date"`
	Type  string `json:"type"`
	Teams struct {
		In  teamRef `json:"in"`
		Out teamRef `json:"out"`
	} `json:"teams"`
}

type transferItem struct {
	Player    playerRef          `json:"player"`
	Update    string             `json:"update"`
	Transfers []transferMovement `json:"transfers"`
}

type statisticsBlock struct {
	Team   teamRef `json:"team"`
	League struct {
		ID     int64  `json:"id"`
		Season int    `json:"season"`
		Name   string `json:"name"`
	} `json:"league"`
	Games struct {
		Appearances *int    `json:"appearences"`
		Minutes     *int    `json:"minutes"`
		Position    *string `json:"position"`
	} `json:"games"`
}

type playerStatsItem struct {
	Player     playerRef         `json:"player"`
	Statistics []statisticsBlock `json:"statistics"`
}

type teamsItem struct {
	Team teamRef `json:"team"`
}

type leagueSeason struct {
	Year     int  `json:"year"`
	Current  bool `json:"current"`
	Coverage struct {
		Players    bool `json:"players"`
		TopScorers bool `json:"top_scorers"`
	} `json:"coverage"`
}

type leaguesItem struct {
	League  teamRef        `json:"league"`
	Seasons []leagueSeason `json:"seasons"`
}
