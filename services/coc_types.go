// services/coc_types.go
package services

// Raw document shapes returned by the Clash of Clans API. Only the fields
// the poller reads are declared.

type WarAttack struct {
	AttackerTag string `json:"attackerTag"`
	DefenderTag string `json:"defenderTag"`
	Stars       int    `json:"stars"`
}

type WarMember struct {
	Tag     string      `json:"tag"`
	Name    string      `json:"name"`
	Attacks []WarAttack `json:"attacks"`
}

type WarClan struct {
	Tag     string      `json:"tag"`
	Name    string      `json:"name"`
	Members []WarMember `json:"members"`
}

// WarDocument is returned by both the currentwar and the CWL war-by-tag
// endpoints. AttacksPerMember is 0 when the field is absent (CWL battle
// days omit it).
type WarDocument struct {
	State            string  `json:"state"`
	TeamSize         int     `json:"teamSize"`
	AttacksPerMember int     `json:"attacksPerMember"`
	StartTime        string  `json:"startTime"`
	EndTime          string  `json:"endTime"`
	Clan             WarClan `json:"clan"`
	Opponent         WarClan `json:"opponent"`
}

type LeagueRound struct {
	WarTags []string `json:"warTags"`
}

type LeagueGroup struct {
	State  string        `json:"state"`
	Season string        `json:"season"`
	Rounds []LeagueRound `json:"rounds"`
}

type RaidMember struct {
	Tag              string `json:"tag"`
	Name             string `json:"name"`
	Attacks          int    `json:"attacks"`
	AttackLimit      *int   `json:"attackLimit"`
	BonusAttackLimit *int   `json:"bonusAttackLimit"`
}

type RaidSeason struct {
	State     string       `json:"state"`
	StartTime string       `json:"startTime"`
	EndTime   string       `json:"endTime"`
	Members   []RaidMember `json:"members"`
}

type RaidSeasonList struct {
	Items []RaidSeason `json:"items"`
}

type ClanMember struct {
	Tag  string `json:"tag"`
	Name string `json:"name"`
}

type ClanInfo struct {
	Tag        string       `json:"tag"`
	Name       string       `json:"name"`
	MemberList []ClanMember `json:"memberList"`
}

type PlayerClan struct {
	Tag  string `json:"tag"`
	Name string `json:"name"`
}

type Player struct {
	Tag  string      `json:"tag"`
	Name string      `json:"name"`
	Clan *PlayerClan `json:"clan"`
}
