// services/extractor.go
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"clash-reminders/models"
)

const (
	// Normal wars grant 2 attacks; the currentwar endpoint also serves CWL
	// battle-day wars, and the allotment is the only signal separating the
	// two — anything below 2 is not a normal clan war.
	normalWarMinAttacks = 2

	// CWL gives exactly one attack per round regardless of what the war
	// document claims.
	leagueWarAttacks = 1

	// Raid weekend defaults when the member entry omits its limits.
	raidDefaultAttackLimit = 5
	raidDefaultBonusLimit  = 1
)

// placeholder war tag in league rounds that have not been drawn yet
const emptyWarTag = "#0"

// Event identifies which kind of competitive event a fact belongs to and
// carries only the fields relevant to that kind.
type Event interface {
	Type() string
	Subtype() *string
}

// NormalWar is a regular clan war.
type NormalWar struct{}

func (NormalWar) Type() string     { return models.EventTypeCW }
func (NormalWar) Subtype() *string { return nil }

// LeagueWar is one round of a CWL season; Round is 1-based.
type LeagueWar struct {
	Round int
}

func (w LeagueWar) Type() string { return models.EventTypeCWL }
func (w LeagueWar) Subtype() *string {
	label := fmt.Sprintf("day_%d", w.Round)
	return &label
}

// RaidWeekend is a clan-capital raid weekend.
type RaidWeekend struct{}

func (RaidWeekend) Type() string     { return models.EventTypeRaid }
func (RaidWeekend) Subtype() *string { return nil }

// EventFact is one account's normalized status within one event, ready to
// be reconciled into an EventSnapshot.
type EventFact struct {
	Event        Event
	AccountTag   string
	AccountName  string
	State        string
	AttacksUsed  int
	AttacksMax   int
	StartTime    *time.Time
	EndTime      *time.Time
	OpponentName *string
	OpponentTag  *string
	WarSize      *int
	IsActive     bool
}

// leagueWarEntry pairs a resolved CWL war document with its round index.
type leagueWarEntry struct {
	War   *WarDocument
	Round int
}

// ClanEvents is everything one poll learned about a single clan.
type ClanEvents struct {
	War        *WarDocument
	LeagueWars []leagueWarEntry
	Raid       *RaidSeason
	ClanName   string
	MemberTags map[string]bool
}

// EventExtractor turns one clan's raw API documents into per-account facts.
type EventExtractor struct {
	CoC *CoCClient
}

func NewEventExtractor(coc *CoCClient) *EventExtractor {
	return &EventExtractor{CoC: coc}
}

// parseCoCTime parses the API's timestamp format "20260209T143000.000Z"
// (with a no-milliseconds fallback) into UTC. Returns nil on anything it
// cannot parse.
func parseCoCTime(ts string) *time.Time {
	if ts == "" {
		return nil
	}
	for _, layout := range []string{"20060102T150405.000Z", "20060102T150405Z"} {
		if t, err := time.Parse(layout, ts); err == nil {
			t = t.UTC()
			return &t
		}
	}
	log.Printf("[Extract] ⚠️ Unparseable timestamp %q", ts)
	return nil
}

// normalWarEligible applies the gate for the currentwar endpoint: the war
// must be running and its allotment must mark it as a normal war rather
// than a CWL battle day.
func normalWarEligible(war *WarDocument) bool {
	if war == nil {
		return false
	}
	if war.State != models.WarStatePreparation && war.State != models.WarStateInWar {
		return false
	}
	return war.AttacksPerMember >= normalWarMinAttacks
}

// warSides splits a war document into our clan's side and the opposing
// side by tag match. ok is false when the tracked clan is on neither side.
func warSides(war *WarDocument, clanTag string) (ours, theirs *WarClan, ok bool) {
	switch clanTag {
	case war.Clan.Tag:
		return &war.Clan, &war.Opponent, true
	case war.Opponent.Tag:
		return &war.Opponent, &war.Clan, true
	}
	return nil, nil, false
}

func findWarMember(members []WarMember, tag string) *WarMember {
	for i := range members {
		if members[i].Tag == tag {
			return &members[i]
		}
	}
	return nil
}

func findRaidMember(members []RaidMember, tag string) *RaidMember {
	for i := range members {
		if members[i].Tag == tag {
			return &members[i]
		}
	}
	return nil
}

// FetchClanEvents gathers the clan's current war, CWL wars and raid season
// in one pass. Each fetch failure is isolated: a missing document just
// leaves its slot empty. Clan name and member tags fall back to the clan
// info endpoint so raid participation can always be resolved.
func (x *EventExtractor) FetchClanEvents(ctx context.Context, clanTag string) (*ClanEvents, error) {
	events := &ClanEvents{MemberTags: map[string]bool{}}

	war, err := x.CoC.CurrentWar(ctx, clanTag)
	if err != nil {
		return nil, err
	}
	if normalWarEligible(war) {
		events.War = war
		events.ClanName = war.Clan.Name
	}

	group, err := x.CoC.LeagueGroup(ctx, clanTag)
	if err != nil {
		return nil, err
	}
	if group != nil {
		for roundIdx, round := range group.Rounds {
			for _, warTag := range round.WarTags {
				if warTag == emptyWarTag {
					continue
				}
				leagueWar, err := x.CoC.LeagueWar(ctx, warTag)
				if err != nil {
					return nil, err
				}
				if leagueWar == nil || leagueWar.State != models.WarStateInWar {
					continue
				}
				ours, _, ok := warSides(leagueWar, clanTag)
				if !ok {
					continue
				}
				events.LeagueWars = append(events.LeagueWars, leagueWarEntry{
					War:   leagueWar,
					Round: roundIdx + 1,
				})
				if events.ClanName == "" {
					events.ClanName = ours.Name
				}
			}
		}
	}

	seasons, err := x.CoC.RaidSeasons(ctx, clanTag)
	if err != nil {
		return nil, err
	}
	if seasons != nil && len(seasons.Items) > 0 {
		latest := seasons.Items[0]
		if latest.State == models.RaidStateOngoing {
			events.Raid = &latest
		}
	}

	// Clan info backfills the display name and supplies the member list
	// used to tell "hasn't raided yet" from "not a member".
	if events.ClanName == "" || len(events.MemberTags) == 0 {
		clan, err := x.CoC.Clan(ctx, clanTag)
		if err != nil {
			return nil, err
		}
		if clan != nil {
			if events.ClanName == "" {
				events.ClanName = clan.Name
			}
			for _, m := range clan.MemberList {
				events.MemberTags[m.Tag] = true
			}
		}
	}

	return events, nil
}

// ExtractFacts computes the per-account facts for every event the clan is
// currently in. Accounts absent from every roster produce no facts.
func ExtractFacts(events *ClanEvents, clanTag string, account *models.PlayerAccount) []EventFact {
	var facts []EventFact

	if events.War != nil {
		if fact, ok := warFact(events.War, NormalWar{}, events.War.AttacksPerMember, clanTag, account.Tag); ok {
			facts = append(facts, fact)
		}
	}

	for _, entry := range events.LeagueWars {
		if fact, ok := warFact(entry.War, LeagueWar{Round: entry.Round}, leagueWarAttacks, clanTag, account.Tag); ok {
			facts = append(facts, fact)
		}
	}

	if events.Raid != nil {
		if fact, ok := raidFact(events.Raid, events.MemberTags, clanTag, account); ok {
			facts = append(facts, fact)
		}
	}

	return facts
}

// warFact resolves an account inside a war document. attacksMax is passed
// in because CWL caps at one attack no matter what the document says.
func warFact(war *WarDocument, event Event, attacksMax int, clanTag, accountTag string) (EventFact, bool) {
	ours, theirs, ok := warSides(war, clanTag)
	if !ok {
		return EventFact{}, false
	}
	member := findWarMember(ours.Members, accountTag)
	if member == nil {
		return EventFact{}, false
	}

	attacksUsed := len(member.Attacks)
	size := war.TeamSize

	return EventFact{
		Event:        event,
		AccountTag:   accountTag,
		AccountName:  member.Name,
		State:        war.State,
		AttacksUsed:  attacksUsed,
		AttacksMax:   attacksMax,
		StartTime:    parseCoCTime(war.StartTime),
		EndTime:      parseCoCTime(war.EndTime),
		OpponentName: &theirs.Name,
		OpponentTag:  &theirs.Tag,
		WarSize:      &size,
		IsActive:     war.State == models.WarStateInWar && attacksUsed < attacksMax,
	}, true
}

// raidFact resolves an account within an ongoing raid weekend. A clan
// member missing from the raid roster simply hasn't attacked yet and gets
// a 0-of-6 fact; a non-member gets nothing.
func raidFact(raid *RaidSeason, memberTags map[string]bool, clanTag string, account *models.PlayerAccount) (EventFact, bool) {
	base := EventFact{
		Event:      RaidWeekend{},
		AccountTag: account.Tag,
		State:      models.RaidStateOngoing,
		StartTime:  parseCoCTime(raid.StartTime),
		EndTime:    parseCoCTime(raid.EndTime),
	}

	if member := findRaidMember(raid.Members, account.Tag); member != nil {
		attackLimit := raidDefaultAttackLimit
		if member.AttackLimit != nil {
			attackLimit = *member.AttackLimit
		}
		bonus := raidDefaultBonusLimit
		if member.BonusAttackLimit != nil {
			bonus = *member.BonusAttackLimit
		}
		base.AccountName = member.Name
		base.AttacksUsed = member.Attacks
		base.AttacksMax = attackLimit + bonus
		base.IsActive = member.Attacks < base.AttacksMax
		return base, true
	}

	inClan := memberTags[account.Tag] ||
		(account.CurrentClanTag != nil && *account.CurrentClanTag == clanTag)
	if !inClan {
		return EventFact{}, false
	}

	base.AccountName = account.Name
	base.AttacksUsed = 0
	base.AttacksMax = raidDefaultAttackLimit + raidDefaultBonusLimit
	base.IsActive = true
	return base, true
}
