// Package progress tracks learner XP, ranks, achievements and module
// unlocks, and persists them to SQLite.
package progress

import (
	"maps"
	"slices"
	"time"
)

// Module identifiers in unlock order.
const (
	ModuleIdentity      = "identity-defense"
	ModuleNetwork       = "network-defense"
	ModuleIntelligence  = "intelligence-hub"
	ModuleCryptographic = "cryptographic-core"
)

// ModuleOrder is the order in which modules unlock.
var ModuleOrder = []string{ModuleIdentity, ModuleNetwork, ModuleIntelligence, ModuleCryptographic}

var moduleNames = map[string]string{
	ModuleIdentity:      "Identity Defense Grid",
	ModuleNetwork:       "Network Defense Array",
	ModuleIntelligence:  "Intelligence Gathering Hub",
	ModuleCryptographic: "Cryptographic Core",
}

// ModuleName returns the display name of a module, or id if unknown.
func ModuleName(id string) string {
	if n, ok := moduleNames[id]; ok {
		return n
	}
	return id
}

const (
	challengesPerModule = 4
	DefaultChallengeXP  = 100
	moduleBonusXP       = 500
)

// Ranks, lowest first.
const (
	RankCadet      = "Cadet Navigator"
	RankSpecialist = "Navigation Specialist"
	RankJunior     = "Junior Navigator"
	RankSenior     = "Senior Navigator"
	RankMaster     = "Master Navigator"
)

// RankFor maps total XP to a rank.
func RankFor(xp int) string {
	switch {
	case xp >= 5000:
		return RankMaster
	case xp >= 3000:
		return RankSenior
	case xp >= 1500:
		return RankJunior
	case xp >= 500:
		return RankSpecialist
	default:
		return RankCadet
	}
}

// ModuleProgress is the state of one training module.
type ModuleProgress struct {
	Completed bool `json:"completed"`
	Progress  int  `json:"progress"`
	Total     int  `json:"total"`
	Unlocked  bool `json:"unlocked"`
}

// Achievement is an unlocked milestone.
type Achievement struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

// Progress is everything recorded about one learner.
type Progress struct {
	UserID              string                    `json:"userId"`
	Modules             map[string]ModuleProgress `json:"modules"`
	Achievements        []Achievement             `json:"achievements"`
	TotalXP             int                       `json:"totalXP"`
	Rank                string                    `json:"rank"`
	ChallengesCompleted int                       `json:"challengesCompleted"`
	CompletedChallenges []string                  `json:"completedChallenges"`
	LastActive          time.Time                 `json:"lastActive"`
}

// New returns default progress: every module at zero, only the first
// unlocked.
func New(userID string, now time.Time) *Progress {
	p := &Progress{
		UserID:              userID,
		Modules:             make(map[string]ModuleProgress, len(ModuleOrder)),
		Achievements:        []Achievement{},
		Rank:                RankCadet,
		CompletedChallenges: []string{},
		LastActive:          now,
	}
	for i, id := range ModuleOrder {
		p.Modules[id] = ModuleProgress{Total: challengesPerModule, Unlocked: i == 0}
	}
	return p
}

// Clone returns a deep copy.
func (p *Progress) Clone() Progress {
	c := *p
	c.Modules = maps.Clone(p.Modules)
	c.Achievements = slices.Clone(p.Achievements)
	c.CompletedChallenges = slices.Clone(p.CompletedChallenges)
	return c
}

// HasCompleted reports whether challengeID was already credited.
func (p *Progress) HasCompleted(challengeID string) bool {
	return slices.Contains(p.CompletedChallenges, challengeID)
}

// OverallPercent is the share of completed modules, 0-100.
func (p *Progress) OverallPercent() int {
	if len(p.Modules) == 0 {
		return 0
	}
	done := 0
	for _, m := range p.Modules {
		if m.Completed {
			done++
		}
	}
	return done * 100 / len(p.Modules)
}

func (p *Progress) addAchievement(title string, now time.Time) {
	p.Achievements = append(p.Achievements, Achievement{
		ID:        len(p.Achievements) + 1,
		Title:     title,
		Timestamp: now,
	})
}

func (p *Progress) addXP(amount int, now time.Time) {
	p.TotalXP += amount
	if r := RankFor(p.TotalXP); r != p.Rank {
		p.Rank = r
		p.addAchievement("Promoted to "+r, now)
	}
}

// completeModule marks id complete, unlocks the next module and awards the
// bonus.
func (p *Progress) completeModule(id string, now time.Time) {
	m := p.Modules[id]
	m.Completed = true
	p.Modules[id] = m

	if i := slices.Index(ModuleOrder, id); i >= 0 && i < len(ModuleOrder)-1 {
		next := ModuleOrder[i+1]
		nm := p.Modules[next]
		nm.Unlocked = true
		p.Modules[next] = nm
	}
	p.addAchievement(ModuleName(id)+" Master", now)
	p.addXP(moduleBonusXP, now)
}

// completeChallenge credits one challenge. It reports false when the
// challenge was already credited.
func (p *Progress) completeChallenge(module, challengeID string, xp int, now time.Time) bool {
	if challengeID != "" && p.HasCompleted(challengeID) {
		return false
	}
	if m, ok := p.Modules[module]; ok && !m.Completed {
		m.Progress++
		p.Modules[module] = m
		if m.Progress >= m.Total {
			p.completeModule(module, now)
		}
	}
	p.addXP(xp, now)
	p.ChallengesCompleted++
	if challengeID != "" {
		p.CompletedChallenges = append(p.CompletedChallenges, challengeID)
	}
	p.LastActive = now
	return true
}
