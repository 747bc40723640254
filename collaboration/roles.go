package collaboration

import (
	"fmt"
	"sort"
	"strings"
)

// candidate 参与排序的 Agent
type candidate struct {
	profile AgentProfile
	skills  map[string]bool // 命中的技能（小写）
}

// assignRoles 按能力与目标技能的重叠度分配角色，每个 Agent 恰好一个角色。
// 返回顺序与 agentIDs 一致，以及无人覆盖的技能。
func assignRoles(agentIDs []string, requiredSkills []string, dir Directory) ([]ParticipatingAgent, []string) {
	required := normalizeSkills(requiredSkills)

	cands := make([]candidate, 0, len(agentIDs))
	for _, id := range agentIDs {
		p, ok := AgentProfile{}, false
		if dir != nil {
			p, ok = dir.Lookup(id)
		}
		if !ok {
			p = genericProfile(id)
		}
		c := candidate{profile: p, skills: make(map[string]bool)}
		for _, capability := range p.Capabilities {
			key := strings.ToLower(strings.TrimSpace(capability))
			for _, skill := range required {
				if key == skill {
					c.skills[skill] = true
				}
			}
		}
		cands = append(cands, c)
	}

	ranked := make([]*candidate, len(cands))
	for i := range cands {
		ranked[i] = &cands[i]
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if len(ranked[i].skills) != len(ranked[j].skills) {
			return len(ranked[i].skills) > len(ranked[j].skills)
		}
		return ranked[i].profile.ID < ranked[j].profile.ID
	})

	// 每个技能归属于排名最高的持有者
	owned := make(map[string][]string)
	var uncovered []string
	for _, skill := range required {
		ownerFound := false
		for _, c := range ranked {
			if c.skills[skill] {
				owned[c.profile.ID] = append(owned[c.profile.ID], skill)
				ownerFound = true
				break
			}
		}
		if !ownerFound {
			uncovered = append(uncovered, skill)
		}
	}

	lead := ""
	if len(ranked) > 0 {
		lead = ranked[0].profile.ID
	}

	out := make([]ParticipatingAgent, 0, len(cands))
	for _, c := range cands {
		id := c.profile.ID
		pa := ParticipatingAgent{
			AgentID:      id,
			AgentType:    c.profile.Type,
			Capabilities: append([]string(nil), c.profile.Capabilities...),
			OwnedSkills:  owned[id],
			Availability: c.profile.Availability,
		}
		if len(required) > 0 {
			pa.MatchScore = float64(len(c.skills)) / float64(len(required))
		}

		switch {
		case id == lead:
			pa.Role = Role{Type: RoleCoordinator, Title: "Collaboration Coordinator", AuthorityLevel: 2}
			pa.Responsibilities = []string{"coordinate milestones", "mediate agent-level conflicts"}
		case len(owned[id]) > 0:
			pa.Role = Role{Type: RoleSpecialist, Title: "Specialist", AuthorityLevel: 1}
		default:
			pa.Role = Role{Type: RoleContributor, Title: "Contributor", AuthorityLevel: 0}
			pa.Responsibilities = []string{"support team deliverables"}
		}
		for _, skill := range owned[id] {
			pa.Responsibilities = append(pa.Responsibilities, fmt.Sprintf("deliver %s", skill))
		}
		out = append(out, pa)
	}
	return out, uncovered
}

func normalizeSkills(skills []string) []string {
	seen := make(map[string]bool, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}
