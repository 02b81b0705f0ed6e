package oracle

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/mapadna/oracle-funnel-go/internal/domain"
)

// Archetype pairs the persona name with a one-line energetic reading.
type Archetype struct {
	Name    string
	Essence string
}

var archetypes = map[int]Archetype{
	1:  {Name: "Architect of Abundance", Essence: "Leadership and innovation"},
	2:  {Name: "Visionary of Opportunities", Essence: "Intuition and collaboration"},
	3:  {Name: "Alchemist of the Word", Essence: "Creativity and expression"},
	4:  {Name: "Healer of Transformation", Essence: "Stability and healing"},
	5:  {Name: "Explorer of Freedom", Essence: "Adventure and change"},
	6:  {Name: "Guardian of Harmony", Essence: "Responsibility and love"},
	7:  {Name: "Mystic of Wisdom", Essence: "Spirituality and analysis"},
	8:  {Name: "Magnate of Power", Essence: "Authority and materialization"},
	9:  {Name: "Universal Philanthropist", Essence: "Service and compassion"},
	11: {Name: "Healer of Transformation", Essence: "Elevated intuition and healing"},
	22: {Name: "Master Builder", Essence: "Global vision and manifestation"},
	33: {Name: "Master of Compassion", Essence: "Universal service and healing"},
}

var obstacles = []string{
	"excessive procrastination that paralyzes your action",
	"an excess of opportunities that scatters your focus",
	"an excess of knowledge that breeds paralysis",
	"draining friendships that sap your energy",
	"fear of success that sabotages your achievements",
	"perfectionism that blocks execution",
	"anxiety that clouds your intuition",
	"dependence on external approval",
}

var goalStrategies = map[string]string{
	"Double Income":      "a strategy of multiple income streams through investments and digital entrepreneurship",
	"Financial Freedom":  "the path of independence through assets that generate passive income",
	"Invest Better":      "financial education and portfolio diversification to maximize returns",
	"Escape Debt":        "a financial restructuring plan and new consumption habits",
	"Retire Comfortably": "long-term wealth building with a focus on security",
}

const defaultStrategy = "developing high-value skills and creating multiple income streams"

// ArchetypeFor maps a reduced number to its archetype. Unknown numbers fall
// back to the number 1 persona so synthesis never produces an empty reading.
func ArchetypeFor(finalNumber int) Archetype {
	if a, ok := archetypes[finalNumber]; ok {
		return a
	}
	return archetypes[1]
}

// Synthesize builds a complete revelation locally. It is the terminal stage
// of the generation pipeline and cannot fail: every field is populated from
// static tables keyed by the numerology result.
//
// Obstacle selection hashes the visitor's name so repeat generations for the
// same person stay stable.
func Synthesize(profile *domain.FunnelProfile, numerology domain.NumerologyResult) *domain.OracleRevelation {
	archetype := ArchetypeFor(numerology.Final)
	obstacle := obstacles[nameIndex(profile.FullName, len(obstacles))]

	strategy := goalStrategies[profile.Question1]
	if strategy == "" {
		strategy = defaultStrategy
	}

	narrative := fmt.Sprintf(
		"%s, your unique essence vibrates on the number %d, awakening the %s that lives within you. "+
			"Your energetic signature reveals %s as your central force. "+
			"Your golden path calls for %s. "+
			"The main block on your journey is %s. "+
			"Within the next 7 days, choose ONE specific action and execute it without perfectionism. "+
			"%s, your financial transformation has already begun.",
		profile.FullName,
		numerology.Final,
		archetype.Name,
		lowerFirst(archetype.Essence),
		strategy,
		obstacle,
		profile.FullName,
	)

	return &domain.OracleRevelation{
		NarrativeText: narrative,
		Archetype:     archetype.Name,
		Essence:       archetype.Essence,
		Obstacle:      obstacle,
		NextAction:    "Within the next 7 days, choose ONE specific action and execute it without perfectionism",
		FinalNumber:   numerology.Final,
	}
}

func nameIndex(name string, mod int) int {
	h := fnv.New32a()
	h.Write([]byte(name))
	return int(h.Sum32() % uint32(mod))
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
