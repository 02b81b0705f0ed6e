package domain

// NumerologyResult is the derived set of Pythagorean numbers for one profile.
// Each value is in [0,9] or exactly one of the master numbers 11, 22, 33.
type NumerologyResult struct {
	SoulEssence int `json:"soul_essence"`
	Dreams      int `json:"dreams_number"`
	Expression  int `json:"expression_number"`
	Birth       int `json:"birth_number"`
	Final       int `json:"final_number"`
}

// OracleRevelation is the generated (or synthesized) narrative result.
// Immutable once produced; one per session.
type OracleRevelation struct {
	NarrativeText string `json:"narrative_text"`
	Archetype     string `json:"archetype"`
	Essence       string `json:"essence"`
	Obstacle      string `json:"obstacle"`
	NextAction    string `json:"next_action"`
	FinalNumber   int    `json:"final_number"`
}

// Usable reports whether an upstream response carries the minimum fields the
// funnel needs. Anything less is treated as a parse failure.
func (r *OracleRevelation) Usable() bool {
	return r != nil && r.NarrativeText != "" && r.Archetype != ""
}
