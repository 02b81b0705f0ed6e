package prompt

import (
	"fmt"

	"github.com/mapadna/oracle-funnel-go/internal/domain"
)

// OraclePromptVars holds variables for the prosperity reading prompt template
type OraclePromptVars struct {
	Profile    *domain.FunnelProfile
	Numerology domain.NumerologyResult
}

// SystemPrompt is the fixed system message for the text-generation upstream.
const SystemPrompt = "You are the Oracle of Prosperity, a mystic reader of names and birth dates rooted in Pythagorean numerology. Always respond with valid JSON only."

// BuildOraclePrompt builds the user prompt for a prosperity reading.
func BuildOraclePrompt(vars OraclePromptVars) string {
	energy := "Medium"
	if vars.Profile.Points > 1000 {
		energy = "High"
	}

	return fmt.Sprintf(`You are the Oracle of Prosperity. Read the numerological energies of this name and birth date. Be direct and mystical.

NUMEROLOGICAL DATA:
Name: %s
Birth date: %s
Soul Essence Number: %d
Dreams Number: %d
Expression Number: %d
Birth Number: %d
FINAL NUMBER: %d

PERSONAL DATA:
Dissatisfaction: %s
Aspiration: %s
Energy: %s

STRUCTURE (maximum 150 words):

**OPENING (1 line)**
Acknowledge the unique essence carried by FINAL NUMBER %d.

**ARCHETYPE (2-3 lines)**
Name the archetype that FINAL NUMBER %d awakens and describe its potential
using the answers above.

**STRATEGY (2 lines)**
A practical path grounded in the numerological archetype.

**OBSTACLE (1 line)**
ONE common block: chronic procrastination, scattered focus, analysis paralysis, draining company, fear of success, perfectionism.

**ACTION (1 line)**
The next step for the coming 7 days.

**CLOSING (1 line)**
An affirmation using the name and the number %d.

RETURN JSON:
{
  "narrative_text": "full reading",
  "archetype": "archetype name",
  "essence": "core energy",
  "obstacle": "main block",
  "next_action": "next step",
  "final_number": %d
}`,
		vars.Profile.FullName,
		vars.Profile.BirthDate,
		vars.Numerology.SoulEssence,
		vars.Numerology.Dreams,
		vars.Numerology.Expression,
		vars.Numerology.Birth,
		vars.Numerology.Final,
		vars.Profile.Question2,
		vars.Profile.Question1,
		energy,
		vars.Numerology.Final,
		vars.Numerology.Final,
		vars.Numerology.Final,
		vars.Numerology.Final,
	)
}
