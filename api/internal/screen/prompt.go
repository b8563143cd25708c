package screen

import (
	"fmt"
	"strings"

	"photo-screener/api/internal/criteria"
)

const strictnessGuide = `Guidelines for Strictness:
- Low: Only flag if the issue is severe and obvious.
- Medium: Flag if the issue is noticeable.
- High: Flag even minor occurrences.`

// BuildPrompt строит детерминированную инструкцию для модели.
// Каждый forbidden-критерий выводится со строгостью, каждый desired - один раз, в исходном порядке.
func BuildPrompt(set criteria.Set) string {
	forbidden, desired := set.Partition()

	var b strings.Builder
	b.WriteString("Act as a professional photo screener for a child education organization.\n")
	b.WriteString("Your task is to analyze the provided image to see if it meets quality standards.\n\n")
	b.WriteString("Strictly evaluate the image based on the following FORBIDDEN criteria.\n")
	b.WriteString("If ANY of these are met based on their strictness level, you MUST reject the photo.\n\n")

	b.WriteString("FORBIDDEN CRITERIA (Reject if present):\n")
	if len(forbidden) == 0 {
		b.WriteString("- (none)\n")
	}
	for _, c := range forbidden {
		fmt.Fprintf(&b, "- %s (Strictness Level: %s)\n", c.Label, c.EffectiveStrictness())
	}

	b.WriteString("\nDESIRED CRITERIA (Good to have, but not mandatory):\n")
	if len(desired) == 0 {
		b.WriteString("- (none)\n")
	}
	for _, c := range desired {
		fmt.Fprintf(&b, "- %s\n", c.Label)
	}

	b.WriteString("\n")
	b.WriteString(strictnessGuide)
	b.WriteString("\n\nReturn a JSON object with exactly these fields: ")
	b.WriteString(`"status" ("PASS" or "FAIL"), "reasons" (array of strings, reasons for failure; may be empty on PASS), `)
	b.WriteString(`"feedback" (a short, helpful tip for the photographer).`)
	return b.String()
}
