package ai

import (
	_ "embed"
	"strings"

	"github.com/spigell/tender-matcher/internal/tender"
)

// SystemInstruction is sent with every analysis request.
const SystemInstruction = "You are an expert in analysing public procurement tenders and matching them with business profiles. " +
	"Give a concise analysis focused on the key matching criteria. " +
	"Write plain statements without prefixes or special formatting."

//go:embed prompt.md
var promptTemplate string

const notStated = "Not stated"

// BuildPrompt renders the analysis prompt for a tender/client pair.
func BuildPrompt(contract *tender.Contract, client *tender.ClientProfile) string {
	value := notStated
	if contract.HasValue() {
		value = tender.FormatValue(contract.Value)
	}

	r := strings.NewReplacer(
		"{{TITLE}}", orNotStated(contract.Title),
		"{{DESCRIPTION}}", orNotStated(contract.Description),
		"{{VALUE}}", value,
		"{{REGION}}", orNotStated(contract.Region),
		"{{BUSINESS}}", orNotStated(client.BusinessName),
		"{{KEYWORDS}}", orNotStated(strings.Join(client.Keywords, ", ")),
		"{{LOCATION}}", orNotStated(client.PreferredLocation),
		"{{PREFERENCES}}", orNotStated(client.AdditionalPreferences),
	)

	return r.Replace(promptTemplate)
}

func orNotStated(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return notStated
	}
	return s
}
