package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/sahilm/fuzzy"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/config"
)

var durationUnits = []discord.ApplicationCommandOptionChoiceString{
	{Name: "minutes", Value: "min"},
	{Name: "hours", Value: "h"},
	{Name: "days", Value: "d"},
	{Name: "months (30 days)", Value: "m"},
}

// ParseDuration turns an amount and a unit (min, h, d, m) into a duration.
// A month counts as 30 days.
func ParseDuration(amount int, unit string) (time.Duration, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: duration must be positive", slots.ErrPreconditionFailed)
	}
	var d time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "min":
		d = time.Duration(amount) * time.Minute
	case "h":
		d = time.Duration(amount) * time.Hour
	case "d":
		d = time.Duration(amount) * 24 * time.Hour
	case "m":
		d = time.Duration(amount) * 30 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("%w: unknown duration unit %q, use min, h, d or m", slots.ErrPreconditionFailed, unit)
	}
	if d > config.MaxDurationDays*24*time.Hour {
		return 0, fmt.Errorf("%w: duration is longer than %d days", slots.ErrPreconditionFailed, config.MaxDurationDays)
	}
	return d, nil
}

func planNames(c *slots.Catalog) []string {
	names := c.Names()
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}

// MatchPlans returns the catalog plans matching query, best first. An empty
// query lists every plan.
func MatchPlans(c *slots.Catalog, query string) []string {
	names := planNames(c)
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return names
	}
	matches := fuzzy.Find(query, names)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Str)
	}
	return out
}

// ResolvePlan validates a plan option and suggests the closest plan name when
// it is unknown.
func ResolvePlan(c *slots.Catalog, input string) (slots.Plan, error) {
	p := slots.ParsePlan(input)
	if _, ok := c.Lookup(p); ok {
		return p, nil
	}
	if matches := MatchPlans(c, input); len(matches) > 0 {
		return "", fmt.Errorf("%w: unknown plan %q, did you mean %s", slots.ErrPreconditionFailed, input, matches[0])
	}
	return "", fmt.Errorf("%w: unknown plan %q, choose from %s", slots.ErrPreconditionFailed, input, strings.Join(planNames(c), ", "))
}

// PlanAutocomplete completes the "plan" option of /create and /move.
func PlanAutocomplete(b *slotkeeper.Bot) handler.AutocompleteHandler {
	return func(e *handler.AutocompleteEvent) error {
		matches := MatchPlans(b.Slots.Catalog(), e.Data.String("plan"))
		choices := make([]discord.AutocompleteChoice, 0, min(len(matches), 25))
		for _, m := range matches {
			if len(choices) == 25 {
				break
			}
			choices = append(choices, discord.AutocompleteChoiceString{
				Name:  slots.Plan(m).Title(),
				Value: m,
			})
		}
		return e.AutocompleteResult(choices)
	}
}
