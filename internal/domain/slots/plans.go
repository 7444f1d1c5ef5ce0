package slots

import (
	"fmt"
	"strings"
)

// Plan names a tier. The set of valid plans is owned by a Catalog.
type Plan string

const (
	PlanElite    Plan = "elite"
	PlanStandard Plan = "standard"
	PlanTrial    Plan = "trial"
)

// ParsePlan normalises user input ("Elite ", "ELITE") to a plan name.
func ParsePlan(s string) Plan {
	return Plan(strings.ToLower(strings.TrimSpace(s)))
}

func (p Plan) Title() string {
	if p == "" {
		return ""
	}
	return strings.ToUpper(string(p[:1])) + string(p[1:])
}

// PlanSpec holds the defaults a plan confers on a slot.
type PlanSpec struct {
	Name     Plan
	Limits   Limits
	Category Category
	Roles    []Role
}

type Catalog struct {
	plans map[Plan]PlanSpec
	order []Plan
}

func NewCatalog(specs ...PlanSpec) (*Catalog, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("catalog needs at least one plan")
	}
	c := &Catalog{plans: make(map[Plan]PlanSpec, len(specs))}
	for _, spec := range specs {
		spec.Name = ParsePlan(string(spec.Name))
		if spec.Name == "" {
			return nil, fmt.Errorf("plan with empty name")
		}
		if _, dup := c.plans[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate plan %q", spec.Name)
		}
		if spec.Limits.Everyone < 0 || spec.Limits.Here < 0 {
			return nil, fmt.Errorf("plan %q has negative limits", spec.Name)
		}
		if spec.Category == "" {
			spec.Category = Category(spec.Name)
		}
		c.plans[spec.Name] = spec
		c.order = append(c.order, spec.Name)
	}
	return c, nil
}

// DefaultCatalog mirrors the tiers the community launched with. Trial shares the
// standard category and grants no tier role.
func DefaultCatalog() *Catalog {
	c, _ := NewCatalog(
		PlanSpec{Name: PlanElite, Limits: Limits{Everyone: 1, Here: 2}, Category: "elite", Roles: []Role{RoleElite}},
		PlanSpec{Name: PlanStandard, Limits: Limits{Everyone: 0, Here: 2}, Category: "standard", Roles: []Role{RoleStandard}},
		PlanSpec{Name: PlanTrial, Limits: Limits{Everyone: 0, Here: 1}, Category: "standard"},
	)
	return c
}

func (c *Catalog) Lookup(p Plan) (PlanSpec, bool) {
	spec, ok := c.plans[p]
	return spec, ok
}

func (c *Catalog) Names() []Plan {
	out := make([]Plan, len(c.order))
	copy(out, c.order)
	return out
}

// require returns the plan spec or a PreconditionFailed error naming the valid plans.
func (c *Catalog) require(p Plan) (PlanSpec, error) {
	spec, ok := c.plans[p]
	if !ok {
		names := make([]string, len(c.order))
		for i, n := range c.order {
			names[i] = string(n)
		}
		return PlanSpec{}, fmt.Errorf("%w: unknown plan %q (choose from %s)", ErrPreconditionFailed, p, strings.Join(names, ", "))
	}
	return spec, nil
}

// LimitsFor resolves the effective limits of a slot: custom limits when present,
// otherwise the defaults of its current plan.
func (c *Catalog) LimitsFor(s *Slot) Limits {
	if s.CustomLimits != nil {
		return *s.CustomLimits
	}
	if spec, ok := c.plans[s.Plan]; ok {
		return spec.Limits
	}
	return Limits{}
}
