package commands

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		amount  int
		unit    string
		want    time.Duration
		wantErr bool
	}{
		{name: "minutes", amount: 90, unit: "min", want: 90 * time.Minute},
		{name: "hours", amount: 12, unit: "h", want: 12 * time.Hour},
		{name: "days", amount: 7, unit: "D", want: 7 * 24 * time.Hour},
		{name: "months", amount: 2, unit: "m", want: 60 * 24 * time.Hour},
		{name: "zero", amount: 0, unit: "d", wantErr: true},
		{name: "unknown unit", amount: 1, unit: "w", wantErr: true},
		{name: "too long", amount: 200, unit: "m", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDuration(tt.amount, tt.unit)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, slots.ErrPreconditionFailed) {
				t.Errorf("ParseDuration() error = %v, want ErrPreconditionFailed", err)
			}
			if got != tt.want {
				t.Errorf("ParseDuration() got = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchPlans(t *testing.T) {
	catalog := slots.DefaultCatalog()
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "empty lists all", query: "", want: []string{"elite", "standard", "trial"}},
		{name: "prefix", query: "eli", want: []string{"elite"}},
		{name: "case insensitive", query: "STD", want: []string{"standard"}},
		{name: "no match", query: "zzz", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchPlans(catalog, tt.query); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MatchPlans() got = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolvePlan(t *testing.T) {
	catalog := slots.DefaultCatalog()
	tests := []struct {
		name       string
		input      string
		want       slots.Plan
		wantErrHas string
	}{
		{name: "exact", input: "Elite", want: slots.PlanElite},
		{name: "suggestion", input: "stndard", wantErrHas: "did you mean standard"},
		{name: "no suggestion", input: "qqq", wantErrHas: "choose from elite, standard, trial"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePlan(catalog, tt.input)
			if tt.wantErrHas != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErrHas) {
					t.Fatalf("ResolvePlan() error = %v, want containing %q", err, tt.wantErrHas)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolvePlan() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolvePlan() got = %v, want %v", got, tt.want)
			}
		})
	}
}
