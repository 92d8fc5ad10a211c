package policy

import (
	"testing"

	"github.com/artpar/fnrelease/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Decide Tests
// =============================================================================

func TestDecide_Table(t *testing.T) {
	tests := []struct {
		name   string
		env    domain.Environment
		exists bool
		force  bool
		want   Verdict
	}{
		{"dev new", domain.EnvDev, false, false, Allow},
		{"dev exists", domain.EnvDev, true, false, Allow},
		{"dev exists forced", domain.EnvDev, true, true, Allow},
		{"dev new forced", domain.EnvDev, false, true, Allow},
		{"pre new", domain.EnvPre, false, false, Allow},
		{"pre exists", domain.EnvPre, true, false, AllowWithWarning},
		{"pre exists forced", domain.EnvPre, true, true, Allow},
		{"staging exists", domain.EnvStaging, true, false, AllowWithWarning},
		{"prod new", domain.EnvProd, false, false, Allow},
		{"prod new forced", domain.EnvProd, false, true, Allow},
		{"prod exists", domain.EnvProd, true, false, Block},
		{"prod exists forced", domain.EnvProd, true, true, AllowWithWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.env, tt.force, tt.exists)
			assert.Equal(t, tt.want, got.Verdict)
			assert.NotEmpty(t, got.Reason)
		})
	}
}

func TestDecide_StrictClassAppliesToCustomEnvironments(t *testing.T) {
	envs, err := domain.DefaultEnvironments().WithCustom(map[string]string{"live-eu": "strict"})
	assert.NoError(t, err)
	env, err := envs.Lookup("live-eu")
	assert.NoError(t, err)

	assert.Equal(t, Block, Decide(env, false, true).Verdict)
	assert.Equal(t, AllowWithWarning, Decide(env, true, true).Verdict)
}

func TestDecide_UnversionedAlwaysAllows(t *testing.T) {
	env := domain.Environment{Name: "sandbox", Class: domain.ClassUnversioned}
	for _, force := range []bool{false, true} {
		for _, exists := range []bool{false, true} {
			assert.Equal(t, Allow, Decide(env, force, exists).Verdict)
		}
	}
}

func TestDecide_UnknownClassBlocks(t *testing.T) {
	got := Decide(domain.Environment{Name: "odd", Class: "mystery"}, true, false)
	assert.Equal(t, Block, got.Verdict)
	assert.False(t, got.Proceeds())
}

func TestDecide_BlockReasonMentionsForce(t *testing.T) {
	got := Decide(domain.EnvProd, false, true)
	assert.Contains(t, got.Reason, "force")
	assert.Contains(t, got.Reason, "prod")
}

// =============================================================================
// DecideRollback Tests
// =============================================================================

func TestDecideRollback_NeverBlocks(t *testing.T) {
	for _, env := range []domain.Environment{domain.EnvDev, domain.EnvPre, domain.EnvProd} {
		for _, exists := range []bool{false, true} {
			got := DecideRollback(env, exists)
			assert.True(t, got.Proceeds(), "env=%s exists=%v", env.Name, exists)
		}
	}
}

func TestDecideRollback_StrictExistingWarns(t *testing.T) {
	got := DecideRollback(domain.EnvProd, true)
	assert.Equal(t, AllowWithWarning, got.Verdict)
	assert.Contains(t, got.Reason, "rolling back")
}

func TestDecideRollback_FlexibleMatchesTable(t *testing.T) {
	assert.Equal(t, Decide(domain.EnvPre, false, true), DecideRollback(domain.EnvPre, true))
}
