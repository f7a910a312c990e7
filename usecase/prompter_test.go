package usecase

import (
	"strings"
	"testing"

	globalConfig "github.com/AzielCF/az-crm/config"
	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/AzielCF/az-crm/pkg/timeutils"
	"github.com/stretchr/testify/assert"
)

func TestPrompterPrependsClockAndGlobalPrompt(t *testing.T) {
	prev := globalConfig.AIGlobalPrompt
	globalConfig.SetAIGlobalPrompt("Never promise discounts.")
	t.Cleanup(func() { globalConfig.AIGlobalPrompt = prev })

	agent := &crm.Agent{Name: "Luna", Settings: crm.AgentSettings{Persona: "You sell lamps."}}
	out := newPrompter().BuildSystemInstructions(agent, "Aziel", "", nil, false)

	assert.True(t, strings.HasPrefix(out, "IMPORTANT - Current date and time"), "clock header must come first")
	assert.Contains(t, out, "Never promise discounts.")
	assert.Contains(t, out, "You sell lamps.")
	assert.Less(t, strings.Index(out, "Never promise discounts."), strings.Index(out, "You sell lamps."),
		"global prompt goes before the agent persona")
}

func TestPrompterTimezoneFallbackChain(t *testing.T) {
	prevTZ := globalConfig.AIDefaultTimezone
	t.Cleanup(func() { globalConfig.AIDefaultTimezone = prevTZ })

	// Zona del agente primero
	agent := &crm.Agent{Settings: crm.AgentSettings{
		Schedule: &timeutils.WorkSchedule{Timezone: "America/Mexico_City"},
	}}
	out := newPrompter().BuildSystemInstructions(agent, "", "", nil, false)
	assert.Contains(t, out, "(America/Mexico_City timezone)")

	// Sin horario cae a la zona global de la plataforma
	globalConfig.SetAIDefaultTimezone("Europe/Madrid")
	out = newPrompter().BuildSystemInstructions(&crm.Agent{}, "", "", nil, false)
	assert.Contains(t, out, "(Europe/Madrid timezone)")

	// Una zona inválida termina en UTC
	broken := &crm.Agent{Settings: crm.AgentSettings{
		Schedule: &timeutils.WorkSchedule{Timezone: "Mars/Olympus"},
	}}
	out = newPrompter().BuildSystemInstructions(broken, "", "", nil, false)
	assert.Contains(t, out, "(UTC timezone)")
}
