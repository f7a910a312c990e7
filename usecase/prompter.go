package usecase

import (
	"fmt"
	"strings"
	"time"

	globalConfig "github.com/AzielCF/az-crm/config"
	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/AzielCF/az-crm/domains/pipeline"
)

const (
	// minCustomInstructions es el umbral bajo el cual las instrucciones del
	// agente se consideran placeholder y se sustituyen por el andamiaje base.
	minCustomInstructions = 20

	defaultPersona = "You are a professional and friendly customer support agent for this business."

	defaultInstructions = "Answer customer questions helpfully, accurately and concisely. " +
		"Match the language the customer writes in."
)

// prompter ensambla las instrucciones del sistema (System Prompt) por petición.
type prompter struct{}

func newPrompter() *prompter {
	return &prompter{}
}

// BuildSystemInstructions consolida persona, instrucciones, reglas de handoff,
// herramientas y contexto de la base de conocimiento en un solo bloque system.
func (p *prompter) BuildSystemInstructions(agent *crm.Agent, customerName, ragContext string, tools []pipeline.ToolDef, hasImages bool) string {
	var b strings.Builder

	// 0. Fecha y hora actuales en la zona del agente. Sin esto el modelo
	// inventa fechas al agendar o confirmar horarios.
	b.WriteString(currentTimeLine(agent))
	b.WriteString("\n\n")

	// 1. Prompt global de la plataforma, antepuesto a la persona del agente
	if global := strings.TrimSpace(globalConfig.AIGlobalPrompt); global != "" {
		b.WriteString(global)
		b.WriteString("\n\n")
	}

	// 2. Persona
	persona := strings.TrimSpace(agent.Settings.Persona)
	if persona == "" {
		persona = defaultPersona
	}
	b.WriteString(persona)
	b.WriteString("\n\n")
	if name := strings.TrimSpace(agent.Name); name != "" {
		b.WriteString(fmt.Sprintf("Your name is %s.\n", name))
	}
	if customerName != "" {
		b.WriteString(fmt.Sprintf("You are chatting with %s.\n", customerName))
	}
	b.WriteString("\n")

	// 3. Instrucciones del agente (un placeholder corto cae al andamiaje base)
	instructions := strings.TrimSpace(agent.Settings.CustomInstructions)
	if len(instructions) < minCustomInstructions {
		instructions = defaultInstructions
	}
	b.WriteString("### INSTRUCTIONS\n")
	b.WriteString(instructions)
	b.WriteString("\n\n")

	// 4. Reglas de handoff
	b.WriteString("### HANDOFF RULES\n")
	b.WriteString("- If the customer explicitly asks for a human, tell them a human agent will follow up and keep your reply short.\n")
	b.WriteString("- Never promise actions you cannot perform (refunds, shipping changes, account edits).\n")
	b.WriteString("- Do NOT make up facts. If you do not know, say so and ask for details.\n\n")

	// 5. Herramientas disponibles
	if len(tools) > 0 {
		b.WriteString("### AVAILABLE TOOLS\n")
		b.WriteString("Call a tool when it is needed to answer; otherwise reply directly.\n")
		for _, tool := range tools {
			if tool.Description != "" {
				b.WriteString(fmt.Sprintf("- %s: %s\n", tool.Name, tool.Description))
			} else {
				b.WriteString(fmt.Sprintf("- %s\n", tool.Name))
			}
		}
		b.WriteString("\n")
	}

	// 6. Contexto recuperado
	if ragContext != "" {
		b.WriteString("KNOWLEDGE BASE:\n")
		b.WriteString(ragContext)
		b.WriteString("\n\n")
		b.WriteString("Answer based on the knowledge base above when it is relevant. ")
		b.WriteString("If it does not answer the question, apologize and ask for more details.\n\n")
	}

	// 7. Nota de adjuntos
	if hasImages {
		b.WriteString("The customer attached image(s); an [Image Description] block in the conversation describes them. Use it proactively.\n")
	}

	return strings.TrimSpace(b.String())
}

// currentTimeLine resuelve la zona horaria efectiva del agente y la formatea
// como encabezado del system prompt. Orden: horario del agente, zona global
// de la plataforma, UTC.
func currentTimeLine(agent *crm.Agent) string {
	tz := ""
	if agent.Settings.Schedule != nil {
		tz = strings.TrimSpace(agent.Settings.Schedule.Timezone)
	}
	if tz == "" {
		tz = strings.TrimSpace(globalConfig.AIDefaultTimezone)
	}
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
		tz = "UTC"
	}

	now := time.Now().In(loc)
	weekday := now.Format("Monday")
	return fmt.Sprintf("IMPORTANT - Current date and time (%s timezone): %s, %s %d, %d at %s (Day of week: %s)",
		tz, weekday, now.Format("January"), now.Day(), now.Year(), now.Format("15:04"), weekday)
}
