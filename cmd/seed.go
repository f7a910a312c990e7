package cmd

import (
	"context"
	"fmt"

	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a demo tenant with one AI agent per channel",
	Long: `Bootstraps a 'demo' tenant plus an active AI agent for WhatsApp, Telegram
and email so the channel webhooks have somewhere to route. Running it twice is a no-op.`,
	Run: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(_ *cobra.Command, _ []string) {
	ctx := context.Background()

	if existing, err := tenantRepo.GetBySlug(ctx, "demo"); err == nil && existing != nil {
		logrus.Infof("[SEED] Tenant %q already exists (id=%s), nothing to do", existing.Slug, existing.ID)
		return
	}

	tenant := &crm.Tenant{
		Name:     "Demo Company",
		Slug:     "demo",
		Plan:     "starter",
		Credits:  100,
		IsActive: true,
	}
	if err := tenantRepo.Create(ctx, tenant); err != nil {
		logrus.Fatalf("[SEED] Failed to create demo tenant: %v", err)
	}
	logrus.Infof("[SEED] Created tenant %q (id=%s)", tenant.Name, tenant.ID)

	ticketing := crm.TicketingRules{
		Enabled:          true,
		AutoCreate:       true,
		PriorityKeywords: []string{"urgente", "urgent", "legal"},
	}

	agents := []*crm.Agent{
		{
			TenantID:   tenant.ID,
			Name:       "Demo WhatsApp Assistant",
			Channel:    crm.ChannelWhatsApp,
			Identifier: "demo-whatsapp",
			IsAI:       true,
			IsActive:   true,
			Settings: crm.AgentSettings{
				Persona:       "You are the friendly support assistant of Demo Company.",
				ResponseStyle: "balanced",
				Ticketing:     ticketing,
			},
		},
		{
			TenantID:   tenant.ID,
			Name:       "Demo Telegram Assistant",
			Channel:    crm.ChannelTelegram,
			Identifier: "demo_company_bot",
			IsAI:       true,
			IsActive:   true,
			Settings: crm.AgentSettings{
				Persona:       "You are the friendly support assistant of Demo Company.",
				ResponseStyle: "balanced",
				Ticketing:     ticketing,
			},
		},
		{
			TenantID:   tenant.ID,
			Name:       "Demo Email Assistant",
			Channel:    crm.ChannelEmail,
			Identifier: "support@demo.example",
			IsAI:       true,
			IsActive:   true,
			Settings: crm.AgentSettings{
				Persona:       "You are the friendly support assistant of Demo Company.",
				ResponseStyle: "consistent",
				Ticketing:     ticketing,
			},
		},
	}
	for _, agent := range agents {
		if err := agentRepo.Create(ctx, agent); err != nil {
			logrus.Fatalf("[SEED] Failed to create agent %q: %v", agent.Name, err)
		}
		logrus.Infof("[SEED] Created %s agent (id=%s identifier=%s)", agent.Channel, agent.ID, agent.Identifier)
	}

	fmt.Println("Demo tenant ready:")
	fmt.Printf("  tenant_id (X-Tenant-ID header): %s\n", tenant.ID)
	fmt.Println("  webhook session/bot identifiers: demo-whatsapp, demo_company_bot, support@demo.example")
}
