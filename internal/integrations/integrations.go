// Package integrations собирает вендорские клиенты в единый реестр
// инструментов согласно конфигурации.
package integrations

import (
	"strings"

	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/connectors/github"
	"github.com/joe-reitz/oss-moperator/internal/connectors/hubspot"
	"github.com/joe-reitz/oss-moperator/internal/connectors/linear"
	"github.com/joe-reitz/oss-moperator/internal/connectors/marketo"
	"github.com/joe-reitz/oss-moperator/internal/connectors/salesforce"
	"github.com/joe-reitz/oss-moperator/internal/infra"
	"github.com/joe-reitz/oss-moperator/internal/tools"
)

// Set — собранные интеграции. Linear хранится отдельно:
// его дергают еще и слэш-команды /bug и /feature.
type Set struct {
	Registry *tools.Registry
	Linear   *linear.Client

	enabled []string
}

// Build создает клиентов для всех активных интеграций и регистрирует
// их инструменты. Выключенная интеграция просто не попадает в реестр.
func Build(cfg infra.IntegrationsConfig, logger *zap.Logger) *Set {
	set := &Set{Registry: tools.NewRegistry()}

	if cfg.Salesforce.Enabled() {
		set.add("Salesforce", salesforce.NewClient(cfg.Salesforce, logger).Tools())
	}
	if cfg.HubSpot.Enabled() {
		set.add("HubSpot", hubspot.NewClient(cfg.HubSpot, logger).Tools())
	}
	if cfg.Linear.Enabled() {
		set.Linear = linear.NewClient(cfg.Linear, logger)
		set.add("Linear", set.Linear.Tools())
	}
	if cfg.GitHub.Enabled() {
		set.add("GitHub", github.NewClient(cfg.GitHub, logger).Tools())
	}
	if cfg.Marketo.Enabled() {
		set.add("Marketo", marketo.NewClient(cfg.Marketo, logger).Tools())
	}

	logger.Info("integrations assembled",
		zap.Strings("enabled", set.enabled),
		zap.Int("tools", len(set.Registry.Names())))
	return set
}

func (s *Set) add(name string, toolList []tools.Tool) {
	s.enabled = append(s.enabled, name)
	for _, t := range toolList {
		s.Registry.Register(t)
	}
}

// Capabilities возвращает человекочитаемую сводку активных интеграций
// для системного промпта.
func (s *Set) Capabilities() string {
	if len(s.enabled) == 0 {
		return "No external integrations are currently connected."
	}
	var b strings.Builder
	b.WriteString("Connected systems: ")
	b.WriteString(strings.Join(s.enabled, ", "))
	b.WriteString(".\nAvailable tools: ")
	b.WriteString(strings.Join(s.Registry.Names(), ", "))
	b.WriteString(".")
	return b.String()
}
