// Package stats exposes read-only business metrics.
package stats

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dverano/channelpass-bot/internal/i18n"
	"github.com/dverano/channelpass-bot/internal/messages"
	"github.com/dverano/channelpass-bot/types"
)

type Store interface {
	GetStats(ctx context.Context) (*types.Stats, error)
}

// Aggregator is a thin facade over the store's stats query, shared by the
// admin bot commands and the HTTP API. Every call hits the database; callers
// poll at human rates, so no caching.
type Aggregator struct {
	store Store
}

func New(store Store) *Aggregator {
	return &Aggregator{store: store}
}

func (a *Aggregator) Snapshot(ctx context.Context) (*types.Stats, error) {
	s, err := a.store.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return s, nil
}

// FormatHTML renders a snapshot for the admin /stats command.
func FormatHTML(s *types.Stats, lang i18n.Lang) string {
	var b strings.Builder

	if lang == i18n.ES {
		fmt.Fprintf(&b, "📊 <b>Estadísticas</b>\n\n")
		fmt.Fprintf(&b, "👥 Usuarios: <b>%d</b>\n", s.TotalUsers)
		fmt.Fprintf(&b, "✅ Suscriptores activos: <b>%d</b>\n", s.ActiveSubs)
		fmt.Fprintf(&b, "📉 Vencidos: <b>%d</b>\n", s.ChurnedSubs)
		fmt.Fprintf(&b, "🆕 Sin suscribir: <b>%d</b>\n", s.NeverSubbed)
		fmt.Fprintf(&b, "\n💰 Ingresos: <b>$%.2f</b>\n", s.RevenueTotal)
	} else {
		fmt.Fprintf(&b, "📊 <b>Statistics</b>\n\n")
		fmt.Fprintf(&b, "👥 Users: <b>%d</b>\n", s.TotalUsers)
		fmt.Fprintf(&b, "✅ Active subscribers: <b>%d</b>\n", s.ActiveSubs)
		fmt.Fprintf(&b, "📉 Churned: <b>%d</b>\n", s.ChurnedSubs)
		fmt.Fprintf(&b, "🆕 Never subscribed: <b>%d</b>\n", s.NeverSubbed)
		fmt.Fprintf(&b, "\n💰 Revenue: <b>$%.2f</b>\n", s.RevenueTotal)
	}

	if len(s.RevenueByPlan) > 0 {
		b.WriteString("\n<b>By plan</b>\n")
		for _, plan := range sortedKeys(s.RevenueByPlan) {
			fmt.Fprintf(&b, "  • %s: $%.2f\n", messages.Escape(plan), s.RevenueByPlan[plan])
		}
	}
	if len(s.RevenueByLang) > 0 {
		b.WriteString("\n<b>By language</b>\n")
		for _, l := range sortedKeys(s.RevenueByLang) {
			fmt.Fprintf(&b, "  • %s: $%.2f\n", messages.Escape(l), s.RevenueByLang[l])
		}
	}

	return b.String()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
