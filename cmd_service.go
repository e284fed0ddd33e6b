package main

import (
	"fmt"
	"os"
	"strings"

	"capitao/present"
	"capitao/tui"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Verifica se o serviço está no ar",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "cache-stats",
	Short: "Mostra as estatísticas do cache de respostas",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var similarCmd = &cobra.Command{
	Use:   "similar <pergunta>",
	Short: "Lista perguntas parecidas já respondidas",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSimilar,
}

func runHealth(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.client.Health(cmd.Context())
	if err != nil {
		return fmt.Errorf("serviço indisponível: %w", err)
	}

	if a.format != present.FormatText {
		if err := present.Write(os.Stdout, a.format, status); err != nil {
			return err
		}
	} else {
		badge := tui.BadgeSuccessStyle.Render(status.Status)
		if !status.Healthy() {
			badge = tui.BadgeErrorStyle.Render(status.Status)
		}
		lines := []string{
			tui.TitleStyle.Render("🐺 Pergunte ao Capitão"),
			"Status:  " + badge,
			"Serviço: " + a.client.BaseURL(),
		}
		if status.Version != "" {
			lines = append(lines, "Versão:  "+status.Version)
		}
		if status.Timestamp != "" {
			lines = append(lines, tui.MutedStyle.Render("Verificado em "+status.Timestamp))
		}
		fmt.Println(tui.BoxStyle.Render(strings.Join(lines, "\n")))
	}

	if !status.Healthy() {
		return fmt.Errorf("service reported status %q", status.Status)
	}
	return nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.client.CacheStats(cmd.Context())
	if err != nil {
		return err
	}

	if a.format != present.FormatText {
		return present.Write(os.Stdout, a.format, stats)
	}

	body := fmt.Sprintf("Respostas em cache: %s\nCache hits:         %s\nTaxa de acerto:     %.1f%%",
		humanize.Comma(int64(stats.TotalEntries)),
		humanize.Comma(int64(stats.TotalHits)),
		hitRatePercent(stats.HitRate),
	)
	fmt.Println(tui.Card("⚡ Cache", body, 44))
	return nil
}

// hitRatePercent accepts the rate as a fraction or as a percentage
func hitRatePercent(rate float64) float64 {
	if rate <= 1 {
		return rate * 100
	}
	return rate
}

func runSimilar(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	if err := tui.ValidateQuestion(question); err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.client.SimilarQuestions(cmd.Context(), question)
	if err != nil {
		return err
	}

	if a.format != present.FormatText {
		return present.Write(os.Stdout, a.format, list)
	}

	if len(list) == 0 {
		fmt.Println(tui.MutedStyle.Render("Nenhuma pergunta parecida encontrada."))
		return nil
	}

	scoreStyle := lipgloss.NewStyle().Foreground(tui.ColorAccent).Bold(true)
	for i, q := range list {
		line := fmt.Sprintf("%2d. %s %s", i+1, scoreStyle.Render(fmt.Sprintf("%3.0f%%", hitRatePercent(q.Similarity))), q.Question)
		if q.CacheHits > 0 {
			line += tui.MutedStyle.Render(fmt.Sprintf(" (%d hits)", q.CacheHits))
		}
		fmt.Println(line)
	}
	return nil
}
