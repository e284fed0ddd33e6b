package main

import (
	"fmt"

	"capitao/tui"

	"github.com/charmbracelet/huh/spinner"
	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// updateRepo is the GitHub owner/name releases are fetched from; set via ldflags
var updateRepo = ""

var (
	updateCheck bool
	updateSlug  string
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Atualiza o capitao para a última versão publicada",
	Args:  cobra.NoArgs,
	RunE:  runUpdate,
}

func init() {
	updateCmd.Flags().BoolVar(&updateCheck, "check", false, "only report whether an update is available")
	updateCmd.Flags().StringVar(&updateSlug, "repo", "", "GitHub repository (owner/name) to update from")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	slug := updateSlug
	if slug == "" {
		slug = updateRepo
	}
	if slug == "" {
		return fmt.Errorf("no release repository configured; pass --repo owner/name")
	}
	if version == "dev" {
		return fmt.Errorf("development builds cannot self-update")
	}

	ctx := cmd.Context()
	var (
		latest *selfupdate.Release
		found  bool
		err    error
	)
	detect := func() { latest, found, err = selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(slug)) }
	if tui.IsTTY() {
		if spinErr := spinner.New().Title("Procurando atualizações...").Action(detect).Run(); spinErr != nil {
			return spinErr
		}
	} else {
		detect()
	}
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}
	if !found {
		return fmt.Errorf("no release found for %s", slug)
	}

	if latest.LessOrEqual(version) {
		fmt.Println(tui.SuccessStyle.Render("Você já está na versão mais recente (" + version + ")"))
		return nil
	}
	if updateCheck {
		fmt.Println(tui.InfoStyle.Render(fmt.Sprintf("Nova versão disponível: %s (atual %s)", latest.Version(), version)))
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}
	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("failed to update binary: %w", err)
	}

	fmt.Println(tui.SuccessStyle.Render("Atualizado para a versão " + latest.Version()))
	return nil
}
