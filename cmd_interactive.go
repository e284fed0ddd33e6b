package main

import (
	"context"
	"errors"
	"fmt"

	"capitao/capture"
	"capitao/submit"
	"capitao/tui"

	"github.com/charmbracelet/huh"
)

// runInteractive loops form → submission → answer until the user leaves
func runInteractive(ctx context.Context, a *app) error {
	fmt.Println(tui.Header())

	recording := capture.CheckFFmpeg() == nil
	if !recording {
		a.log.Info().Msg("ffmpeg not found, recording disabled")
	}

	for {
		req, err := tui.RunQuestionForm(tui.FormOptions{
			RequireConsent: a.cfg.Submit.RequireConsent,
			Recording:      recording,
		})
		if err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				break
			}
			if errors.Is(err, tui.ErrConsentDeclined) {
				fmt.Println(tui.ErrorStyle.Render(submit.MsgConsentRequired))
			} else {
				fmt.Println(tui.ErrorStyle.Render("Erro: " + err.Error()))
			}
			if !askToContinue() {
				break
			}
			continue
		}

		again, err := a.runRequest(ctx, req)
		if err != nil {
			fmt.Println(tui.ErrorStyle.Render("Erro: " + err.Error()))
			if !askToContinue() {
				break
			}
			continue
		}
		if !again {
			break
		}
	}

	fmt.Println(tui.SubtitleStyle.Render("\n🐺 Até a próxima, guerreiro!"))
	return nil
}

// runRequest submits what the form collected and reports whether the user
// wants to ask again
func (a *app) runRequest(ctx context.Context, req *tui.Request) (bool, error) {
	consent := req.Consent || !a.cfg.Submit.RequireConsent

	switch req.Mode {
	case tui.ModeTest:
		return a.submitTUI("Modo de teste", consent, func(c *submit.Controller) error {
			return c.SubmitTestQuestion(ctx, req.Question)
		})

	case tui.ModeRecordVideo, tui.ModeRecordAudio:
		kind := capture.KindVideo
		if req.Mode == tui.ModeRecordAudio {
			kind = capture.KindAudio
		}
		media, err := a.record(ctx, kind, req.Duration)
		if err != nil {
			return false, err
		}
		defer media.Release()
		return a.submitTUI("Enviando gravação", consent, func(c *submit.Controller) error {
			return c.SubmitFile(ctx, media)
		})

	default:
		media, err := a.loadMedia(ctx, req.Path)
		if err != nil {
			return false, err
		}
		defer media.Release()
		return a.submitTUI("Enviando "+media.Name, consent, func(c *submit.Controller) error {
			return c.SubmitFile(ctx, media)
		})
	}
}

func askToContinue() bool {
	var choice string
	selectNext := huh.NewSelect[string]().
		Title("E agora?").
		Options(
			huh.NewOption("Fazer outra pergunta", "another"),
			huh.NewOption("Sair", "exit"),
		).
		Value(&choice)

	err := huh.NewForm(huh.NewGroup(selectNext)).
		WithTheme(huh.ThemeCatppuccin()).
		Run()
	if err != nil {
		return false
	}
	return choice == "another"
}
