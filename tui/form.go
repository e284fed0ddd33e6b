package tui

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"capitao/capture"

	"github.com/charmbracelet/huh"
)

// Mode is how the question is provided
type Mode string

const (
	ModeFile        Mode = "file"
	ModeRecordVideo Mode = "record-video"
	ModeRecordAudio Mode = "record-audio"
	ModeTest        Mode = "test"
)

// ConsentText is the terms line the user has to accept before sending
const ConsentText = "Concordo que minha pergunta seja processada e que a resposta possa ser compartilhada."

// Request is what the user filled in
type Request struct {
	Mode     Mode
	Path     string
	Duration time.Duration
	Question string
	Consent  bool
}

// FormOptions tunes the question form
type FormOptions struct {
	// RequireConsent adds the terms confirmation
	RequireConsent bool

	// Recording enables the record modes; false when ffmpeg is missing
	Recording bool

	StartDir string
}

// ErrConsentDeclined is returned when the user refuses the terms
var ErrConsentDeclined = errors.New("consent declined")

// ValidateQuestion rejects blank test questions
func ValidateQuestion(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("digite uma pergunta para testar")
	}
	return nil
}

// ValidateDuration accepts "30", "45s", "1:30"
func ValidateDuration(s string) error {
	d, err := capture.ParseDuration(s)
	if err != nil {
		return err
	}
	if d <= 0 || d > 5*time.Minute {
		return fmt.Errorf("a duração deve estar entre 1s e 5m")
	}
	return nil
}

// ModeOptions lists the choices of the first question
func ModeOptions(recording bool) []huh.Option[Mode] {
	opts := []huh.Option[Mode]{huh.NewOption("Enviar um arquivo de vídeo ou áudio", ModeFile)}
	if recording {
		opts = append(opts,
			huh.NewOption("Gravar vídeo pela câmera", ModeRecordVideo),
			huh.NewOption("Gravar áudio pelo microfone", ModeRecordAudio),
		)
	}
	return append(opts, huh.NewOption("Modo de teste (pergunta em texto)", ModeTest))
}

// RunQuestionForm asks how the question is provided and collects the
// details. huh.ErrUserAborted is passed through.
func RunQuestionForm(opts FormOptions) (*Request, error) {
	req := &Request{Mode: ModeFile}

	modeSelect := huh.NewSelect[Mode]().
		Title("🐺 Como você quer perguntar ao Capitão?").
		Options(ModeOptions(opts.Recording)...).
		Value(&req.Mode)

	if err := runForm(huh.NewGroup(modeSelect)); err != nil {
		return nil, err
	}

	var group *huh.Group
	switch req.Mode {
	case ModeFile:
		startDir := opts.StartDir
		if startDir == "" {
			startDir, _ = os.Getwd()
		}
		group = huh.NewGroup(huh.NewFilePicker().
			Title("Selecione o arquivo da pergunta").
			Description("Vídeo ou áudio com a sua pergunta").
			Picking(true).
			CurrentDirectory(startDir).
			ShowHidden(false).
			ShowPermissions(false).
			ShowSize(true).
			Height(15).
			AllowedTypes(capture.Extensions()).
			Value(&req.Path))

	case ModeRecordVideo, ModeRecordAudio:
		durationText := capture.FormatDuration(capture.DefaultRecordDuration)
		group = huh.NewGroup(huh.NewInput().
			Title("Duração da gravação").
			Description("Ex.: 30, 45s, 1:30").
			Value(&durationText).
			Validate(ValidateDuration))
		if err := runForm(group); err != nil {
			return nil, err
		}
		req.Duration, _ = capture.ParseDuration(durationText)
		group = nil

	case ModeTest:
		group = huh.NewGroup(huh.NewText().
			Title("Qual é a sua pergunta?").
			Placeholder("Ex.: Como vencer a procrastinação?").
			CharLimit(500).
			Validate(ValidateQuestion).
			Value(&req.Question))
	}

	if group != nil {
		if err := runForm(group); err != nil {
			return nil, err
		}
	}

	if !opts.RequireConsent {
		return req, nil
	}

	consent := huh.NewConfirm().
		Title("Termos de uso").
		Description(ConsentText).
		Affirmative("Concordo").
		Negative("Não concordo").
		Value(&req.Consent)
	if err := runForm(huh.NewGroup(consent)); err != nil {
		return nil, err
	}
	if !req.Consent {
		return nil, ErrConsentDeclined
	}
	return req, nil
}

func runForm(groups ...*huh.Group) error {
	return huh.NewForm(groups...).
		WithTheme(huh.ThemeCatppuccin()).
		Run()
}
