package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"capitao/capture"
	"capitao/caverna"
	"capitao/present"
	"capitao/submit"
	"capitao/tui"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/spf13/cobra"
)

var (
	askRecord   string
	askDuration string
	askYes      bool
	askDetails  bool
)

// errCancelled is returned when the user stops a submission
var errCancelled = errors.New(strings.TrimSuffix(submit.MsgProcessingStopped, "."))

var askCmd = &cobra.Command{
	Use:   "ask [file]",
	Short: "Envia uma pergunta em vídeo ou áudio",
	Long: `Envia um arquivo de vídeo ou áudio com a sua pergunta e acompanha o
processamento até a resposta. Com --record, grava pela câmera ou microfone
usando ffmpeg.`,
	Example: `  capitao ask pergunta.mp4 --yes
  capitao ask --record audio --duration 20s
  capitao ask pergunta.m4a --no-tui -o json > resposta.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

var testCmd = &cobra.Command{
	Use:   "test <pergunta>",
	Short: "Envia uma pergunta em texto para o endpoint de teste",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTestQuestion,
}

func init() {
	askCmd.Flags().StringVar(&askRecord, "record", "", "record instead of reading a file: video or audio")
	askCmd.Flags().StringVar(&askDuration, "duration", "30", "recording length (30, 45s, 1:30)")
	for _, c := range []*cobra.Command{askCmd, testCmd} {
		c.Flags().BoolVarP(&askYes, "yes", "y", false, "accept the terms of use without asking")
		c.Flags().BoolVar(&askDetails, "details", false, "include technical details in text output")
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	if (len(args) == 0) == (askRecord == "") {
		return fmt.Errorf("informe um arquivo ou use --record video|audio")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	var media *capture.Media
	if askRecord != "" {
		kind := capture.Kind(strings.ToLower(askRecord))
		if kind != capture.KindVideo && kind != capture.KindAudio {
			return fmt.Errorf("--record must be video or audio, got %q", askRecord)
		}
		d, err := capture.ParseDuration(askDuration)
		if err != nil {
			return fmt.Errorf("invalid --duration: %w", err)
		}
		media, err = a.record(ctx, kind, d)
		if err != nil {
			return err
		}
	} else {
		media, err = a.loadMedia(ctx, args[0])
		if err != nil {
			return err
		}
	}

	// the controller releases it too; Release is idempotent
	defer media.Release()

	consent, err := a.consent(askYes)
	if err != nil {
		return err
	}

	return a.submit(ctx, "Enviando "+media.Name, consent, func(c *submit.Controller) error {
		return c.SubmitFile(ctx, media)
	})
}

func runTestQuestion(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	if err := tui.ValidateQuestion(question); err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	consent, err := a.consent(askYes)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	return a.submit(ctx, "Modo de teste", consent, func(c *submit.Controller) error {
		return c.SubmitTestQuestion(ctx, question)
	})
}

// consent resolves the terms acceptance from --yes or a prompt
func (a *app) consent(yes bool) (bool, error) {
	if yes || !a.cfg.Submit.RequireConsent {
		return true, nil
	}
	if !tui.IsTTY() {
		return false, fmt.Errorf("%s (use --yes)", submit.MsgConsentRequired)
	}

	var accepted bool
	err := huh.NewForm(huh.NewGroup(huh.NewConfirm().
		Title("Termos de uso").
		Description(tui.ConsentText).
		Affirmative("Concordo").
		Negative("Não concordo").
		Value(&accepted))).
		WithTheme(huh.ThemeCatppuccin()).
		Run()
	if err != nil {
		return false, err
	}
	if !accepted {
		return false, errors.New(submit.MsgConsentRequired)
	}
	return true, nil
}

// submit runs start against a fresh controller, full screen or as plain
// lines, and prints the answer.
func (a *app) submit(ctx context.Context, title string, consent bool, start func(*submit.Controller) error) error {
	if a.useTUI() {
		again, err := a.submitTUI(title, consent, start)
		if err != nil || !again {
			return err
		}
		return runInteractive(ctx, a)
	}

	resp, err := a.submitPlain(ctx, consent, start)
	if err != nil {
		return err
	}
	return present.WriteResult(os.Stdout, a.format, resp, askDetails, 100)
}

// submitTUI reports whether the user asked for another question
func (a *app) submitTUI(title string, consent bool, start func(*submit.Controller) error) (bool, error) {
	bridge := &tui.Bridge{}
	ctrl := a.newController(bridge, bridge.OnChange)
	defer ctrl.Close()
	ctrl.SetConsent(consent)

	model := tui.NewAskModel(title, func() error { return start(ctrl) }, ctrl)
	final, err := tui.RunAsk(model, bridge)
	ctrl.Cancel()
	if err != nil {
		return false, err
	}
	return final.AskAgain(), nil
}

func (a *app) submitPlain(ctx context.Context, consent bool, start func(*submit.Controller) error) (*caverna.QuestionResponse, error) {
	reporter := newLineReporter(os.Stderr)
	ctrl := a.newController(reporter, reporter.OnChange)
	defer ctrl.Close()
	ctrl.SetConsent(consent)

	// Ctrl+C cancels the submission instead of killing the process
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	go func() {
		<-sigCtx.Done()
		ctrl.Cancel()
	}()

	if err := start(ctrl); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, errCancelled
		}
		return nil, err
	}

	snap, err := ctrl.Wait(ctx)
	if err != nil {
		return nil, err
	}
	switch snap.State {
	case submit.StateCompleted:
		return snap.Result, nil
	case submit.StateError:
		return nil, errors.New(snap.Error)
	default:
		return nil, errCancelled
	}
}

// loadMedia reads a file, showing its duration when ffprobe is around
func (a *app) loadMedia(ctx context.Context, path string) (*capture.Media, error) {
	media, err := capture.LoadFile(path, a.cfg.MaxMediaBytes())
	if err != nil {
		return nil, err
	}

	info := fmt.Sprintf("📁 %s\n📦 %s · %s", media.Name, capture.FormatSize(media.Size), media.ContentType)
	if capture.CheckFFprobe() == nil {
		var mi *capture.MediaInfo
		probe := func() { mi, err = capture.Probe(ctx, path) }
		if tui.IsTTY() {
			_ = spinner.New().Title("Lendo informações do arquivo...").Action(probe).Run()
		} else {
			probe()
		}
		if err != nil {
			a.log.Warn().Err(err).Str("file", path).Msg("probe failed")
		} else if mi.Duration > 0 {
			info += "\n⏱  Duração: " + capture.FormatDuration(mi.Duration)
		}
	}
	fmt.Fprintln(os.Stderr, tui.BoxStyle.Render(info))
	return media, nil
}

// record captures a clip through ffmpeg
func (a *app) record(ctx context.Context, kind capture.Kind, d time.Duration) (*capture.Media, error) {
	if err := capture.CheckFFmpeg(); err != nil {
		return nil, err
	}
	rec := capture.NewRecorder(
		capture.WithDevices(a.cfg.Media.VideoDevice, a.cfg.Media.AudioDevice),
		capture.WithRecorderLogger(a.log.Logger),
	)

	var media *capture.Media
	var err error
	run := func() { media, err = rec.Capture(ctx, kind, d) }
	title := fmt.Sprintf("🔴 Gravando %s por %s...", kind, capture.FormatDuration(d))
	if tui.IsTTY() {
		if spinErr := spinner.New().Title(title).Action(run).Run(); spinErr != nil {
			return nil, spinErr
		}
	} else {
		fmt.Fprintln(os.Stderr, title)
		run()
	}
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(os.Stderr, tui.SuccessStyle.Render("Gravação pronta: "+capture.FormatSize(media.Size)))
	return media, nil
}
