package main

import (
	"errors"
	"os"
	"os/signal"
	"sync"

	"capitao/caverna"
	"capitao/present"
	"capitao/submit"
	"capitao/tracker"
	"capitao/tui"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <session-id>",
	Short: "Acompanha uma sessão de processamento existente",
	Long: `Conecta ao stream de progresso de uma sessão já criada (por exemplo,
por outro cliente) e mostra o andamento até a resposta.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&askDetails, "details", false, "include technical details in text output")
}

// sessionWatch adapts tracker callbacks to controller-shaped snapshots so
// both the full screen UI and the line reporter can show them
type sessionWatch struct {
	notifier submit.Notifier
	onChange func(submit.Snapshot)

	mu     sync.Mutex
	result *caverna.QuestionResponse
	err    string

	t *tracker.Tracker
}

func (w *sessionWatch) callbacks() tracker.Callbacks {
	return tracker.Callbacks{
		OnChange: func(s tracker.Snapshot) {
			w.onChange(submit.Snapshot{State: submit.StateProcessing, SessionID: s.SessionID, Tracking: &s})
		},
		OnComplete: func(result *caverna.QuestionResponse) {
			w.settle(result, "")
			w.notifier.Success(submit.MsgProcessingDone)
			w.onChange(submit.Snapshot{State: submit.StateCompleted, Result: result})
		},
		OnError: func(message string) {
			w.settle(nil, message)
			w.notifier.Error(submit.MsgProcessingFailed + message)
			w.onChange(submit.Snapshot{State: submit.StateError, Error: message})
		},
		OnCancel: func() {
			w.settle(nil, "")
			w.notifier.Info(submit.MsgProcessingStopped)
			w.onChange(submit.Snapshot{State: submit.StateIdle})
		},
	}
}

func (w *sessionWatch) settle(result *caverna.QuestionResponse, err string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.result = result
	w.err = err
}

// Cancel implements tui.Canceller
func (w *sessionWatch) Cancel() bool {
	w.t.Cancel()
	return true
}

func (w *sessionWatch) outcome() (*caverna.QuestionResponse, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.result != nil:
		return w.result, nil
	case w.err != "":
		return nil, errors.New(w.err)
	default:
		return nil, errCancelled
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sessionID := args[0]
	ctx := cmd.Context()

	if a.useTUI() {
		bridge := &tui.Bridge{}
		w := &sessionWatch{notifier: bridge, onChange: bridge.OnChange}
		w.t = tracker.New(a.dialer(), w.callbacks(), a.trackerOptions()...)
		defer w.t.Close()

		model := tui.NewAskModel("Sessão "+sessionID, func() error {
			return w.t.Open(ctx, sessionID)
		}, w)
		final, err := tui.RunAsk(model, bridge)
		if err != nil {
			return err
		}
		if final.AskAgain() {
			return runInteractive(ctx, a)
		}
		return nil
	}

	reporter := newLineReporter(os.Stderr)
	w := &sessionWatch{notifier: reporter, onChange: reporter.OnChange}
	w.t = tracker.New(a.dialer(), w.callbacks(), a.trackerOptions()...)
	defer w.t.Close()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	go func() {
		<-sigCtx.Done()
		w.t.Cancel()
	}()

	if err := w.t.Open(ctx, sessionID); err != nil {
		return err
	}
	if err := w.t.Wait(ctx); err != nil {
		return err
	}

	resp, err := w.outcome()
	if err != nil {
		return err
	}
	return present.WriteResult(os.Stdout, a.format, resp, askDetails, 100)
}
