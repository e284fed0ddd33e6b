package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"capitao/capture"
	"capitao/caverna"
	"capitao/present"
	"capitao/tui"

	"github.com/spf13/cobra"
)

var (
	lipsyncFormat string
	lipsyncOut    string
	downloadDir   string
)

var lipsyncCmd = &cobra.Command{
	Use:   "lipsync <resposta.json|->",
	Short: "Exporta a análise de fonemas como legendas SRT ou WebVTT",
	Long: `Lê uma resposta salva com "capitao ask -o json" e gera a linha do tempo
das formas da boca usada na sincronização labial.`,
	Example: `  capitao ask pergunta.mp4 -y -o json > resposta.json
  capitao lipsync resposta.json --format vtt -O boca.vtt`,
	Args: cobra.ExactArgs(1),
	RunE: runLipsync,
}

var downloadCmd = &cobra.Command{
	Use:   "download <resposta.json|->",
	Short: "Baixa o vídeo e o áudio gerados para uma resposta",
	Args:  cobra.ExactArgs(1),
	RunE:  runDownload,
}

func init() {
	lipsyncCmd.Flags().StringVar(&lipsyncFormat, "format", string(present.LipSyncSRT), "subtitle format: srt or vtt")
	lipsyncCmd.Flags().StringVarP(&lipsyncOut, "out", "O", "", "write to a file instead of stdout")
	downloadCmd.Flags().StringVar(&downloadDir, "dir", ".", "directory for the downloaded files")
}

// readResult decodes a saved answer from a file or stdin ("-")
func readResult(path string, stdin io.Reader) (*caverna.QuestionResponse, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open result: %w", err)
		}
		defer f.Close()
		r = f
	}

	var resp caverna.QuestionResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}
	return &resp, nil
}

func runLipsync(cmd *cobra.Command, args []string) error {
	resp, err := readResult(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	cues := present.LipSyncCues(resp.PhonemeAnalysis)
	if len(cues) == 0 {
		return fmt.Errorf("a resposta não tem análise de fonemas")
	}
	text, err := present.FormatLipSync(cues, present.LipSyncFormat(lipsyncFormat))
	if err != nil {
		return err
	}

	if lipsyncOut == "" {
		_, err = io.WriteString(cmd.OutOrStdout(), text)
		return err
	}
	if err := os.WriteFile(lipsyncOut, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", lipsyncOut, err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), tui.SuccessStyle.Render(fmt.Sprintf("✓ %d marcações salvas em %s", len(cues), lipsyncOut)))
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	resp, err := readResult(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}
	if resp.VideoURL == "" && resp.AudioURL == "" {
		return fmt.Errorf("a resposta não tem mídia gerada")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", downloadDir, err)
	}

	for _, item := range []struct{ url, name string }{
		{resp.VideoURL, present.VideoDownloadName},
		{resp.AudioURL, present.AudioDownloadName},
	} {
		if item.url == "" {
			continue
		}
		path := filepath.Join(downloadDir, item.name)
		n, err := a.download(cmd, item.url, path)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), tui.SuccessStyle.Render(fmt.Sprintf("✓ %s (%s)", path, capture.FormatSize(n))))
	}
	return nil
}

func (a *app) download(cmd *cobra.Command, url, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}

	n, err := a.client.DownloadMedia(cmd.Context(), url, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	a.log.Info().Str("url", url).Str("path", path).Int64("bytes", n).Msg("media downloaded")
	return n, nil
}
