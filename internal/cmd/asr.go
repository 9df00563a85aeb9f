package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/inercia/inferstream/internal/asr"
	"github.com/inercia/inferstream/internal/fileutil"
	"github.com/inercia/inferstream/internal/logging"
	"github.com/inercia/inferstream/internal/protocol"
)

var (
	asrModel        string
	asrFormat       string
	asrSampleRate   int
	asrVocabularyID string
	asrLanguages    []string
	asrNoPacing     bool
	asrPartial      bool
	asrJSONPath     string
)

var asrCmd = &cobra.Command{
	Use:   "asr <audio-file>",
	Short: "Transcribe an audio file with real-time recognition",
	Long: `Stream an audio file to a real-time recognition task and print the
final transcript. Use "-" to read audio from stdin.

The audio is paced at the configured chunk interval so the service sees it
at real-time speed; --no-pacing sends it as fast as possible.

Examples:
  inferstream asr meeting.wav
  inferstream asr --format pcm --sample-rate 8000 call.raw
  arecord -f S16_LE -r 16000 -c 1 -t raw | inferstream asr --partial -`,
	Args: cobra.ExactArgs(1),
	RunE: runASR,
}

func init() {
	rootCmd.AddCommand(asrCmd)

	asrCmd.Flags().StringVar(&asrModel, "model", "", "Recognition model (default from config)")
	asrCmd.Flags().StringVar(&asrFormat, "format", "", "Audio format: pcm, wav, mp3, opus, speex, aac, amr (default: file extension, then config)")
	asrCmd.Flags().IntVar(&asrSampleRate, "sample-rate", 0, "Audio sample rate in Hz (default from config)")
	asrCmd.Flags().StringVar(&asrVocabularyID, "vocabulary-id", "", "Custom vocabulary to bias recognition")
	asrCmd.Flags().StringSliceVar(&asrLanguages, "language", nil, "Language hints, e.g. zh,en")
	asrCmd.Flags().BoolVar(&asrNoPacing, "no-pacing", false, "Send audio as fast as possible")
	asrCmd.Flags().BoolVar(&asrPartial, "partial", false, "Print intermediate results to stderr")
	asrCmd.Flags().StringVar(&asrJSONPath, "json", "", "Also write the transcript as JSON to this file")
}

// audioFormats maps file extensions to recognition formats.
var audioFormats = map[string]string{
	".pcm": "pcm", ".raw": "pcm", ".wav": "wav", ".mp3": "mp3",
	".opus": "opus", ".spx": "speex", ".aac": "aac", ".amr": "amr",
}

func runASR(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	var audio io.Reader
	src := args[0]
	if src == "-" {
		audio = cmd.InOrStdin()
	} else {
		f, err := os.Open(src)
		if err != nil {
			return fmt.Errorf("failed to open audio: %w", err)
		}
		defer f.Close()
		audio = f
	}

	opts := asr.Options{
		Model: firstNonEmpty(asrModel, cfg.ASR.Model),
		Params: protocol.RecognitionParams{
			Format:        firstNonEmpty(asrFormat, audioFormats[strings.ToLower(filepath.Ext(src))], cfg.ASR.Format),
			SampleRate:    cfg.ASR.SampleRate,
			VocabularyID:  asrVocabularyID,
			LanguageHints: asrLanguages,
		},
		ChunkSize:     cfg.ASR.ChunkSize,
		ChunkInterval: cfg.ASR.ChunkInterval,
		Heartbeat:     cfg.Heartbeat,
		Logger:        logging.Session(),
	}
	if asrSampleRate > 0 {
		opts.Params.SampleRate = asrSampleRate
	}
	if asrNoPacing {
		opts.ChunkInterval = -1
	}
	if asrPartial {
		stderr := cmd.ErrOrStderr()
		opts.OnSentence = func(s *protocol.Sentence) {
			mark := "~"
			if s.IsFinal() {
				mark = "="
			}
			fmt.Fprintf(stderr, "%s [%d-%d] %s\n", mark, s.BeginTime, s.EndTime, s.Text)
		}
	}

	st, closeRecording, err := withRecording(c)
	if err != nil {
		return err
	}
	defer closeRecording()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	start := time.Now()
	tr, err := asr.Recognize(ctx, st, audio, opts)
	if err != nil {
		return fmt.Errorf("recognition failed: %w", err)
	}
	logging.CLI().Info("recognition finished",
		"task_id", tr.TaskID,
		"sentences", len(tr.Sentences),
		"elapsed", time.Since(start).Round(time.Millisecond))

	fmt.Fprintln(cmd.OutOrStdout(), tr.Text())

	if asrJSONPath != "" {
		if err := fileutil.WriteJSONAtomic(asrJSONPath, newTranscriptJSON(tr), 0o644); err != nil {
			return err
		}
	}
	return nil
}

type transcriptJSON struct {
	TaskID    string              `json:"task_id"`
	Text      string              `json:"text"`
	Sentences []protocol.Sentence `json:"sentences"`
	Usage     *protocol.Usage     `json:"usage,omitempty"`
}

func newTranscriptJSON(tr *asr.Transcript) transcriptJSON {
	return transcriptJSON{
		TaskID:    tr.TaskID,
		Text:      tr.Text(),
		Sentences: tr.Sentences,
		Usage:     tr.Usage,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
