package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inercia/inferstream/internal/fileutil"
	"github.com/inercia/inferstream/internal/logging"
	"github.com/inercia/inferstream/internal/protocol"
	"github.com/inercia/inferstream/internal/tts"
)

var (
	ttsOut        string
	ttsModel      string
	ttsVoice      string
	ttsFormat     string
	ttsSampleRate int
	ttsVolume     int
	ttsRate       float64
	ttsPitch      float64
)

var ttsCmd = &cobra.Command{
	Use:   "tts [text...]",
	Short: "Synthesize speech from text",
	Long: `Synthesize speech and write the audio to a file. Each argument is sent as
one text segment; with no arguments, each line of stdin is a segment.

The output file is only replaced once synthesis has finished.

Examples:
  inferstream tts --out hello.mp3 "Hello there." "How are you?"
  inferstream tts --voice longwan --format wav --out story.wav < story.txt`,
	RunE: runTTS,
}

func init() {
	rootCmd.AddCommand(ttsCmd)

	ttsCmd.Flags().StringVarP(&ttsOut, "out", "o", "", "Output audio file (required)")
	ttsCmd.Flags().StringVar(&ttsModel, "model", "", "Synthesis model (default from config)")
	ttsCmd.Flags().StringVar(&ttsVoice, "voice", "", "Voice (default from config)")
	ttsCmd.Flags().StringVar(&ttsFormat, "format", "", "Audio format: mp3, wav, pcm (default from config)")
	ttsCmd.Flags().IntVar(&ttsSampleRate, "sample-rate", 0, "Sample rate in Hz (default from config)")
	ttsCmd.Flags().IntVar(&ttsVolume, "volume", 0, "Volume, 0-100")
	ttsCmd.Flags().Float64Var(&ttsRate, "rate", 0, "Speech rate, 0.5-2.0")
	ttsCmd.Flags().Float64Var(&ttsPitch, "pitch", 0, "Pitch, 0.5-2.0")
	_ = ttsCmd.MarkFlagRequired("out")
}

func runTTS(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	texts := args
	if len(texts) == 0 {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				texts = append(texts, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read text: %w", err)
		}
	}

	params := protocol.SynthesisParams{
		Voice:      firstNonEmpty(ttsVoice, cfg.TTS.Voice),
		Format:     firstNonEmpty(ttsFormat, cfg.TTS.Format),
		SampleRate: cfg.TTS.SampleRate,
		Volume:     cfg.TTS.Volume,
		Rate:       cfg.TTS.Rate,
		Pitch:      cfg.TTS.Pitch,
	}
	if ttsSampleRate > 0 {
		params.SampleRate = ttsSampleRate
	}
	if cmd.Flags().Changed("volume") {
		params.Volume = &ttsVolume
	}
	if cmd.Flags().Changed("rate") {
		params.Rate = &ttsRate
	}
	if cmd.Flags().Changed("pitch") {
		params.Pitch = &ttsPitch
	}

	out, err := fileutil.Create(ttsOut, 0o644)
	if err != nil {
		return err
	}
	defer out.Abort()

	st, closeRecording, err := withRecording(c)
	if err != nil {
		return err
	}
	defer closeRecording()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	res, err := tts.Synthesize(ctx, st, texts, out, tts.Options{
		Model:     firstNonEmpty(ttsModel, cfg.TTS.Model),
		Params:    params,
		Heartbeat: cfg.Heartbeat,
		Logger:    logging.Session(),
	})
	if err != nil {
		return fmt.Errorf("synthesis failed: %w", err)
	}
	if err := out.Commit(); err != nil {
		return err
	}

	logging.CLI().Info("synthesis finished", "task_id", res.TaskID, "frames", res.Frames)
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", res.Bytes, ttsOut)
	return nil
}
