package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Print the configuration after merging defaults, the config file, the
environment and the secret store. The API key is masked.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

type configView struct {
	File           string `yaml:"file,omitempty"`
	APIKey         string `yaml:"api_key"`
	APIKeySource   string `yaml:"api_key_source,omitempty"`
	Workspace      string `yaml:"workspace,omitempty"`
	DataInspection string `yaml:"data_inspection,omitempty"`
	Endpoints      struct {
		HTTP      string `yaml:"http"`
		Websocket string `yaml:"websocket"`
	} `yaml:"endpoints"`
	HeartbeatInterval string `yaml:"heartbeat_interval"`
	Retry             struct {
		InitialInterval string `yaml:"initial_interval"`
		MaxInterval     string `yaml:"max_interval"`
		MaxElapsed      string `yaml:"max_elapsed"`
	} `yaml:"retry"`
	ASR struct {
		Model         string `yaml:"model"`
		Format        string `yaml:"format"`
		SampleRate    int    `yaml:"sample_rate"`
		ChunkSize     int    `yaml:"chunk_size"`
		ChunkInterval string `yaml:"chunk_interval"`
	} `yaml:"asr"`
	TTS struct {
		Model      string   `yaml:"model"`
		Voice      string   `yaml:"voice"`
		Format     string   `yaml:"format"`
		SampleRate int      `yaml:"sample_rate"`
		Volume     *int     `yaml:"volume,omitempty"`
		Rate       *float64 `yaml:"rate,omitempty"`
		Pitch      *float64 `yaml:"pitch,omitempty"`
	} `yaml:"tts"`
}

func runConfig(cmd *cobra.Command, args []string) error {
	var v configView
	v.File = cfg.Path
	v.APIKey = cfg.MaskedAPIKey()
	v.APIKeySource = cfg.APIKeySource
	v.Workspace = cfg.Workspace
	v.DataInspection = cfg.DataInspection
	v.Endpoints.HTTP = cfg.HTTPEndpoint
	v.Endpoints.Websocket = cfg.WebsocketEndpoint
	v.HeartbeatInterval = cfg.Heartbeat.String()
	v.Retry.InitialInterval = cfg.Retry.InitialInterval.String()
	v.Retry.MaxInterval = cfg.Retry.MaxInterval.String()
	v.Retry.MaxElapsed = cfg.Retry.MaxElapsed.String()
	v.ASR.Model = cfg.ASR.Model
	v.ASR.Format = cfg.ASR.Format
	v.ASR.SampleRate = cfg.ASR.SampleRate
	v.ASR.ChunkSize = cfg.ASR.ChunkSize
	v.ASR.ChunkInterval = cfg.ASR.ChunkInterval.String()
	v.TTS.Model = cfg.TTS.Model
	v.TTS.Voice = cfg.TTS.Voice
	v.TTS.Format = cfg.TTS.Format
	v.TTS.SampleRate = cfg.TTS.SampleRate
	v.TTS.Volume = cfg.TTS.Volume
	v.TTS.Rate = cfg.TTS.Rate
	v.TTS.Pitch = cfg.TTS.Pitch

	data, err := yaml.Marshal(&v)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
