package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/inercia/inferstream/internal/appdir"
	"github.com/inercia/inferstream/internal/config"
	"github.com/inercia/inferstream/internal/protocol"
	"github.com/inercia/inferstream/internal/secrets"
	"github.com/inercia/inferstream/internal/session"
	"github.com/inercia/inferstream/internal/wstest"
)

// setup isolates the command from the host environment.
func setup(t *testing.T, apiKey string) *secrets.MemoryStore {
	t.Helper()
	for _, k := range []string{config.EnvWorkspace, config.EnvWSURL, config.EnvAPIBase, config.EnvConfig} {
		t.Setenv(k, "")
	}
	t.Setenv(config.EnvAPIKey, apiKey)
	t.Setenv(appdir.DirEnv, t.TempDir())
	appdir.ResetCache()
	t.Cleanup(appdir.ResetCache)

	mem := &secrets.MemoryStore{}
	prev := secrets.SetDefault(mem)
	t.Cleanup(func() { secrets.SetDefault(prev) })
	return mem
}

func resetFlags() {
	configPath, debug, logLevel, logFile, logComponents, logJSON, recordPath = "", false, "", "", "", false, ""
	asrModel, asrFormat, asrSampleRate, asrVocabularyID, asrLanguages = "", "", 0, "", nil
	asrNoPacing, asrPartial, asrJSONPath = false, false, ""
	ttsOut, ttsModel, ttsVoice, ttsFormat, ttsSampleRate = "", "", "", "", 0
	vocabTargetModel, vocabPrefix, vocabWords, vocabFile, vocabLang = "", "", nil, "", ""
	vocabPage, vocabPageSize = 0, 10
}

// run executes the CLI with args and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	err := rootCmd.Execute()
	if err != nil {
		t.Logf("stderr: %s", stderr.String())
	}
	return stdout.String(), err
}

func TestConfigCommand(t *testing.T) {
	setup(t, "sk-abcdefgh12345678")
	t.Setenv(config.EnvWorkspace, "ws-7")

	out, err := run(t, "", "config")
	if err != nil {
		t.Fatalf("config error = %v", err)
	}
	if strings.Contains(out, "sk-abcdefgh12345678") {
		t.Errorf("output leaks the API key:\n%s", out)
	}
	for _, want := range []string{"****5678", "api_key_source: environment", "workspace: ws-7", "chunk_interval: 100ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestMissingAPIKey(t *testing.T) {
	setup(t, "")
	_, err := run(t, "", "vocab", "list")
	if !errors.Is(err, config.ErrMissingAPIKey) {
		t.Errorf("vocab list error = %v, want ErrMissingAPIKey", err)
	}
}

func TestAuthCommands(t *testing.T) {
	mem := setup(t, "")

	if _, err := run(t, "sk-from-stdin\n", "auth", "set"); err != nil {
		t.Fatalf("auth set error = %v", err)
	}
	if got, _ := mem.Get(secrets.ServiceName, secrets.AccountAPIKey); got != "sk-from-stdin" {
		t.Errorf("stored key = %q", got)
	}

	out, err := run(t, "", "config")
	if err != nil {
		t.Fatalf("config error = %v", err)
	}
	if !strings.Contains(out, "api_key_source: secret store") {
		t.Errorf("config output = %s", out)
	}

	if _, err := run(t, "", "auth", "delete"); err != nil {
		t.Fatalf("auth delete error = %v", err)
	}
	out, err = run(t, "", "auth", "delete")
	if err != nil || !strings.Contains(out, "no API key stored") {
		t.Errorf("second auth delete = %q, %v", out, err)
	}
}

func TestVocabCommands(t *testing.T) {
	var (
		mu    sync.Mutex
		input map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Input map[string]any `json:"input"`
		}
		json.Unmarshal(body, &req)
		mu.Lock()
		input = req.Input
		mu.Unlock()

		switch req.Input["action"] {
		case "create_vocabulary":
			w.Write([]byte(`{"output":{"vocabulary_id":"vocab-demo-42"}}`))
		case "list_vocabulary":
			w.Write([]byte(`{"output":{"vocabulary_list":[{"vocabulary_id":"vocab-demo-42","status":"OK","gmt_modified":"2024-05-01"}]}}`))
		default:
			w.Write([]byte(`{"output":{}}`))
		}
	}))
	defer srv.Close()

	setup(t, "sk-test")
	t.Setenv(config.EnvAPIBase, srv.URL)

	out, err := run(t, "", "vocab", "create", "--prefix", "demo", "--word", "Qwen:5", "--word", "DashScope")
	if err != nil {
		t.Fatalf("vocab create error = %v", err)
	}
	if strings.TrimSpace(out) != "vocab-demo-42" {
		t.Errorf("vocab create output = %q", out)
	}
	mu.Lock()
	words, _ := input["vocabulary"].([]any)
	target := input["target_model"]
	mu.Unlock()
	if len(words) != 2 || target != "paraformer-realtime-v2" {
		t.Fatalf("create input = %v", input)
	}
	if first := words[0].(map[string]any); first["text"] != "Qwen" || first["weight"] != float64(5) {
		t.Errorf("first word = %v", first)
	}
	if second := words[1].(map[string]any); second["weight"] != float64(defaultWordWeight) {
		t.Errorf("second word = %v", second)
	}

	out, err = run(t, "", "vocab", "list", "--prefix", "demo")
	if err != nil {
		t.Fatalf("vocab list error = %v", err)
	}
	if !strings.Contains(out, "vocab-demo-42\tOK") {
		t.Errorf("vocab list output = %q", out)
	}

	if _, err := run(t, "", "vocab", "create", "--prefix", "demo"); err == nil {
		t.Error("vocab create without words succeeded")
	}
}

func TestParseWord(t *testing.T) {
	tests := []struct {
		in         string
		wantText   string
		wantWeight int
		wantErr    bool
	}{
		{"hello", "hello", defaultWordWeight, false},
		{"hello:2", "hello", 2, false},
		{"12:30:1", "12:30", 1, false},
		{"ratio:x", "ratio:x", defaultWordWeight, false},
		{"loud:9", "", 0, true},
		{":3", "", 0, true},
	}
	for _, tt := range tests {
		e, err := parseWord(tt.in, "en")
		if (err != nil) != tt.wantErr {
			t.Errorf("parseWord(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		if e.Text != tt.wantText || e.Weight != tt.wantWeight || e.Lang != "en" {
			t.Errorf("parseWord(%q) = %+v", tt.in, e)
		}
	}
}

func TestTTSCommand(t *testing.T) {
	srv := wstest.NewServer(t, func(p *wstest.Peer) {
		run, ok := p.MustReadCommand(protocol.ActionRunTask)
		if !ok {
			return
		}
		var params protocol.SynthesisParams
		run.Parameters(&params)
		if params.Voice != "longwan" || params.Volume == nil || *params.Volume != 70 {
			t.Errorf("synthesis params = %+v", params)
		}
		p.SendEvent(wstest.Started(run.TaskID))
		for {
			cmd, err := p.ReadCommand()
			if err != nil || cmd.Action == protocol.ActionFinishTask {
				break
			}
			p.SendBinary([]byte("<" + cmd.Text() + ">"))
		}
		p.SendEvent(wstest.Finished(run.TaskID, nil))
		p.ReadUntilClose()
	})

	setup(t, "sk-test")
	t.Setenv(config.EnvWSURL, srv.URL())
	path := filepath.Join(t.TempDir(), "speech.mp3")

	out, err := run(t, "first line\n\nsecond line\n", "tts", "--out", path, "--voice", "longwan", "--volume", "70")
	if err != nil {
		t.Fatalf("tts error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "<first line><second line>" {
		t.Errorf("audio = %q", data)
	}
	if !strings.Contains(out, "wrote 25 bytes") {
		t.Errorf("output = %q", out)
	}
}

func TestASRCommand(t *testing.T) {
	formats := make(chan string, 1)
	srv := wstest.NewServer(t, func(p *wstest.Peer) {
		run, ok := p.MustReadCommand(protocol.ActionRunTask)
		if !ok {
			return
		}
		var params protocol.RecognitionParams
		run.Parameters(&params)
		formats <- params.Format

		p.SendEvent(wstest.Started(run.TaskID))
		if _, ok := p.MustReadCommand(protocol.ActionFinishTask); !ok {
			return
		}
		p.SendEvent(wstest.Result(run.TaskID, 0, 1200, "Good morning.", true))
		p.SendEvent(wstest.Finished(run.TaskID, &protocol.Usage{Duration: protocol.IntPtr(1)}))
		p.ReadUntilClose()
	})

	setup(t, "sk-test")
	t.Setenv(config.EnvWSURL, srv.URL())
	dir := t.TempDir()
	audio := filepath.Join(dir, "greeting.wav")
	os.WriteFile(audio, make([]byte, 5000), 0o644)
	jsonPath := filepath.Join(dir, "greeting.json")

	recording := filepath.Join(dir, "session.jsonl")

	out, err := run(t, "", "asr", "--no-pacing", "--json", jsonPath, "--record", recording, audio)
	if err != nil {
		t.Fatalf("asr error = %v", err)
	}
	if strings.TrimSpace(out) != "Good morning." {
		t.Errorf("transcript = %q", out)
	}
	if got := <-formats; got != "wav" {
		t.Errorf("format = %q, want wav from the file extension", got)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("transcript JSON not written: %v", err)
	}
	var tr transcriptJSON
	if err := json.Unmarshal(data, &tr); err != nil {
		t.Fatalf("invalid transcript JSON: %v", err)
	}
	if tr.Text != "Good morning." || len(tr.Sentences) != 1 || tr.TaskID == "" {
		t.Errorf("transcript JSON = %+v", tr)
	}

	records, err := session.ReadRecording(recording)
	if err != nil {
		t.Fatalf("ReadRecording() error = %v", err)
	}
	var sentBytes int
	for _, r := range records {
		if r.Type == session.RecordSendData {
			sentBytes += r.Bytes
		}
	}
	if sentBytes != 5000 || records[0].Type != session.RecordOpen {
		t.Errorf("recording sent %d bytes in %d records", sentBytes, len(records))
	}
}
