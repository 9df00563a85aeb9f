package tts

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inercia/inferstream/internal/client"
	"github.com/inercia/inferstream/internal/protocol"
	"github.com/inercia/inferstream/internal/wstest"
)

// synthesisServer echoes each text segment back as one audio frame and
// reports the texts it received.
func synthesisServer(t *testing.T, texts chan<- []string) *wstest.Server {
	return wstest.NewServer(t, func(p *wstest.Peer) {
		run, ok := p.MustReadCommand(protocol.ActionRunTask)
		if !ok {
			return
		}
		var params protocol.SynthesisParams
		if err := run.Parameters(&params); err != nil {
			t.Errorf("Parameters() error = %v", err)
		}
		if params.Voice != DefaultVoice || params.TextType != protocol.TextTypePlain {
			t.Errorf("parameters = %+v", params)
		}

		p.SendEvent(wstest.Started(run.TaskID))
		var got []string
		for {
			cmd, err := p.ReadCommand()
			if err != nil {
				t.Errorf("ReadCommand() error = %v", err)
				return
			}
			if cmd.Action == protocol.ActionFinishTask {
				break
			}
			got = append(got, cmd.Text())
			p.SendBinary([]byte("audio:" + cmd.Text()))
		}
		p.SendEvent(wstest.Finished(run.TaskID, &protocol.Usage{Characters: protocol.IntPtr(11)}))
		p.ReadUntilClose()
		texts <- got
	})
}

func TestSynthesize(t *testing.T) {
	texts := make(chan []string, 1)
	srv := synthesisServer(t, texts)
	c := client.New(client.Config{APIKey: "k", WebsocketURL: srv.URL()})

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := Synthesize(ctx, c, []string{"hello", "", "world"}, &out, Options{})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if out.String() != "audio:helloaudio:world" {
		t.Errorf("audio = %q", out.String())
	}
	if res.Frames != 2 || res.Bytes != int64(out.Len()) {
		t.Errorf("Result = %+v", res)
	}
	if res.Usage == nil || res.Usage.Characters == nil || *res.Usage.Characters != 11 {
		t.Errorf("Usage = %+v", res.Usage)
	}
	got := <-texts
	if len(got) != 2 || got[0] != "hello" || got[1] != "world" {
		t.Errorf("server texts = %v", got)
	}
}

func TestSynthesize_NoText(t *testing.T) {
	_, err := Synthesize(context.Background(), nil, []string{"", ""}, &bytes.Buffer{}, Options{})
	if !errors.Is(err, ErrNoText) {
		t.Errorf("Synthesize() error = %v, want ErrNoText", err)
	}
}

func TestSynthesize_TaskFailed(t *testing.T) {
	srv := wstest.NewServer(t, func(p *wstest.Peer) {
		run, ok := p.MustReadCommand(protocol.ActionRunTask)
		if !ok {
			return
		}
		p.SendEvent(wstest.Failed(run.TaskID, "InvalidVoice", "unknown voice"))
		p.ReadUntilClose()
	})
	c := client.New(client.Config{APIKey: "k", WebsocketURL: srv.URL()})

	_, err := Synthesize(context.Background(), c, []string{"hi"}, &bytes.Buffer{}, Options{})
	var te *protocol.TaskError
	if !errors.As(err, &te) || te.Code != "InvalidVoice" {
		t.Errorf("Synthesize() error = %v, want TaskError InvalidVoice", err)
	}
}

type brokenWriter struct{}

func (brokenWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }

func TestSynthesize_WriteFailureCloses(t *testing.T) {
	srv := wstest.NewServer(t, func(p *wstest.Peer) {
		run, ok := p.MustReadCommand(protocol.ActionRunTask)
		if !ok {
			return
		}
		p.SendBinary([]byte("early audio"))
		p.ReadUntilClose()
		_ = run
	})
	c := client.New(client.Config{APIKey: "k", WebsocketURL: srv.URL()})

	res, err := Synthesize(context.Background(), c, []string{"hi"}, brokenWriter{}, Options{})
	if err == nil || errors.Is(err, ErrIncomplete) {
		t.Fatalf("Synthesize() error = %v, want write failure", err)
	}
	if res.Frames != 1 || res.Bytes != 0 {
		t.Errorf("Result = %+v", res)
	}
}

func TestNewSynthesizer_Defaults(t *testing.T) {
	s := NewSynthesizer([]string{"x"}, &bytes.Buffer{}, Options{Params: protocol.SynthesisParams{Voice: "custom"}})
	if s.opts.Model != DefaultModel || s.opts.Params.Voice != "custom" || s.opts.Params.Format != DefaultFormat || s.opts.Params.SampleRate != DefaultSampleRate {
		t.Errorf("defaults = %+v", s.opts)
	}
}
