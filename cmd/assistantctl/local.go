package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-assistant/internal/config"
	"github.com/teslashibe/go-assistant/internal/httpc"
	"github.com/teslashibe/go-assistant/internal/log"
	"github.com/teslashibe/go-assistant/pkg/audio"
	"github.com/teslashibe/go-assistant/pkg/audioio"
	"github.com/teslashibe/go-assistant/pkg/inference"
	"github.com/teslashibe/go-assistant/pkg/tts"
	"github.com/teslashibe/go-assistant/pkg/web"
)

func parseRoute(s string) (audio.Route, error) {
	switch strings.ToLower(s) {
	case "", "bluetooth", "bt":
		return audio.RouteBluetooth, nil
	case "local":
		return audio.RouteLocal, nil
	}
	return 0, fmt.Errorf("unknown route %q", s)
}

// newPipeline builds the same speech chain the daemon uses.
func newPipeline(s config.Settings, source audioio.Source) (*audio.Pipeline, error) {
	espeak := tts.NewEspeak(tts.WithLanguage("fr"), tts.WithLogger(log.L()))
	providers := []tts.Provider{}
	if config.ValidateAPIKey(s.OpenAI.APIKey) == nil {
		client, err := httpc.ForProxy(config.SocksProxy(), httpc.DefaultTimeout)
		if err != nil {
			return nil, err
		}
		o, err := tts.NewOpenAI(tts.WithAPIKey(s.OpenAI.APIKey), tts.WithHTTPClient(client), tts.WithLogger(log.L()))
		if err != nil {
			return nil, err
		}
		providers = append(providers, o)
	}
	chain, err := tts.NewChainWithLogger(log.L(), append(providers, espeak)...)
	if err != nil {
		return nil, err
	}
	return audio.New(audio.Config{TempDir: config.TempDir(config.DefaultTempDir)}, source, chain,
		audio.WithFastSpeaker(espeak),
		audio.WithLogger(log.L()),
	)
}

func speakCmd(g *globals) *cobra.Command {
	var routeName string
	var remote bool
	cmd := &cobra.Command{
		Use:   "speak <text>",
		Short: "Speak text on the speaker",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			route, err := parseRoute(routeName)
			if err != nil {
				return err
			}
			if remote {
				return g.call(cmd.Context(), http.MethodPost, "/api/speak", web.SpeakRequest{Text: text, Route: route.String()})
			}

			_, s := g.loadSettings()
			p, err := newPipeline(s, nil)
			if err != nil {
				return err
			}
			if !p.SynthesizeAndPlay(cmd.Context(), text, route) {
				return errors.New("nothing was played")
			}
			fmt.Printf("Spoke %d characters on %s\n", len(text), route)
			return nil
		},
	}
	cmd.Flags().StringVarP(&routeName, "route", "r", "bluetooth", "Output: bluetooth or local")
	cmd.Flags().BoolVar(&remote, "remote", false, "Ask the running daemon to speak instead")
	return cmd
}

func recordCmd(g *globals) *cobra.Command {
	var (
		duration   time.Duration
		device     string
		transcribe bool
		ask        bool
		keep       bool
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the microphone, optionally transcribe and answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, s := g.loadSettings()

			ac := audioio.DefaultConfig()
			ac.Device = device
			if s.Assistant.SampleRate > 0 {
				ac.SampleRate = s.Assistant.SampleRate
			}
			source, err := audioio.NewSource(ac, log.L())
			if err != nil {
				return err
			}
			p, err := newPipeline(s, source)
			if err != nil {
				source.Close()
				return err
			}
			defer p.Close()

			fmt.Printf("Recording %s from %s...\n", duration, source.Name())
			path, err := p.Record(ctx, duration)
			if err != nil {
				return err
			}
			if !keep {
				defer p.CleanupFile(path)
			}
			fmt.Println("Saved", path)

			if !transcribe && !ask {
				return nil
			}
			if err := config.ValidateAPIKey(s.OpenAI.APIKey); err != nil {
				return err
			}
			client, err := httpc.ForProxy(config.SocksProxy(), inference.DefaultTimeout)
			if err != nil {
				return err
			}
			c, err := inference.NewClient(
				inference.WithAPIKey(s.OpenAI.APIKey),
				inference.WithModel(s.OpenAI.Model),
				inference.WithWhisperModel(s.OpenAI.WhisperModel),
				inference.WithMaxTokens(s.OpenAI.MaxTokens),
				inference.WithTemperature(s.OpenAI.Temperature),
				inference.WithHTTPClient(client),
				inference.WithLogger(log.L()),
			)
			if err != nil {
				return err
			}

			upload, err := p.Convert(ctx, path, audio.Format(c.Format()))
			if err != nil {
				return err
			}
			if upload != path {
				defer p.CleanupFile(upload)
			}
			tr, err := c.Transcribe(ctx, &inference.TranscribeRequest{Path: upload})
			if err != nil {
				return err
			}
			fmt.Printf("Transcript: %s\n", tr.Text)
			if !ask {
				return nil
			}

			comp, err := c.Generate(ctx, &inference.GenerateRequest{Prompt: tr.Text})
			if err != nil {
				return err
			}
			fmt.Printf("Response:   %s\n", comp.Text())
			p.SynthesizeAndPlay(ctx, comp.Text(), audio.RouteBluetooth)
			return nil
		},
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 5*time.Second, "Recording length")
	cmd.Flags().StringVarP(&device, "input", "i", "", "Input device name substring")
	cmd.Flags().BoolVarP(&transcribe, "transcribe", "t", false, "Send the recording to Whisper")
	cmd.Flags().BoolVar(&ask, "ask", false, "Transcribe, generate an answer and speak it")
	cmd.Flags().BoolVarP(&keep, "keep", "k", false, "Keep the recording")
	return cmd
}
