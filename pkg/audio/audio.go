// Package audio records the user's request and plays spoken replies.
//
// A Pipeline captures microphone audio from an audioio.Source into a WAV
// file, converts it to the upload format the transcriber wants and speaks
// text back either through the Bluetooth speaker (the default sink) or the
// local audio device.
//
// Example usage:
//
//	p, _ := audio.New(audio.DefaultConfig(), src, chain,
//	    audio.WithFastSpeaker(tts.NewEspeak()),
//	)
//	path, _ := p.Record(ctx, 10*time.Second)
//	defer p.CleanupFile(path)
//	p.SynthesizeAndPlay(ctx, "Bonjour", audio.RouteBluetooth)
package audio

import (
	"context"
	"errors"

	"github.com/teslashibe/go-assistant/pkg/audioio"
	"github.com/teslashibe/go-assistant/pkg/tts"
)

// Route selects the output device for speech.
type Route int

const (
	// RouteBluetooth plays on the default sink, which is the speaker once bound.
	RouteBluetooth Route = iota
	// RouteLocal plays on the local audio device.
	RouteLocal
)

// String returns the route name.
func (r Route) String() string {
	switch r {
	case RouteBluetooth:
		return "bluetooth"
	case RouteLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Format is an audio container format.
type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
)

// Errors returned by the pipeline.
var (
	ErrNoInputDevice = audioio.ErrNoInputDevice
	ErrRecordFailed  = errors.New("audio: recording failed")
	ErrConvertFailed = errors.New("audio: conversion failed")
	ErrNoPlayer      = errors.New("audio: no player for route")
)

// Synthesizer turns text into an encoded audio file. *tts.Chain and every
// tts.Provider satisfy it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*tts.AudioResult, error)
}

// FastSpeaker speaks text straight to the default sink without an
// intermediate file. *tts.Espeak satisfies it.
type FastSpeaker interface {
	Speak(ctx context.Context, text string) error
}

// Player plays an audio file and blocks until playback completes.
type Player interface {
	Play(ctx context.Context, path string) error
}
