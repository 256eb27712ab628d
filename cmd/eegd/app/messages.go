package app

import (
	"time"

	"github.com/roman-kulish/eegstream/internal/consumer"
	"github.com/roman-kulish/eegstream/internal/control"
	"github.com/roman-kulish/eegstream/internal/spectral"
	"github.com/roman-kulish/eegstream/internal/telemetry"
)

// Message types exchanged on /ws
const (
	typeSpectrum    = "spectrum"
	typeSpectrogram = "spectrogram"
	typeScalogram   = "scalogram"
	typeStatus      = "status"
	typeConfig      = "config"
	typeCommand     = "command"
	typeAck         = "ack"
	typePause       = "pause"
	typeMaxHold     = "maxhold"
	typeConsole     = "console"
	typeEvent       = "event"
	typeError       = "error"
)

// clientMessage is any message a consumer sends. Fields are read according to Type.
type clientMessage struct {
	Type string `json:"type"`

	// config
	SampleRate         *int     `json:"sampleRate,omitempty"`
	WindowSeconds      *int     `json:"windowSeconds,omitempty"`
	ChannelCount       *int     `json:"channelCount,omitempty"`
	DCBlock            *bool    `json:"dcBlock,omitempty"`
	DCCutoff           *float64 `json:"dcCutoff,omitempty"`
	Mains              *bool    `json:"mains,omitempty"`
	MainsFreq          *int     `json:"mainsFreq,omitempty"`
	Harmonic           *bool    `json:"harmonic,omitempty"`
	Equalizer          *bool    `json:"equalizer,omitempty"`
	FFTSize            *int     `json:"fftSize,omitempty"`
	Window             *string  `json:"window,omitempty"`
	WindowParam        *float64 `json:"windowParam,omitempty"`
	SpectrogramWindow  *int     `json:"spectrogramWindow,omitempty"`
	SpectrogramOverlap *float64 `json:"spectrogramOverlap,omitempty"`

	// command
	Text string `json:"text,omitempty"`

	// pause
	Paused *bool `json:"paused,omitempty"`

	// maxhold, also accepted on config
	Enabled *bool `json:"enabled,omitempty"`
	Reset   bool  `json:"reset,omitempty"`

	// spectrogram, scalogram
	Channel *int `json:"channel,omitempty"`
}

func (m *clientMessage) update() (consumer.Update, error) {
	u := consumer.Update{
		SampleRate:         m.SampleRate,
		WindowSeconds:      m.WindowSeconds,
		ChannelCount:       m.ChannelCount,
		DCBlock:            m.DCBlock,
		DCCutoff:           m.DCCutoff,
		Mains:              m.Mains,
		MainsFreq:          m.MainsFreq,
		Harmonic:           m.Harmonic,
		Equalizer:          m.Equalizer,
		FFTSize:            m.FFTSize,
		WindowParam:        m.WindowParam,
		SpectrogramWindow:  m.SpectrogramWindow,
		SpectrogramOverlap: m.SpectrogramOverlap,
		MaxHold:            m.Enabled,
	}
	if m.Window != nil {
		kind, err := spectral.ParseWindowKind(*m.Window)
		if err != nil {
			return consumer.Update{}, err
		}
		u.Window = &kind
	}
	return u, nil
}

type spectrumMessage struct {
	Type        string    `json:"type"`
	Channel     int       `json:"channel"`
	Written     uint64    `json:"written"`
	BinWidth    float64   `json:"binWidth"`
	Frequencies []float64 `json:"frequencies"`
	MagnitudeDB []float64 `json:"magnitudeDb"`
	MaxHold     []float64 `json:"maxHold,omitempty"`
}

type spectrogramMessage struct {
	Type        string      `json:"type"`
	Channel     int         `json:"channel"`
	Frequencies []float64   `json:"frequencies"`
	Times       []float64   `json:"times"`
	PowerDB     [][]float64 `json:"powerDb"`
}

type statusMessage struct {
	Type           string               `json:"type"`
	Telemetry      *telemetry.Telemetry `json:"telemetry"`
	Connected      bool                 `json:"connected"`
	Board          string               `json:"board,omitempty"`
	Paused         bool                 `json:"paused"`
	DroppedAcks    uint64               `json:"droppedAcks"`
	LastAckDropped bool                 `json:"lastAckDropped"`
	Config         configView           `json:"config"`
}

type configView struct {
	SampleRate         int     `json:"sampleRate"`
	WindowSeconds      int     `json:"windowSeconds"`
	ChannelCount       int     `json:"channelCount"`
	DCBlock            bool    `json:"dcBlock"`
	DCCutoff           float64 `json:"dcCutoff"`
	Mains              bool    `json:"mains"`
	MainsFreq          int     `json:"mainsFreq"`
	Harmonic           bool    `json:"harmonic"`
	Equalizer          bool    `json:"equalizer"`
	FFTSize            int     `json:"fftSize"`
	Window             string  `json:"window"`
	WindowParam        float64 `json:"windowParam"`
	SpectrogramWindow  int     `json:"spectrogramWindow"`
	SpectrogramOverlap float64 `json:"spectrogramOverlap"`
	MaxHold            bool    `json:"maxHold"`
}

func newConfigView(c consumer.Config) configView {
	return configView{
		SampleRate:         c.Acquisition.SampleRate,
		WindowSeconds:      c.Acquisition.WindowSeconds,
		ChannelCount:       c.Acquisition.ChannelCount,
		DCBlock:            c.Filter.DCBlock,
		DCCutoff:           c.Filter.DCCutoff,
		Mains:              c.Filter.Mains,
		MainsFreq:          c.Filter.MainsFreq,
		Harmonic:           c.Filter.Harmonic,
		Equalizer:          c.Filter.Equalizer,
		FFTSize:            c.Analysis.FFTSize,
		Window:             string(c.Analysis.Window),
		WindowParam:        c.Analysis.WindowParam,
		SpectrogramWindow:  c.Analysis.SpectrogramWindow,
		SpectrogramOverlap: c.Analysis.SpectrogramOverlap,
		MaxHold:            c.Analysis.MaxHold,
	}
}

type ackMessage struct {
	Type         string `json:"type"`
	Command      string `json:"command"`
	Acknowledged bool   `json:"acknowledged"`
	OK           bool   `json:"ok"` // false when the board replied with an error
	Reply        string `json:"reply,omitempty"`
	Error        string `json:"error,omitempty"`
}

type consoleMessage struct {
	Type      string    `json:"type"`
	Time      time.Time `json:"time"`
	Direction string    `json:"direction"`
	Text      string    `json:"text"`
}

func newConsoleMessage(m control.Message) consoleMessage {
	return consoleMessage{
		Type:      typeConsole,
		Time:      m.Time,
		Direction: m.Direction.String(),
		Text:      m.Text,
	}
}

type eventMessage struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Kind string    `json:"kind"`
	Addr string    `json:"addr,omitempty"`
	Prev string    `json:"prev,omitempty"`
	Text string    `json:"text,omitempty"`
}

func newEventMessage(e control.Event) eventMessage {
	m := eventMessage{
		Type: typeEvent,
		Time: e.Time,
		Kind: e.Kind.String(),
		Text: e.Text,
	}
	if e.Addr != nil {
		m.Addr = e.Addr.String()
	}
	if e.Prev != nil {
		m.Prev = e.Prev.String()
	}
	return m
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func newErrorMessage(err error) errorMessage {
	return errorMessage{Type: typeError, Error: err.Error()}
}
