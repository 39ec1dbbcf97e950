package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/srg/blesense/pkg/events"
)

// printer serializes output from the command goroutine and the event bus.
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	json bool

	ok, warn, value *color.Color
}

func newPrinter(w io.Writer, asJSON bool) *printer {
	p := &printer{
		w:     w,
		json:  asJSON,
		ok:    color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		value: color.New(color.FgCyan, color.Bold),
	}
	if f, isFile := w.(*os.File); !isFile || !term.IsTerminal(int(f.Fd())) || asJSON {
		for _, c := range []*color.Color{p.ok, p.warn, p.value} {
			c.DisableColor()
		}
	}
	return p
}

// Event prints one bus event, as a JSON line in --json mode.
func (p *printer) Event(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		p.writeJSON(eventRecord(e))
		return
	}

	switch ev := e.(type) {
	case events.TemperatureChanged:
		fmt.Fprintf(p.w, "temperature: %s\n", p.value.Sprintf("%.2f °C", ev.Temperature))
	case events.HumidityChanged:
		fmt.Fprintf(p.w, "humidity:    %s\n", p.value.Sprintf("%.2f %%", ev.Humidity))
	case events.HeartRateChanged:
		fmt.Fprintf(p.w, "heart rate:  %s\n", p.value.Sprintf("%d bpm", ev.BPM))
	case events.ConnectionStatusChanged:
		if ev.IsConnected {
			p.ok.Fprintln(p.w, "connected")
		} else {
			p.warn.Fprintln(p.w, "disconnected")
		}
	}
}

// Line prints a status line. It is suppressed in --json mode.
func (p *printer) Line(format string, args ...any) {
	if p.json {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Value prints v as indented JSON, or through text in text mode.
func (p *printer) Value(v any, text func(w io.Writer)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.json {
		p.writeJSON(v)
		return
	}
	text(p.w)
}

func (p *printer) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(p.w, "{\"error\":%q}\n", err.Error())
		return
	}
	fmt.Fprintln(p.w, string(data))
}

func eventRecord(e events.Event) map[string]any {
	rec := map[string]any{"type": string(e.Type())}
	switch ev := e.(type) {
	case events.TemperatureChanged:
		rec["temperature"] = ev.Temperature
	case events.HumidityChanged:
		rec["humidity"] = ev.Humidity
	case events.HeartRateChanged:
		rec["bpm"] = ev.BPM
	case events.ConnectionStatusChanged:
		rec["is_connected"] = ev.IsConnected
	}
	return rec
}
