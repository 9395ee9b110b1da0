package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

func debugEnabled() bool {
	return os.Getenv("HIVEBUILD_DEBUG") != ""
}

// ConsoleWriter renders zerolog's JSON events as coloured, human readable lines
type ConsoleWriter struct {
	out      io.Writer
	colorize colorstring.Colorize
	buffer   strings.Builder
	lock     sync.Mutex
}

// NewConsoleWriter creates a writer for out. Colours are only used if out is a terminal.
func NewConsoleWriter(out *os.File) *ConsoleWriter {
	return &ConsoleWriter{
		out: out,
		colorize: colorstring.Colorize{
			Colors:  colorstring.DefaultColors,
			Disable: !term.IsTerminal(int(out.Fd())),
			Reset:   true,
		},
	}
}

func (w *ConsoleWriter) Write(p []byte) (n int, err error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	var evt map[string]interface{}
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	err = d.Decode(&evt)
	if err != nil {
		return n, eris.Wrapf(err, "cannot decode event: %s", p)
	}

	w.buffer.Reset()
	switch evt["level"] {
	case "fatal", "error":
		w.buffer.WriteString("[red]")
	case "warn":
		w.buffer.WriteString("[yellow]")
	case "debug", "trace":
		w.buffer.WriteString("[blue]")
	default:
		if evt["command"] == true {
			w.buffer.WriteString("[dark_gray]")
		} else {
			w.buffer.WriteString("[green]")
		}
	}

	if task, ok := evt["task"].(string); ok {
		w.buffer.WriteString(task + ": ")
	}

	if evt["level"] == "error" {
		w.buffer.WriteString("Error: ")
	}

	msg, _ := evt["message"].(string)
	if evt["command"] == true {
		msg = "$ " + msg
	}
	w.buffer.WriteString(msg)

	if errorDetails, ok := evt["error"].(string); ok {
		w.buffer.WriteString("\n")
		w.buffer.WriteString(errorDetails)
	}

	if debugEnabled() {
		names := make([]string, 0, len(evt))
		for name := range evt {
			names = append(names, name)
		}
		sort.Strings(names)

		w.buffer.WriteString("\n")
		for _, name := range names {
			w.buffer.WriteString(fmt.Sprintf("  %s: %+v\n", name, evt[name]))
		}
	}

	w.buffer.WriteString("[reset]\n")
	_, err = fmt.Fprint(w.out, w.colorize.Color(w.buffer.String()))
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func init() {
	zerolog.ErrorMarshalFunc = func(err error) interface{} {
		return eris.ToString(err, debugEnabled())
	}
}
