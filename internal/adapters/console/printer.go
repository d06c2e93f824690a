package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	statusDone   = "Done."
	statusFailed = "Failed."

	defaultWidth    = 80
	spinnerInterval = 420 * time.Millisecond
)

var spinnerFrames = []string{"◣", "◤", "◥", "◢"}

// Printer emite el progreso por etapas con un spinner periódico. El spinner
// corre en su propia goroutine con un ticker y se arranca/cancela en cada
// frontera de etapa; nunca bloquea el flujo principal.
type Printer struct {
	mu       sync.Mutex
	out      io.Writer
	width    int
	frameIdx int
	line     string
	stop     chan struct{}
	done     chan struct{}
}

// New crea un Printer sobre el writer indicado.
func New(out io.Writer) *Printer {
	return &Printer{out: out, width: defaultWidth}
}

// Println escribe una línea terminada, cancelando antes el spinner activo.
func (p *Printer) Println(txt string) {
	p.stopSpinner()
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, txt)
}

// Stage anuncia el comienzo de una etapa y arranca el spinner.
func (p *Printer) Stage(txt string) {
	p.stopSpinner()

	p.mu.Lock()
	p.line = txt
	stop := make(chan struct{})
	done := make(chan struct{})
	p.stop = stop
	p.done = done
	fmt.Fprintf(p.out, "\r%s", p.formatLine(txt, spinnerFrames[p.frameIdx]))
	p.mu.Unlock()

	go p.spin(stop, done)
}

// Success cierra la etapa en curso con el marcador de éxito.
func (p *Printer) Success() {
	p.finish(statusDone)
}

// Failure cierra la etapa en curso con el marcador de fallo.
func (p *Printer) Failure() {
	p.finish(statusFailed)
}

func (p *Printer) finish(status string) {
	p.stopSpinner()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.line == "" {
		return
	}
	fmt.Fprintf(p.out, "\r%s\n", p.formatLine(p.line, status))
	p.line = ""
}

func (p *Printer) spin(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			p.frameIdx = (p.frameIdx + 1) % len(spinnerFrames)
			fmt.Fprintf(p.out, "\r%s", p.formatLine(p.line, spinnerFrames[p.frameIdx]))
			p.mu.Unlock()
		case <-stop:
			return
		}
	}
}

func (p *Printer) stopSpinner() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// formatLine ajusta el texto al ancho de consola dejando el estado alineado a
// la derecha.
func (p *Printer) formatLine(txt, status string) string {
	gap := p.width - len([]rune(txt)) - len([]rune(status))
	if gap < 1 {
		keep := p.width - len([]rune(status)) - 4
		if keep < 0 {
			keep = 0
		}
		runes := []rune(txt)
		if keep > len(runes) {
			keep = len(runes)
		}
		return string(runes[:keep]) + "... " + status
	}
	return txt + strings.Repeat(" ", gap) + status
}
