// Package templates renders the review pages of the roster import server.
//
// Components are plain templ.Component values so that handlers can render
// them directly or through templ.Handler.
package templates

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/a-h/templ"
)

// page accumulates HTML and keeps the first write error.
type page struct {
	w   io.Writer
	err error
}

// raw writes trusted markup.
func (p *page) raw(s string) {
	if p.err == nil {
		_, p.err = io.WriteString(p.w, s)
	}
}

// rawf writes trusted markup with escaped text arguments.
func (p *page) rawf(format string, args ...any) {
	for i, a := range args {
		switch v := a.(type) {
		case string:
			args[i] = templ.EscapeString(v)
		case int:
			args[i] = strconv.Itoa(v)
		}
	}
	p.raw(fmt.Sprintf(format, args...))
}

// child renders a nested component.
func (p *page) child(ctx context.Context, c templ.Component) {
	if p.err == nil && c != nil {
		p.err = c.Render(ctx, p.w)
	}
}

// Layout wraps body in the HTML document shell.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w}
		p.rawf(`<!DOCTYPE html><html lang="es"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1">`+
			`<title>%s</title>`, title)
		p.raw(`<style>` + styles + `</style></head><body>`)
		p.raw(`<header><a href="/">Roster imports</a></header><main>`)
		p.child(ctx, body)
		p.raw(`</main></body></html>`)
		return p.err
	})
}

// ErrorAlert renders a user-facing error box.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w}
		p.rawf(`<div class="alert error" role="alert"><strong>%s</strong>`, message)
		if action != "" {
			p.rawf(`<p>%s</p>`, action)
		}
		if code != "" {
			p.rawf(`<small>Code: %s</small>`, code)
		}
		p.raw(`</div>`)
		return p.err
	})
}

const styles = `body{font-family:system-ui,sans-serif;margin:0;color:#1f2933}` +
	`header{background:#243b53;padding:.75rem 1.5rem}header a{color:#fff;text-decoration:none;font-weight:600}` +
	`main{padding:1.5rem;max-width:1100px}table{border-collapse:collapse;width:100%;margin:1rem 0}` +
	`th,td{border:1px solid #d9e2ec;padding:.35rem .5rem;text-align:left;font-size:.9rem}` +
	`th{background:#f0f4f8}.alert{padding:.75rem 1rem;border-radius:4px;margin:1rem 0}` +
	`.error{background:#ffe3e3;border:1px solid #e12d39}.ok{background:#e3f9e5;border:1px solid #3f9142}` +
	`.warn{background:#fffbea;border:1px solid #f0b429}.gap{color:#cf1124;font-weight:600}`

func itoa(i int) string {
	return strconv.Itoa(i)
}
