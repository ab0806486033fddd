// Package templates renders the HTML pages. The components live in the .templ
// files; the _templ.go files are generated from them.
package templates

//go:generate templ generate

import (
	"net/url"
	"strconv"
	"time"

	"github.com/a-h/templ"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string // success, error, info
	Message  string
}

// Page carries what every page needs.
type Page struct {
	CSRF     string
	Flashes  []Flash
	UserName string
}

// RegisterForm holds submitted values to refill after an error. Passwords are
// never echoed back.
type RegisterForm struct {
	Name  string
	Email string
}

// FileRow is one file in the dashboard table.
type FileRow struct {
	ID        string
	Name      string
	Size      int64
	Icon      string
	CreatedAt time.Time
}

const stylesheet = `body{font-family:system-ui,sans-serif;margin:0;color:#1d2430;background:#f6f7f9}
.nav{display:flex;gap:1rem;align-items:center;padding:.75rem 1.5rem;background:#1d2430}
.nav a,.nav button{color:#fff;text-decoration:none;background:none;border:0;cursor:pointer;font:inherit}
.brand{font-weight:700;margin-right:auto}main{max-width:60rem;margin:2rem auto;padding:0 1rem}
.card{background:#fff;border-radius:8px;padding:1.25rem;display:grid;gap:.75rem;max-width:28rem}
label{display:grid;gap:.25rem}input{padding:.5rem;border:1px solid #c8ced8;border-radius:4px}
.flash{padding:.75rem 1rem;border-radius:6px;margin-bottom:1rem}.flash[data-kind=error]{background:#fde8e8}
.flash[data-kind=success]{background:#e6f6ea}.flash[data-kind=info]{background:#e8f0fd}.inline{display:inline}
.files{width:100%;border-collapse:collapse;background:#fff}.files td,.files th{padding:.5rem;text-align:left}
.stats{display:flex;gap:2rem;margin-bottom:1rem}.danger{color:#b42318}`

// styles inlines the stylesheet. The CSP allows inline styles but no
// external ones.
func styles() templ.Component {
	return templ.Raw("<style>" + stylesheet + "</style>")
}

func minutes(d time.Duration) string {
	return strconv.Itoa(int(d.Minutes()))
}

func twoDecimals(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// fileURL builds /files/{id}/{action}.
func fileURL(id, action string) string {
	return "/files/" + url.PathEscape(id) + "/" + action
}

// HumanSize formats bytes as B, KB or MB.
func HumanSize(n int64) string {
	switch {
	case n < 1024:
		return strconv.FormatInt(n, 10) + " B"
	case n < 1024*1024:
		return strconv.FormatFloat(float64(n)/1024, 'f', 1, 64) + " KB"
	default:
		return strconv.FormatFloat(float64(n)/(1024*1024), 'f', 2, 64) + " MB"
	}
}
