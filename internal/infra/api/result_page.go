package api

import (
	"html/template"
	"net/http"
	"net/url"

	"coupon-payments/internal/domain/model"
	"coupon-payments/internal/infra/i18n"
	"coupon-payments/internal/usecase"
)

const bounceParam = "_b"

// bounce re-enters the return URL from our own origin once. The session cookie
// is SameSite=Strict, so the browser withholds it on the provider's cross-site
// redirect but sends it on the second, same-site navigation.
func (s *Server) bounce(w http.ResponseWriter, r *http.Request) bool {
	if s.sessions.Present(r) || r.Form.Get(bounceParam) != "" {
		return false
	}
	q := url.Values{}
	for k, vs := range r.Form {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set(bounceParam, "1")
	target := r.URL.Path + "?" + q.Encode()

	w.Header().Set("Refresh", "0; url="+target)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = bouncePage.Execute(w, target)
	return true
}

var bouncePage = template.Must(template.New("bounce").Parse(`<!doctype html>
<html><head><meta charset="utf-8" /><title>…</title></head>
<body><a href="{{.}}">Continue</a></body></html>`))

type resultLink struct {
	Label string
	Href  string
}

type resultView struct {
	Lang    string
	State   string // ok | pending | fail
	Title   string
	Message string
	Retry   []resultLink
	Back    resultLink
}

func (s *Server) renderResult(w http.ResponseWriter, tr *i18n.Translator, o *usecase.Outcome) {
	v := resultView{
		Lang: tr.Lang(),
		Back: resultLink{Label: tr.T("result.back"), Href: s.opts.PublicOrigin + s.opts.PlansPath},
	}
	switch {
	case o.Status == model.StatusSuccess:
		v.State, v.Title, v.Message = "ok", tr.T("result.success_title"), tr.T("result.success_body")
		if o.PlanID == "" {
			v.Message = tr.T("result.registered_body")
		}
	case o.Status.IsTerminal() || !o.Status.Valid():
		v.State, v.Title = "fail", tr.T("result.failed_title")
		v.Message = o.Message
		if v.Message == "" {
			v.Message = tr.Code(o.Code)
		}
		for _, k := range o.Alternatives {
			q := url.Values{"provider": {string(k)}}
			if o.PlanID != "" {
				q.Set("planId", o.PlanID)
			}
			v.Retry = append(v.Retry, resultLink{
				Label: tr.T("result.retry", tr.T("provider."+string(k))),
				Href:  s.opts.PublicOrigin + s.opts.PlansPath + "?" + q.Encode(),
			})
		}
	default:
		v.State, v.Title, v.Message = "pending", tr.T("result.pending_title"), tr.T("result.pending_body")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = resultPage.Execute(w, v)
}

var resultPage = template.Must(template.New("result").Parse(`<!doctype html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
{{if eq .State "pending"}}<meta http-equiv="refresh" content="5" />{{end}}
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,Arial,sans-serif;margin:2rem;}
.card{max-width:560px;border:1px solid #ddd;border-radius:12px;padding:24px;}
.ok{color:#057a55} .fail{color:#b00020} .pending{color:#8a6d00}
.btn{display:inline-block;margin-top:16px;margin-right:8px;padding:10px 16px;border-radius:8px;border:1px solid #888;text-decoration:none}
</style>
</head>
<body>
<div class="card" data-state="{{.State}}">
  <h2 class="{{.State}}">{{.Title}}</h2>
  <p>{{.Message}}</p>
  {{range .Retry}}<a class="btn retry" href="{{.Href}}">{{.Label}}</a>
  {{end}}
  <a class="btn" href="{{.Back.Href}}">{{.Back.Label}}</a>
</div>
</body>
</html>`))
