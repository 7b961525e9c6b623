package handlers

import (
	"github.com/valyala/fasthttp"

	"starlore/internal/config"
	appmw "starlore/internal/http/middleware"
)

func LoginForm(cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !cfg.DashboardProtected() {
			ctx.Redirect("/analytics", fasthttp.StatusSeeOther)
			return
		}
		renderPage(ctx, "login.html", nil)
	}
}

// LoginSubmit checks the admin credentials and starts a dashboard session.
func LoginSubmit(creds *appmw.Credentials, sessions *appmw.Sessions) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		username := string(ctx.PostArgs().Peek("username"))
		password := string(ctx.PostArgs().Peek("password"))

		if !creds.Verify(username, password) {
			renderLoginError(ctx, "Kullanıcı adı veya şifre hatalı.")
			return
		}

		var c fasthttp.Cookie
		c.SetKey(appmw.SessionCookie)
		c.SetValue(sessions.Create(username))
		c.SetPath("/")
		c.SetHTTPOnly(true)
		c.SetSameSite(fasthttp.CookieSameSiteLaxMode)
		c.SetMaxAge(int(appmw.SessionTTL.Seconds()))
		ctx.Response.Header.SetCookie(&c)

		ctx.Redirect("/analytics", fasthttp.StatusSeeOther)
	}
}

func renderLoginError(ctx *fasthttp.RequestCtx, errMsg string) {
	renderPage(ctx, "login.html", map[string]any{"Error": errMsg})
	if ctx.Response.StatusCode() == fasthttp.StatusOK {
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	}
}

// Logout revokes the session and clears its cookie.
func Logout(sessions *appmw.Sessions) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if token := ctx.Request.Header.Cookie(appmw.SessionCookie); len(token) > 0 {
			sessions.Revoke(string(token))
		}

		var c fasthttp.Cookie
		c.SetKey(appmw.SessionCookie)
		c.SetValue("")
		c.SetPath("/")
		c.SetMaxAge(-1)
		ctx.Response.Header.SetCookie(&c)
		ctx.Redirect("/login", fasthttp.StatusSeeOther)
	}
}
