package ctx

import (
	"github.com/valyala/fasthttp"
)

const (
	UserKey         = "user"
	SessionTokenKey = "sessionToken"
)

// SetUser records the signed-in dashboard user.
func SetUser(ctx *fasthttp.RequestCtx, username string) {
	ctx.SetUserValue(UserKey, username)
}

func UserFromCtx(ctx *fasthttp.RequestCtx) (string, bool) {
	v := ctx.UserValue(UserKey)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func SetSessionToken(ctx *fasthttp.RequestCtx, token string) {
	ctx.SetUserValue(SessionTokenKey, token)
}

func SessionTokenFromCtx(ctx *fasthttp.RequestCtx) (string, bool) {
	v := ctx.UserValue(SessionTokenKey)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
