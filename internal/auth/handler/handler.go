package handler

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"

	"github.com/gotosleep/authlogic-openid/internal/account"
	"github.com/gotosleep/authlogic-openid/internal/auth"
	"github.com/gotosleep/authlogic-openid/internal/auth/attempt"
	"github.com/gotosleep/authlogic-openid/internal/auth/provider"
	"github.com/gotosleep/authlogic-openid/internal/logger"
	"github.com/gotosleep/authlogic-openid/internal/middleware"
	"github.com/gotosleep/authlogic-openid/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
)

// formPost hands the browser over to the provider when the redirect must
// be a POST.
var formPost = template.Must(template.New("form_post").Parse(`<!DOCTYPE html>
<html><body onload="document.forms[0].submit()">
<form method="post" action="{{.URL}}">
{{range $name, $values := .Fields}}{{range $values}}<input type="hidden" name="{{$name}}" value="{{.}}">
{{end}}{{end}}<noscript><button type="submit">Continue</button></noscript>
</form>
</body></html>`))

// loginForm is the credentials payload of POST /session.
type loginForm struct {
	Identifier string `form:"openid_identifier" json:"openid_identifier"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

type Handler struct {
	validator *attempt.Validator
	accounts  account.Store
	sessions  session.Store
	lifetimes session.Lifetimes
	cookie    session.CookieOptions
}

func NewHandler(
	validator *attempt.Validator,
	accounts account.Store,
	sessions session.Store,
	lifetimes session.Lifetimes,
	cookie session.CookieOptions,
) *Handler {
	return &Handler{
		validator: validator,
		accounts:  accounts,
		sessions:  sessions,
		lifetimes: lifetimes,
		cookie:    cookie,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/session", h.login)
	r.GET("/session/return", h.providerReturn)
	r.POST("/session/return", h.providerReturn)
	r.POST("/session/logout", h.Logout)
}

// login assigns credentials from the form and starts verification.
func (h *Handler) login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid login form"})
		return
	}

	ctx := c.Request.Context()
	a := attempt.New()
	h.validator.SetCredentials(ctx, a, attempt.Credentials{
		Identifier: form.Identifier,
		RememberMe: form.RememberMe,
	})
	h.validator.Validate(ctx, a, attempt.Request{})
	h.finish(c, a)
}

// providerReturn handles the provider sending the user back to the return
// target, as a query string or a form post.
func (h *Handler) providerReturn(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid provider response"})
		return
	}

	query := c.Request.URL.Query()
	req := attempt.Request{
		ForSession: query.Get(attempt.ParamForSession) == "1",
		RememberMe: query.Get(attempt.ParamRememberMe) == "1",
		Callback:   provider.Callback{Params: callbackParams(c.Request.Form)},
	}

	a := attempt.New()
	h.validator.Validate(c.Request.Context(), a, req)
	h.finish(c, a)
}

// callbackParams drops the parameters this application added to the
// return target. Whatever remains belongs to the provider.
func callbackParams(form url.Values) url.Values {
	params := url.Values{}
	for k, v := range form {
		switch k {
		case attempt.ParamForSession, attempt.ParamRememberMe, auth.FieldIdentifier:
			continue
		}
		params[k] = v
	}
	return params
}

func (h *Handler) finish(c *gin.Context, a *attempt.Attempt) {
	if a.State == attempt.Skipped && a.Errors.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "an OpenID identifier is required",
		})
		return
	}

	var started *session.Session
	var sessErr error
	ok := a.Save(func(a *attempt.Attempt) {
		if !a.Succeeded() {
			return
		}
		s, err := session.Start(c.Request.Context(), h.sessions, a.Account.ID, a.RememberMe, h.lifetimes)
		if err != nil {
			sessErr = err
			return
		}
		started = &s
	})

	if a.Redirect != nil {
		h.redirect(c, a.Redirect)
		return
	}

	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"errors":        &a.Errors,
			"full_messages": a.Errors.Full(),
		})
		return
	}

	if sessErr != nil {
		logger.From(c.Request.Context()).Error("failed to persist session",
			logger.Component("handler"),
			logger.UserID(a.Account.ID),
			logger.Err(sessErr),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to create session",
		})
		return
	}

	session.SetCookie(c.Writer, started.SessionID, started.ExpiresAt, h.cookie)

	logger.From(c.Request.Context()).Info("login success",
		logger.Component("handler"),
		logger.UserID(a.Account.ID),
		logger.Bool("remember_me", a.RememberMe),
		logger.String("ip", c.ClientIP()),
	)

	c.JSON(http.StatusOK, gin.H{
		"status":     "authenticated",
		"user_id":    a.Account.ID,
		"registered": a.AutoRegistering,
	})
}

func (h *Handler) redirect(c *gin.Context, r *provider.Redirect) {
	if r.Method != http.MethodPost {
		c.Redirect(http.StatusFound, r.URL)
		return
	}
	c.Render(http.StatusOK, render.HTML{Template: formPost, Data: r})
}

// Me returns the account behind the current session.
func (h *Handler) Me(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c.Request.Context())
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	a, err := h.accounts.FindByID(c.Request.Context(), userID)
	if errors.Is(err, account.ErrNotFound) {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":           a.ID,
		"login":             a.Login,
		"email":             a.Email,
		"name":              a.Name,
		"openid_identifier": a.OpenIDIdentifier,
	})
}

func (h *Handler) Logout(c *gin.Context) {
	if sid, ok := session.ReadCookie(c.Request, h.cookie); ok {
		// best-effort
		_ = h.sessions.Delete(c.Request.Context(), sid)
		logger.From(c.Request.Context()).Info("logout",
			logger.Component("handler"),
			logger.String("ip", c.ClientIP()),
		)
	}

	session.ClearCookie(c.Writer, h.cookie)

	// idempotent
	c.Status(http.StatusNoContent)
}
