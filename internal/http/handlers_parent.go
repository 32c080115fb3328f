package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"edulink/internal/core"
	"edulink/internal/log"
	"edulink/internal/metrics"
	"edulink/internal/overview"
	"edulink/internal/supabase"
)

const msgInvalidInvite = "초대 링크(또는 토큰)를 입력해주세요."

// errBusy means another load for the same token is still running.
var errBusy = errors.New("overview load already in flight")

func overviewPath(token string) string {
	return "/p/" + url.PathEscape(token)
}

func (s *Server) handleTokenForm(w http.ResponseWriter, r *http.Request) {
	remembered, ok := s.deps.Tokens.Get(r)
	if ok && r.URL.Query().Get("change") != "1" {
		http.Redirect(w, r, overviewPath(remembered), http.StatusFound)
		return
	}
	s.render(w, r, http.StatusOK, "token_form.html", pageData{
		Title:      "초대 링크 입력",
		Remember:   true,
		Remembered: ok,
	})
}

func (s *Server) handleTokenSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "token_form.html", pageData{
			Title: "초대 링크 입력", FormError: msgInvalidInvite, Remember: true,
		})
		return
	}
	invite := r.PostForm.Get("invite")
	remember := r.PostForm.Get("remember") != ""

	token, ok := overview.ExtractToken(invite)
	if !ok {
		_, remembered := s.deps.Tokens.Get(r)
		s.render(w, r, http.StatusUnprocessableEntity, "token_form.html", pageData{
			Title:      "초대 링크 입력",
			Invite:     invite,
			FormError:  msgInvalidInvite,
			Remember:   remember,
			Remembered: remembered,
		})
		return
	}
	if remember {
		s.deps.Tokens.Set(w, token)
	}
	http.Redirect(w, r, overviewPath(token), http.StatusSeeOther)
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	s.deps.Tokens.Clear(w)
	http.Redirect(w, r, "/p?change=1", http.StatusSeeOther)
}

func (s *Server) handleOverviewPage(w http.ResponseWriter, r *http.Request) {
	s.serveOverview(w, r, chi.URLParam(r, "token"), false)
}

// handleOverviewQuery resolves ?token= first, then the remembered token.
func (s *Server) handleOverviewQuery(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		token, _ = s.deps.Tokens.Get(r)
	}
	s.serveOverview(w, r, token, false)
}

func (s *Server) handleOverviewPartial(w http.ResponseWriter, r *http.Request) {
	s.serveOverview(w, r, chi.URLParam(r, "token"), true)
}

func (s *Server) serveOverview(w http.ResponseWriter, r *http.Request, token string, partial bool) {
	ctx := r.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentOverview)
	token = strings.TrimSpace(token)

	if token == "" {
		metrics.OverviewLoads.WithLabelValues("no_token").Inc()
		if partial {
			http.Error(w, msgInvalidInvite, http.StatusBadRequest)
			return
		}
		s.render(w, r, http.StatusOK, "guard.html", pageData{Title: "초대 링크 필요"})
		return
	}

	data := pageData{Title: "학부모 리포트", Token: token}
	page, err := s.loadOverview(ctx, token)
	switch {
	case errors.Is(err, errBusy):
		metrics.OverviewLoads.WithLabelValues("dropped").Inc()
		if partial {
			w.Header().Set("Retry-After", "1")
			s.render(w, r, http.StatusTooManyRequests, "busy_panel", data)
			return
		}
		s.render(w, r, http.StatusAccepted, "loading.html", data)
		return

	case err != nil:
		metrics.OverviewLoads.WithLabelValues("error").Inc()
		logger.WarnContext(ctx, "Overview load failed",
			log.FieldOperation, log.OpLoadOverview,
			log.FieldTokenHint, log.TokenHint(token),
			log.FieldError, err.Error())
		data.Err = displayMessage(err)
		if partial {
			// htmx only swaps 2xx responses; the panel itself carries the failure.
			s.render(w, r, http.StatusOK, "error_panel", data)
			return
		}
		s.render(w, r, overviewErrorStatus(err), "overview.html", data)
		return
	}

	metrics.OverviewLoads.WithLabelValues("ok").Inc()
	if _, remembered := s.deps.Tokens.Get(r); !remembered {
		s.deps.Tokens.Set(w, token)
	}
	data.Page = &page
	if partial {
		s.render(w, r, http.StatusOK, "overview_panel", data)
		return
	}
	s.render(w, r, http.StatusOK, "overview.html", data)
}

// loadOverview fetches and normalizes one parent overview. At most one load per
// token runs at a time; a concurrent request gets errBusy instead of waiting.
func (s *Server) loadOverview(ctx context.Context, token string) (overview.PageView, error) {
	release, acquired, err := s.deps.Inflight.Acquire(ctx, token, s.opts.InflightTTL)
	switch {
	case err != nil:
		log.FromContext(ctx).WarnContext(ctx, "In-flight guard unavailable, loading unguarded",
			log.FieldComponent, log.ComponentInflight, log.FieldError, err.Error())
	case !acquired:
		return overview.PageView{}, errBusy
	default:
		defer release()
	}

	// The remote call outlives a client disconnect; only its own timeout stops it.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.OverviewTimeout)
	defer cancel()

	raw, err := s.deps.Backend.GetParentOverview(callCtx, token)
	if err != nil {
		return overview.PageView{}, err
	}
	vm := s.normalizer.Normalize(raw)
	return overview.BuildPage(vm, s.opts.RecentLimit), nil
}

// displayMessage turns a load failure into text a parent can act on.
func displayMessage(err error) string {
	var remote *supabase.RemoteError
	switch {
	case errors.Is(err, core.ErrUnknownToken):
		return core.ErrUnknownToken.Error() + ". 학원에 새 링크를 요청해주세요."
	case errors.Is(err, context.DeadlineExceeded):
		return "응답이 지연되고 있습니다. 잠시 후 다시 시도해주세요."
	case errors.As(err, &remote):
		if remote.Message != "" {
			return remote.Message
		}
		return "서버에서 오류가 발생했습니다."
	default:
		return "리포트를 불러오는 중 문제가 발생했습니다. 네트워크 상태를 확인해주세요."
	}
}

func overviewErrorStatus(err error) int {
	var remote *supabase.RemoteError
	switch {
	case errors.Is(err, core.ErrUnknownToken):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &remote) && remote.Unauthorized():
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}
