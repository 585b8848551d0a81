package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/justestif/go-spotify-recommender/internal/auth"
	"github.com/justestif/go-spotify-recommender/internal/db"
	"github.com/justestif/go-spotify-recommender/internal/logging"
	"github.com/justestif/go-spotify-recommender/internal/recommend"
	"github.com/justestif/go-spotify-recommender/internal/sync"
)

const notAuthenticatedMessage = "Not authenticated with Spotify"

// UserReader loads local users.
type UserReader interface {
	Get(ctx context.Context, id uuid.UUID) (*db.User, error)
}

// ProfileReader loads stored Spotify profiles.
type ProfileReader interface {
	Get(ctx context.Context, userID uuid.UUID) (*db.Profile, error)
}

// Handlers contains HTTP handlers for the web application.
type Handlers struct {
	auth      *auth.Manager
	ingest    *sync.Service
	recommend *recommend.Service
	users     UserReader
	profiles  ProfileReader
	sessions  SessionManager
	templates *Templates
	secure    bool
}

type userKey struct{}

// withUser stores the resolved user in the request context.
func withUser(ctx context.Context, user *db.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// currentUser returns the user resolved by RequireSession.
func currentUser(r *http.Request) *db.User {
	user, _ := r.Context().Value(userKey{}).(*db.User)
	return user
}

// RequireSession resolves the session cookie to a user once per request.
// Requests without a valid session are redirected to the login route.
func (h *Handlers) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := h.sessions.GetFromRequest(r)
		if session == nil {
			http.Redirect(w, r, "/login/", http.StatusFound)
			return
		}

		user, err := h.users.Get(r.Context(), session.UserID)
		if err != nil {
			if !errors.Is(err, db.ErrNotFound) {
				logging.Error().Err(err).Str("session_user", session.UserID.String()).Msg("Failed to load session user")
			}
			h.sessions.ClearCookie(w)
			http.Redirect(w, r, "/login/", http.StatusFound)
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// Home handles the landing page (GET /).
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	data := HomePageData{
		PageData: h.pageData(r, "Spotify Recommender", nil),
	}

	if session := h.sessions.GetFromRequest(r); session != nil {
		if user, err := h.users.Get(r.Context(), session.UserID); err == nil {
			data.Authenticated = true
			data.User = &UserData{ID: user.ID.String(), Name: user.Username}
		}
	}

	h.render(w, r, http.StatusOK, "home", data)
}

// Login initiates the Spotify OAuth flow (GET /login/).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	// Generate state for CSRF protection
	state, err := auth.GenerateState()
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "Failed to generate state")
		return
	}

	// Store state in cookie for validation on callback
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes
	})

	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback handles the OAuth redirect from Spotify (GET /callback/).
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if err := auth.CheckCallback(q.Get("error"), q.Get("code")); err != nil {
		h.renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || q.Get("state") != stateCookie.Value {
		h.renderError(w, r, http.StatusBadRequest, "OAuth state mismatch")
		return
	}

	// Clear state cookie
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	user, err := h.auth.HandleCallback(r.Context(), q.Get("code"))
	if err != nil {
		logging.Error().Err(err).Msg("Spotify callback failed")
		h.renderError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	session, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		logging.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to create session")
		h.renderError(w, r, http.StatusInternalServerError, "Failed to create session")
		return
	}
	h.sessions.SetCookie(w, session)

	http.Redirect(w, r, "/dashboard/", http.StatusFound)
}

// Logout clears the session and redirects to home (POST /logout/).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessions.GetFromRequest(r); session != nil {
		h.sessions.Delete(r.Context(), session.ID)
	}

	h.sessions.ClearCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Dashboard shows the profile summary and actions (GET /dashboard/).
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	profile, err := h.profiles.Get(r.Context(), user.ID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		h.renderError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	h.render(w, r, http.StatusOK, "dashboard", DashboardPageData{
		PageData: h.pageData(r, "Dashboard", user),
		Profile:  profile,
	})
}

// FetchHistoryResponse is the JSON body of a successful ingestion.
type FetchHistoryResponse struct {
	Success               bool   `json:"success"`
	TracksCreated         int    `json:"tracks_created"`
	HistoryEntriesCreated int    `json:"history_entries_created"`
	Message               string `json:"message"`
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FetchHistory ingests recent plays (POST /fetch-history/).
func (h *Handlers) FetchHistory(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	result, err := h.ingest.FetchRecentPlays(r.Context(), user.ID)
	if errors.Is(err, auth.ErrNotAuthenticated) {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: notAuthenticatedMessage})
		return
	}
	if err != nil {
		logging.Error().Err(err).Str("user_id", user.ID.String()).Msg("Fetching history failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, FetchHistoryResponse{
		Success:               true,
		TracksCreated:         result.TracksCreated,
		HistoryEntriesCreated: result.HistoryCreated,
		Message:               fmt.Sprintf("Fetched %d new listening history entries", result.HistoryCreated),
	})
}

// GenerateRecommendations rebuilds the user's recommendations
// (GET /generate-recommendations/).
func (h *Handlers) GenerateRecommendations(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	_, err := h.recommend.Generate(r.Context(), user.ID)
	if errors.Is(err, auth.ErrNotAuthenticated) {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: notAuthenticatedMessage})
		return
	}
	if err != nil {
		logging.Error().Err(err).Str("user_id", user.ID.String()).Msg("Generating recommendations failed")
		h.renderError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	http.Redirect(w, r, "/recommendations/", http.StatusFound)
}

// Recommendations lists the current recommendation set (GET /recommendations/).
func (h *Handlers) Recommendations(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	recs, err := h.recommend.ListRecommendations(r.Context(), user.ID)
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	h.render(w, r, http.StatusOK, "recommendations", RecommendationsPageData{
		PageData:        h.pageData(r, "Recommendations", user),
		Recommendations: recs,
	})
}

// History lists recent plays (GET /history/).
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	entries, err := h.ingest.ListHistory(r.Context(), user.ID)
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	h.render(w, r, http.StatusOK, "history", HistoryPageData{
		PageData: h.pageData(r, "Listening History", user),
		History:  entries,
	})
}

func (h *Handlers) pageData(r *http.Request, title string, user *db.User) PageData {
	data := PageData{Title: title, CurrentPath: r.URL.Path}
	if user != nil {
		data.User = &UserData{ID: user.ID.String(), Name: user.Username}
	}
	return data
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, page, data); err != nil {
		logging.Error().Err(err).Str("page", page).Str("path", r.URL.Path).Msg("Failed to render template")
	}
}

func (h *Handlers) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.render(w, r, status, "error", ErrorPageData{
		PageData: h.pageData(r, "Error", currentUser(r)),
		Error:    message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
