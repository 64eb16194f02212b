package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/avolkov/converse/internal/database"
	"github.com/avolkov/converse/internal/token"
	"github.com/avolkov/converse/internal/types"
)

const (
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	User types.User `json:"user"`
	// VerificationCode stands in for mail delivery; the client presents
	// it to the verify endpoint.
	VerificationCode string `json:"verification_code"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func toUser(u database.User) types.User {
	return types.User{
		Id:           u.Id,
		Username:     u.Username,
		EmailAddress: u.EmailAddress,
		Role:         u.Role,
		Verified:     u.IsVerified,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (s *App) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateAccountParams{
		Username:         req.Username,
		EmailAddress:     req.Email,
		PasswordHash:     pwdHash,
		Role:             types.RoleUser,
		VerificationCode: uuid.NewString(),
	}

	newUser, err := s.db.CreateAccount(params)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrDuplicate) {
			errResp = NewBadRequestError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pair, err := s.auth.Issue(newUser.Id, newUser.Role, newUser.IsVerified)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.setTokenCookies(w, pair)
	s.writeJson(w, http.StatusCreated, RegisterResponse{
		User:             toUser(newUser),
		VerificationCode: newUser.VerificationCode,
	})
}

func (s *App) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		// unknown email and bad password are indistinguishable to the
		// client
		var errResp *ApiError
		if errors.Is(err, database.ErrNotFound) {
			errResp = NewUnauthorizedError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pair, err := s.auth.Issue(dbUser.Id, dbUser.Role, dbUser.IsVerified)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.setTokenCookies(w, pair)
	s.writeJson(w, http.StatusOK, toUser(dbUser))
}

// refresh rotates the presented refresh token. A replayed token fails
// here with 401, which is the client's cue that the session was stolen
// or superseded.
func (s *App) refresh(w http.ResponseWriter, r *http.Request) {
	refreshCookie, err := r.Cookie(refreshTokenCookie)
	if err != nil {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pair, err := s.auth.Rotate(refreshCookie.Value)
	if err != nil {
		errResp := FromError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.setTokenCookies(w, pair)
	w.WriteHeader(http.StatusNoContent)
}

func (s *App) verify(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.VerifyAccount(code)
	if err != nil {
		var errResp *ApiError
		switch {
		case errors.Is(err, database.ErrNotFound):
			errResp = NewNotFoundError()
		case errors.Is(err, database.ErrDuplicate):
			// the code was already consumed
			errResp = NewBadRequestError()
		default:
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// re-issue so the verified flag lands in the access token right away
	pair, err := s.auth.Issue(user.Id, user.Role, user.IsVerified)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.setTokenCookies(w, pair)
	s.writeJson(w, http.StatusOK, toUser(user))
}

func (s *App) logout(w http.ResponseWriter, r *http.Request) {
	if refreshCookie, err := r.Cookie(refreshTokenCookie); err == nil {
		if err := s.auth.Revoke(refreshCookie.Value); err != nil {
			s.log.Warn().Err(err).Msg("revoke refresh token")
		}
	}

	s.clearTokenCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// logoutAll revokes every refresh token the account has, cutting off
// all devices at their next refresh.
func (s *App) logoutAll(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.auth.RevokeAll(identity.Id); err != nil {
		errResp := FromError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.clearTokenCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *App) session(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(identity.Id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toUser(user))
}

func (s *App) setTokenCookies(w http.ResponseWriter, pair token.Pair) {
	http.SetCookie(w, tokenCookie(accessTokenCookie, pair.AccessToken, s.accessTTL))
	http.SetCookie(w, tokenCookie(refreshTokenCookie, pair.RefreshToken, s.refreshTTL))
}

func (s *App) clearTokenCookies(w http.ResponseWriter) {
	http.SetCookie(w, tokenCookie(accessTokenCookie, "", -time.Hour))
	http.SetCookie(w, tokenCookie(refreshTokenCookie, "", -time.Hour))
}

func tokenCookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}
