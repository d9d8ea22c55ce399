// ABOUTME: Email/password accounts: sign-up, password grant and refresh grant.
// ABOUTME: Issues HS256 access tokens and rotating single-use refresh tokens.
package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type passwordReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type tokenResp struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    int64     `json:"expires_at"`
	RefreshToken string    `json:"refresh_token"`
	User         tokenUser `json:"user"`
}

// POST /auth/v1/signup.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodePasswordReq(r)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("hash password error: %v", err)
		fail(w, http.StatusInternalServerError, "failed to create account")
		return
	}
	user, err := s.repo.CreateUser(r.Context(), req.Email, string(hash))
	if errors.Is(err, errDuplicateEmail) {
		fail(w, http.StatusUnprocessableEntity, "user already registered")
		return
	}
	if err != nil {
		log.Printf("user creation error: %v", err)
		fail(w, http.StatusInternalServerError, "failed to create account")
		return
	}
	s.issue(w, r, user)
}

// POST /auth/v1/token?grant_type=password|refresh_token.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("grant_type") {
	case "password":
		s.passwordGrant(w, r)
	case "refresh_token":
		s.refreshGrant(w, r)
	default:
		fail(w, http.StatusBadRequest, "unsupported grant_type")
	}
}

func (s *Server) passwordGrant(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodePasswordReq(r)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := s.repo.UserByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, errNotFound) {
			log.Printf("user lookup error: %v", err)
		}
		fail(w, http.StatusBadRequest, "invalid login credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		fail(w, http.StatusBadRequest, "invalid login credentials")
		return
	}
	s.issue(w, r, user)
}

func (s *Server) refreshGrant(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		fail(w, http.StatusBadRequest, "refresh_token required")
		return
	}

	tok, err := s.repo.TakeRefreshToken(r.Context(), hashToken(req.RefreshToken))
	if err != nil {
		if !errors.Is(err, errNotFound) {
			log.Printf("refresh token lookup error: %v", err)
		}
		fail(w, http.StatusBadRequest, "invalid refresh token")
		return
	}
	if tok.ExpiresAt < s.now().Unix() {
		fail(w, http.StatusBadRequest, "refresh token expired")
		return
	}
	user, err := s.repo.UserByID(r.Context(), tok.UserID)
	if err != nil {
		fail(w, http.StatusBadRequest, "user not found")
		return
	}
	s.issue(w, r, user)
}

func (s *Server) decodePasswordReq(r *http.Request) (passwordReq, error) {
	var req passwordReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return passwordReq{}, errors.New("invalid json")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Password = strings.TrimSpace(req.Password)
	if err := s.validate.Struct(req); err != nil {
		return passwordReq{}, errors.New("valid email and a password of at least 8 characters required")
	}
	return req, nil
}

// issue writes a fresh access/refresh pair for user.
func (s *Server) issue(w http.ResponseWriter, r *http.Request, user UserModel) {
	access, exp, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		log.Printf("token generation error: %v", err)
		fail(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	refresh := randHex(32)
	if err := s.repo.SaveRefreshToken(r.Context(), user.ID, hashToken(refresh), s.now().Add(s.cfg.RefreshTTL)); err != nil {
		log.Printf("refresh token save error: %v", err)
		fail(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	ok(w, tokenResp{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.cfg.TokenTTL.Seconds()),
		ExpiresAt:    exp.Unix(),
		RefreshToken: refresh,
		User:         tokenUser{ID: user.ID, Email: user.Email},
	})
}
