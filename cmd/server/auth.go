package main

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/store"
	"chatrelay/internal/types"
	"chatrelay/pkg/protocol"
)

// Account routes. These sit outside the relay core: they only exist to mint
// the login session the websocket handshake later resolves.

func (s *Server) handleSignup(c *gin.Context) {
	var req store.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := store.ValidateSignup(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.users.Create(req.Email, req.FullName, req.Password)
	if errors.Is(err, store.ErrUserAlreadyExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "user with this email already exists"})
		return
	}
	if err != nil {
		log.Printf("signup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
		return
	}

	identity := types.Identity{UserID: user.ID, DisplayName: user.FullName}
	if err := s.issueSession(c, identity); err != nil {
		log.Printf("session issue failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user_id": user.ID, "display_name": user.FullName})
}

func (s *Server) handleSignin(c *gin.Context) {
	var req store.SigninRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := store.ValidateSignin(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.users.Authenticate(req.Email, req.Password)
	if errors.Is(err, store.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect email or password"})
		return
	}
	if err != nil {
		log.Printf("signin failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
		return
	}

	identity := types.Identity{UserID: user.ID, DisplayName: user.FullName}
	if err := s.issueSession(c, identity); err != nil {
		log.Printf("session issue failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": user.ID, "display_name": user.FullName})
}

func (s *Server) handleLogout(c *gin.Context) {
	c.SetCookie(protocol.SessionCookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "signed out"})
}

func (s *Server) issueSession(c *gin.Context, identity types.Identity) error {
	token, err := s.sessions.Issue(identity, s.cfg.SessionTTL)
	if err != nil {
		return err
	}
	c.SetCookie(protocol.SessionCookieName, token, int(s.cfg.SessionTTL.Seconds()), "/", "", false, true)
	return nil
}
