package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/yeremiapane/bar-order-app/config"
	"github.com/yeremiapane/bar-order-app/middlewares"
	"github.com/yeremiapane/bar-order-app/utils"
)

var errLoginDisabled = errors.New("dashboard login is not configured")

type BartenderController struct {
	passwordHash []byte
	Tokens       *utils.TokenIssuer
}

// NewBartenderController prefers a stored bcrypt hash; a plain password is hashed once at
// startup. With neither, login is disabled and only the shared key works.
func NewBartenderController(cfg config.Auth, tokens *utils.TokenIssuer) (*BartenderController, error) {
	bc := &BartenderController{Tokens: tokens}
	switch {
	case cfg.DashboardPasswordHash != "":
		bc.passwordHash = []byte(cfg.DashboardPasswordHash)
	case cfg.DashboardPassword != "":
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.DashboardPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		bc.passwordHash = hash
	}
	return bc, nil
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

// Login -> password check, then a session cookie and a bearer token for websockets
func (bc *BartenderController) Login(c *gin.Context) {
	if len(bc.passwordHash) == 0 {
		utils.RespondError(c, http.StatusServiceUnavailable, errLoginDisabled)
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword(bc.passwordHash, []byte(req.Password)); err != nil {
		utils.InfoLogger.Warnf("Failed dashboard login from %s", c.ClientIP())
		utils.RespondMessage(c, http.StatusUnauthorized, "invalid password")
		return
	}

	session := sessions.Default(c)
	session.Set(middlewares.SessionRoleKey, middlewares.RoleBartender)
	if err := session.Save(); err != nil {
		respondServiceError(c, err, "failed to start session")
		return
	}

	token, err := bc.Tokens.Generate(middlewares.RoleBartender)
	if err != nil {
		respondServiceError(c, err, "failed to start session")
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Login successful", gin.H{"token": token})
}

// Logout -> drop the session cookie; issued tokens expire on their own
func (bc *BartenderController) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		respondServiceError(c, err, "failed to end session")
		return
	}
	utils.RespondMessage(c, http.StatusOK, "Logged out")
}
