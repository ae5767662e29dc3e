package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/derekprior/hoops/internal/manager"
	"github.com/derekprior/hoops/internal/schedule"
	"github.com/derekprior/hoops/internal/store"
	"github.com/derekprior/hoops/internal/strategy"
)

type Handler struct {
	svc Service
}

type errorResponse struct {
	Error string `json:"error"`
}

type teamResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type windowResponse struct {
	GameNumber int    `json:"game_number"`
	WeekNumber int    `json:"week_number"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
}

type gameResponse struct {
	ID         string `json:"id,omitempty"`
	GameNumber int    `json:"game_number"`
	WeekNumber int    `json:"week_number"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	TeamA      string `json:"team_a"`
	TeamB      string `json:"team_b"`
	TeamAName  string `json:"team_a_name,omitempty"`
	TeamBName  string `json:"team_b_name,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type pairResponse struct {
	TeamA string `json:"team_a"`
	TeamB string `json:"team_b"`
}

type generateResponse struct {
	Games    []gameResponse `json:"games"`
	Inserted int            `json:"inserted"`
	Dropped  []pairResponse `json:"dropped"`
	Unfilled int            `json:"unfilled"`
	Rounds   int            `json:"rounds"`
	Warnings []string       `json:"warnings"`
	Error    string         `json:"error,omitempty"`
}

type createGameRequest struct {
	GameNumber *int   `json:"game_number" binding:"required"`
	TeamA      string `json:"team_a"`
	TeamB      string `json:"team_b"`
	Notes      string `json:"notes"`
}

type generateRequest struct {
	Seed *int64 `json:"seed"`
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func (h *Handler) Teams(c *gin.Context) {
	teams, err := h.svc.Teams(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]teamResponse, 0, len(teams))
	for _, t := range teams {
		out = append(out, teamResponse{ID: t.ID, Name: t.Name})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Windows(c *gin.Context) {
	windows := h.svc.Calculator().All()
	out := make([]windowResponse, 0, len(windows))
	for _, w := range windows {
		out = append(out, toWindowResponse(w))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Window(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("game"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "game number must be an integer"})
		return
	}
	w, err := h.svc.Calculator().Compute(n)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toWindowResponse(w))
}

// Games lists the season's games, optionally filtered with ?week=N.
func (h *Handler) Games(c *gin.Context) {
	week := 0
	if raw := c.Query("week"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "week must be a positive integer"})
			return
		}
		week = n
	}

	ctx := c.Request.Context()
	games, err := h.svc.Games(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	names, err := h.teamNames(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	out := make([]gameResponse, 0, len(games))
	for _, g := range games {
		if week != 0 && g.WeekNumber != week {
			continue
		}
		resp := toGameResponse(g.GameSlot, names)
		resp.ID = g.ID.String()
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) CreateGame(c *gin.Context) {
	var req createGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	g, err := h.svc.CreateGame(c.Request.Context(), manager.GameInput{
		GameNumber: *req.GameNumber,
		TeamA:      req.TeamA,
		TeamB:      req.TeamB,
		Notes:      req.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	names, _ := h.teamNames(c)
	resp := toGameResponse(g.GameSlot, names)
	resp.ID = g.ID.String()
	c.JSON(http.StatusCreated, resp)
}

// Generate fills the open game slots. The body is optional. A policy
// rejection answers 422 with the partial result in the body.
func (h *Handler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	res, err := h.svc.BulkGenerate(c.Request.Context(), req.Seed)
	if res == nil {
		h.fail(c, err)
		return
	}

	names, _ := h.teamNames(c)
	out := generateResponse{
		Games:    make([]gameResponse, 0, len(res.Games)),
		Inserted: len(res.Inserted),
		Dropped:  toPairResponses(res.Dropped),
		Unfilled: res.Unfilled,
		Rounds:   res.Rounds,
		Warnings: res.Warnings,
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	for i, slot := range res.Games {
		resp := toGameResponse(slot, names)
		if i < len(res.Inserted) {
			resp.ID = res.Inserted[i].ID.String()
		}
		out.Games = append(out.Games, resp)
	}

	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.fail(c, err)
			return
		}
		out.Error = err.Error()
		c.JSON(status, out)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) DeleteGame(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid game id"})
		return
	}
	if err := h.svc.DeleteGame(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) teamNames(c *gin.Context) (map[string]string, error) {
	teams, err := h.svc.Teams(c.Request.Context())
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(teams))
	for _, t := range teams {
		names[t.ID] = t.Name
	}
	return names, nil
}

// fail writes the error response for err. Internal errors are logged but
// not echoed to the client.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		c.Error(err)
		c.JSON(status, errorResponse{Error: "internal server error"})
		return
	}
	c.JSON(status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, schedule.ErrInvalidGameNumber),
		errors.Is(err, schedule.ErrMissingTeam),
		errors.Is(err, schedule.ErrSameTeam),
		errors.Is(err, manager.ErrUnknownTeam):
		return http.StatusBadRequest
	case errors.Is(err, schedule.ErrDuplicateGameNumber):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, schedule.ErrInsufficientPairs),
		errors.Is(err, schedule.ErrPairsDropped):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func toWindowResponse(w schedule.Window) windowResponse {
	return windowResponse{
		GameNumber: w.GameNumber,
		WeekNumber: w.WeekNumber,
		StartDate:  w.StartDate.Format(schedule.DateLayout),
		EndDate:    w.EndDate.Format(schedule.DateLayout),
	}
}

func toGameResponse(g schedule.GameSlot, names map[string]string) gameResponse {
	return gameResponse{
		GameNumber: g.GameNumber,
		WeekNumber: g.WeekNumber,
		StartDate:  g.StartDate.Format(schedule.DateLayout),
		EndDate:    g.EndDate.Format(schedule.DateLayout),
		TeamA:      g.TeamA,
		TeamB:      g.TeamB,
		TeamAName:  names[g.TeamA],
		TeamBName:  names[g.TeamB],
		Notes:      g.Notes,
	}
}

func toPairResponses(pairs []strategy.Pair) []pairResponse {
	out := make([]pairResponse, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, pairResponse{TeamA: p.A, TeamB: p.B})
	}
	return out
}
