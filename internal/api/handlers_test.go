package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/derekprior/hoops/internal/manager"
	"github.com/derekprior/hoops/internal/schedule"
	"github.com/derekprior/hoops/internal/store"
	"github.com/derekprior/hoops/internal/strategy"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mockService is a canned Service.
type mockService struct {
	teams       []store.Team
	teamsErr    error
	games       []store.Game
	gamesErr    error
	created     store.Game
	createErr   error
	createIn    manager.GameInput
	generateRes *manager.GenerateResult
	generateErr error
	seed        *int64
	deleteErr   error
	deletedID   uuid.UUID
}

func (m *mockService) Calculator() *schedule.Calculator {
	return schedule.NewCalculator(schedule.DefaultAnchor)
}
func (m *mockService) Teams(_ context.Context) ([]store.Team, error) {
	return m.teams, m.teamsErr
}
func (m *mockService) Games(_ context.Context) ([]store.Game, error) {
	return m.games, m.gamesErr
}
func (m *mockService) CreateGame(_ context.Context, in manager.GameInput) (store.Game, error) {
	m.createIn = in
	return m.created, m.createErr
}
func (m *mockService) BulkGenerate(_ context.Context, seed *int64) (*manager.GenerateResult, error) {
	m.seed = seed
	return m.generateRes, m.generateErr
}
func (m *mockService) DeleteGame(_ context.Context, id uuid.UUID) error {
	m.deletedID = id
	return m.deleteErr
}

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func serve(svc Service, method, path string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	NewRouter(svc, nil).ServeHTTP(w, req)
	return w
}

func slot(t *testing.T, n int, a, b string) schedule.GameSlot {
	t.Helper()
	s, err := schedule.NewGameSlot(schedule.NewCalculator(schedule.DefaultAnchor), n, a, b, "", nil)
	if err != nil {
		t.Fatalf("NewGameSlot(%d) error: %v", n, err)
	}
	return s
}

func testTeams() []store.Team {
	return []store.Team{{ID: "t-1", Name: "Celtics"}, {ID: "t-2", Name: "Lakers"}, {ID: "t-3", Name: "Knicks"}}
}

func TestPing(t *testing.T) {
	w := serve(&mockService{}, "GET", "/ping", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestTeams(t *testing.T) {
	w := serve(&mockService{teams: testTeams()}, "GET", "/api/teams", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got []teamResponse
	json.Unmarshal(w.Body.Bytes(), &got)
	if len(got) != 3 || got[1].Name != "Lakers" {
		t.Errorf("teams = %+v", got)
	}
}

func TestTeamsStoreFailure(t *testing.T) {
	w := serve(&mockService{teamsErr: errors.New("connection refused")}, "GET", "/api/teams", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("connection refused")) {
		t.Error("internal error details should not reach the client")
	}
}

func TestWindows(t *testing.T) {
	w := serve(&mockService{}, "GET", "/api/windows", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got []windowResponse
	json.Unmarshal(w.Body.Bytes(), &got)
	if len(got) != 66 {
		t.Fatalf("got %d windows, want 66", len(got))
	}
	last := got[65]
	if last.WeekNumber != 22 || last.StartDate != "2026-03-20" || last.EndDate != "2026-03-21" {
		t.Errorf("last window = %+v", last)
	}
}

func TestWindow(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   windowResponse
	}{
		{"/api/windows/0", http.StatusOK, windowResponse{0, 1, "2025-10-19", "2025-10-20"}},
		{"/api/windows/4", http.StatusOK, windowResponse{4, 2, "2025-10-28", "2025-10-30"}},
		{"/api/windows/66", http.StatusBadRequest, windowResponse{}},
		{"/api/windows/-1", http.StatusBadRequest, windowResponse{}},
		{"/api/windows/abc", http.StatusBadRequest, windowResponse{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := serve(&mockService{}, "GET", tt.path, nil)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
			if tt.status != http.StatusOK {
				return
			}
			var got windowResponse
			json.Unmarshal(w.Body.Bytes(), &got)
			if got != tt.want {
				t.Errorf("window = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGames(t *testing.T) {
	svc := &mockService{
		teams: testTeams(),
		games: []store.Game{
			{ID: uuid.New(), GameSlot: slot(t, 0, "t-1", "t-2")},
			{ID: uuid.New(), GameSlot: slot(t, 3, "t-2", "t-3")},
			{ID: uuid.New(), GameSlot: slot(t, 4, "t-1", "t-3")},
		},
	}

	t.Run("all games with team names", func(t *testing.T) {
		w := serve(svc, "GET", "/api/games", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		var got []gameResponse
		json.Unmarshal(w.Body.Bytes(), &got)
		if len(got) != 3 {
			t.Fatalf("got %d games, want 3", len(got))
		}
		if got[0].TeamAName != "Celtics" || got[0].TeamBName != "Lakers" || got[0].ID == "" {
			t.Errorf("first game = %+v", got[0])
		}
	})

	t.Run("filtered by week", func(t *testing.T) {
		w := serve(svc, "GET", "/api/games?week=2", nil)
		var got []gameResponse
		json.Unmarshal(w.Body.Bytes(), &got)
		if len(got) != 2 {
			t.Errorf("got %d week 2 games, want 2", len(got))
		}
	})

	t.Run("bad week", func(t *testing.T) {
		for _, q := range []string{"0", "two"} {
			if w := serve(svc, "GET", "/api/games?week="+q, nil); w.Code != http.StatusBadRequest {
				t.Errorf("week=%s: expected 400, got %d", q, w.Code)
			}
		}
	})
}

func TestCreateGame(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := &mockService{teams: testTeams(), created: store.Game{ID: uuid.New(), GameSlot: slot(t, 4, "t-1", "t-2")}}
		w := serve(svc, "POST", "/api/games", jsonBody(map[string]any{
			"game_number": 4, "team_a": "Celtics", "team_b": "t-2", "notes": "rivalry",
		}))
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		if svc.createIn.GameNumber != 4 || svc.createIn.TeamA != "Celtics" || svc.createIn.Notes != "rivalry" {
			t.Errorf("input = %+v", svc.createIn)
		}
	})

	t.Run("game zero is accepted", func(t *testing.T) {
		svc := &mockService{created: store.Game{ID: uuid.New(), GameSlot: slot(t, 0, "t-1", "t-2")}}
		w := serve(svc, "POST", "/api/games", jsonBody(map[string]any{"game_number": 0, "team_a": "t-1", "team_b": "t-2"}))
		if w.Code != http.StatusCreated {
			t.Errorf("expected 201, got %d", w.Code)
		}
	})

	t.Run("missing game number", func(t *testing.T) {
		w := serve(&mockService{}, "POST", "/api/games", jsonBody(map[string]any{"team_a": "t-1", "team_b": "t-2"}))
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("bad json", func(t *testing.T) {
		w := serve(&mockService{}, "POST", "/api/games", bytes.NewReader([]byte("invalid json")))
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	errorCases := []struct {
		err    error
		status int
	}{
		{schedule.ErrSameTeam, http.StatusBadRequest},
		{schedule.ErrMissingTeam, http.StatusBadRequest},
		{fmt.Errorf("%w: game 70", schedule.ErrInvalidGameNumber), http.StatusBadRequest},
		{fmt.Errorf("%w: %q", manager.ErrUnknownTeam, "Monstars"), http.StatusBadRequest},
		{fmt.Errorf("%w: game 4", schedule.ErrDuplicateGameNumber), http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range errorCases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			svc := &mockService{createErr: tc.err}
			w := serve(svc, "POST", "/api/games", jsonBody(map[string]any{"game_number": 4, "team_a": "t-1", "team_b": "t-2"}))
			if w.Code != tc.status {
				t.Errorf("expected %d, got %d", tc.status, w.Code)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	games := []schedule.GameSlot{slot(t, 0, "t-1", "t-2"), slot(t, 1, "t-1", "t-3")}

	t.Run("created with seed", func(t *testing.T) {
		svc := &mockService{
			teams: testTeams(),
			generateRes: &manager.GenerateResult{
				Result: &schedule.Result{Games: games, Rounds: 1},
				Inserted: []store.Game{
					{ID: uuid.New(), GameSlot: games[0]},
					{ID: uuid.New(), GameSlot: games[1]},
				},
			},
		}
		w := serve(svc, "POST", "/api/games/generate", jsonBody(map[string]any{"seed": 42}))
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		if svc.seed == nil || *svc.seed != 42 {
			t.Errorf("seed = %v, want 42", svc.seed)
		}
		var got generateResponse
		json.Unmarshal(w.Body.Bytes(), &got)
		if got.Inserted != 2 || len(got.Games) != 2 || got.Games[1].ID == "" {
			t.Errorf("response = %+v", got)
		}
	})

	t.Run("empty body means no seed", func(t *testing.T) {
		svc := &mockService{generateRes: &manager.GenerateResult{Result: &schedule.Result{}}}
		w := serve(svc, "POST", "/api/games/generate", nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", w.Code)
		}
		if svc.seed != nil {
			t.Errorf("seed = %d, want nil", *svc.seed)
		}
	})

	t.Run("empty chunked body means no seed", func(t *testing.T) {
		svc := &mockService{generateRes: &manager.GenerateResult{Result: &schedule.Result{}}}
		req := httptest.NewRequest("POST", "/api/games/generate", bytes.NewReader(nil))
		req.Header.Set("Content-Type", "application/json")
		req.ContentLength = -1
		req.TransferEncoding = []string{"chunked"}
		w := httptest.NewRecorder()
		NewRouter(svc, nil).ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		if svc.seed != nil {
			t.Errorf("seed = %d, want nil", *svc.seed)
		}
	})

	t.Run("policy error carries the partial result", func(t *testing.T) {
		svc := &mockService{
			generateRes: &manager.GenerateResult{
				Result: &schedule.Result{
					Games:    games,
					Unfilled: 64,
					Dropped:  []strategy.Pair{{A: "t-2", B: "t-3"}},
					Warnings: []string{"64 open game slots left unfilled"},
				},
			},
			generateErr: fmt.Errorf("%w: 64 slots unfilled", schedule.ErrInsufficientPairs),
		}
		w := serve(svc, "POST", "/api/games/generate", nil)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", w.Code)
		}
		var got generateResponse
		json.Unmarshal(w.Body.Bytes(), &got)
		if len(got.Games) != 2 || got.Unfilled != 64 || got.Error == "" || len(got.Dropped) != 1 {
			t.Errorf("response = %+v", got)
		}
	})

	t.Run("failure without a result", func(t *testing.T) {
		svc := &mockService{generateErr: errors.New("database is locked")}
		if w := serve(svc, "POST", "/api/games/generate", nil); w.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", w.Code)
		}
	})

	t.Run("bad json", func(t *testing.T) {
		w := serve(&mockService{}, "POST", "/api/games/generate", bytes.NewReader([]byte(`{"seed":"soon"}`)))
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestDeleteGame(t *testing.T) {
	id := uuid.New()

	t.Run("deleted", func(t *testing.T) {
		svc := &mockService{}
		w := serve(svc, "DELETE", "/api/games/"+id.String(), nil)
		if w.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", w.Code)
		}
		if svc.deletedID != id {
			t.Errorf("deleted %s, want %s", svc.deletedID, id)
		}
	})

	t.Run("not found", func(t *testing.T) {
		svc := &mockService{deleteErr: fmt.Errorf("game %s: %w", id, store.ErrNotFound)}
		if w := serve(svc, "DELETE", "/api/games/"+id.String(), nil); w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		if w := serve(&mockService{}, "DELETE", "/api/games/42", nil); w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest("OPTIONS", "/api/games", nil)
	req.Header.Set("Origin", "https://league.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	NewRouter(&mockService{}, []string{"https://league.example.com"}).ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://league.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
