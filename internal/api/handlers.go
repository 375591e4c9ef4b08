package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"

	"github.com/akshat-collab/code-battle-arena/internal/arena"
	"github.com/akshat-collab/code-battle-arena/internal/hub"
	"github.com/akshat-collab/code-battle-arena/internal/types"
	"github.com/gorilla/websocket"
)

const maxBodySize = 128 << 10

type CreateRoomRequest struct {
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	Difficulty       types.Difficulty `json:"difficulty"`
	MaxParticipants  int              `json:"max_participants"`
	TimeLimitSeconds int              `json:"time_limit"`
	IsPrivate        bool             `json:"is_private"`
	JoinCode         string           `json:"join_code"`
}

type JoinRoomRequest struct {
	JoinCode string `json:"join_code"`
}

type ReadyRequest struct {
	Ready bool `json:"ready"`
}

type CountdownRequest struct {
	Seconds int `json:"seconds"`
}

type SubmitRequest struct {
	ChallengeId string `json:"challenge_id"`
	Code        string `json:"code"`
	Language    string `json:"language"`
}

// SubmitResponse carries the recorded submission, and the judge error
// when the judge could not be reached.
type SubmitResponse struct {
	Submission types.Submission `json:"submission"`
	Error      *ApiError        `json:"error,omitempty"`
}

func (s *ArenaApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ArenaApp) writeError(w http.ResponseWriter, err error) {
	errResp := errorFromDomain(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Println(err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

// readJson decodes the request body into v. With optional set an empty
// body leaves v untouched.
func (s *ArenaApp) readJson(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	return nil
}

func (s *ArenaApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Println("health check:", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("UNAVAILABLE"))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *ArenaApp) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.arena.ListActiveRooms(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *ArenaApp) createRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateRoomRequest
	if err := s.readJson(w, r, &req, false); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.arena.CreateRoom(r.Context(), arena.CreateRoomParams{
		Name:             req.Name,
		Description:      req.Description,
		Difficulty:       req.Difficulty,
		MaxParticipants:  req.MaxParticipants,
		TimeLimitSeconds: req.TimeLimitSeconds,
		IsPrivate:        req.IsPrivate,
		JoinCode:         req.JoinCode,
		CreatorId:        userId,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, room)
}

func (s *ArenaApp) getRoom(w http.ResponseWriter, r *http.Request) {
	detail, err := s.arena.GetRoomDetail(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, detail)
}

func (s *ArenaApp) joinRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req JoinRoomRequest
	if err := s.readJson(w, r, &req, true); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	participant, err := s.arena.JoinRoom(r.Context(), r.PathValue("id"), userId, req.JoinCode)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, participant)
}

func (s *ArenaApp) leaveRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	res, err := s.arena.LeaveRoom(r.Context(), r.PathValue("id"), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, res)
}

func (s *ArenaApp) startCompetition(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.arena.StartCompetition(r.Context(), r.PathValue("id"), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *ArenaApp) toggleReady(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req ReadyRequest
	if err := s.readJson(w, r, &req, false); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	participant, err := s.arena.ToggleReady(r.Context(), r.PathValue("id"), userId, req.Ready)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, participant)
}

func (s *ArenaApp) countdown(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CountdownRequest
	if err := s.readJson(w, r, &req, true); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	update, err := s.arena.Countdown(r.Context(), r.PathValue("id"), userId, req.Seconds)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, update)
}

func (s *ArenaApp) endCompetition(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.arena.EndCompetition(r.Context(), r.PathValue("id"), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *ArenaApp) submitSolution(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, r.PathValue("id"))
}

func (s *ArenaApp) submitPractice(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, "")
}

func (s *ArenaApp) submit(w http.ResponseWriter, r *http.Request, roomId string) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SubmitRequest
	if err := s.readJson(w, r, &req, false); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sub, err := s.arena.SubmitSolution(r.Context(), arena.SubmitParams{
		RoomId:      roomId,
		UserId:      userId,
		ChallengeId: req.ChallengeId,
		Code:        req.Code,
		Language:    req.Language,
	})
	if errors.Is(err, types.ErrJudgeUnavailable) {
		// the submission was recorded as rejected
		s.log.Println(err)
		errResp := errorFromDomain(err)
		s.writeJson(w, errResp.StatusCode, SubmitResponse{Submission: sub, Error: errResp})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, SubmitResponse{Submission: sub})
}

func (s *ArenaApp) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.arena.GetLeaderboard(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, entries)
}

func (s *ArenaApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.arena.GetUser(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := hub.NewClient(user, conn, s.hub, s.log)
	s.hub.Register(client)
	go client.Write()
	go client.Read()
}
