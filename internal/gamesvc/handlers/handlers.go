package handlers

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/go-chi/jwtauth"

	"github.com/zuiy/crate-services/internal/gamesvc/fair"
	"github.com/zuiy/crate-services/internal/gamesvc/store"
)

type Handler struct {
	tokenAuth *jwtauth.JWTAuth
	crates    *store.CrateStore
}

func NewHandler(crates *store.CrateStore) *Handler {
	return &Handler{crates: crates}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func (rs *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	json.NewEncoder(w).Encode(rsp)
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	rsp := Response{
		Message: "game service is running at port " + os.Getenv("GAME_SERVICE_PORT"),
		Code:    200,
		Data:    nil,
	}
	json.NewEncoder(w).Encode(rsp)
}

// VerifyHandler recomputes a published outcome from the revealed seeds so
// anyone can audit a round after the fact.
func (h *Handler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	serverSeed := q.Get("serverSeed")
	clientSeed := q.Get("clientSeed")
	userID := q.Get("userId")
	roundID := q.Get("roundId")
	caseID := q.Get("caseId")
	if serverSeed == "" || userID == "" || roundID == "" {
		h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "serverSeed, userId and roundId are required"})
		return
	}

	ticket := fair.Ticket(clientSeed, userID, roundID, serverSeed)
	data := map[string]interface{}{"ticket": ticket}

	if caseID != "" {
		crate, err := h.crates.GetCrate(r.Context(), caseID)
		if err != nil {
			h.CreateResponse(w, Response{Code: http.StatusInternalServerError, Error: "unable to load case"})
			return
		}
		if crate == nil {
			h.CreateResponse(w, Response{Code: http.StatusNotFound, Error: "unknown case"})
			return
		}
		data["item"] = fair.ResolveItem(ticket, crate.Items)
	}

	h.CreateResponse(w, Response{Message: "verified", Code: 200, Data: data})
}
