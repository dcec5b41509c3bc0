package api

import (
	"log/slog"
	"net/http"

	"github.com/postfarm/postfarm/internal/models"
)

func (s *Server) llamaStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.llama.ServerStatus(r.Context())))
}

type llamaStartRequest struct {
	ModelName string `json:"model_name"`
}

func (s *Server) llamaStartHandler(w http.ResponseWriter, r *http.Request) {
	var req llamaStartRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.ModelName == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("model_name is required"))
		return
	}

	status, err := s.llama.Start(r.Context(), req.ModelName)
	if err != nil {
		slog.Error("Server.llamaStartHandler: failed to start server", "error", err, "model", req.ModelName)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start server: "+err.Error()))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Server started", status))
}

func (s *Server) llamaStopHandler(w http.ResponseWriter, r *http.Request) {
	stopped, err := s.llama.Stop(r.Context())
	if err != nil {
		slog.Error("Server.llamaStopHandler: failed to stop server", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to stop server: "+err.Error()))
		return
	}
	if !stopped {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Server was not running", nil))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Server stopped", nil))
}

func (s *Server) llamaModelsHandler(w http.ResponseWriter, r *http.Request) {
	infos, err := s.llama.AvailableModels()
	if err != nil {
		slog.Error("Server.llamaModelsHandler: failed to list models", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list models"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"models": infos,
		"total":  len(infos),
	}))
}
