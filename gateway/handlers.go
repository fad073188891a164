package gateway

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/engine"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/flowstore"
)

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		s.writeError(w, errors.WrapInvalid(err, "gateway", "decode", "read request body"))
		return false
	}
	if err := json.Unmarshal(body, into); err != nil {
		s.writeError(w, errors.WrapInvalid(err, "gateway", "decode", "parse request body"))
		return false
	}
	return true
}

// Flow CRUD

func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := s.flows.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"flows": flows})
}

func (s *Server) handleCreateFlow(w http.ResponseWriter, r *http.Request) {
	var flow flowstore.Flow
	if !s.decode(w, r, &flow) {
		return
	}
	if err := s.flows.Create(r.Context(), &flow); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, &flow)
}

func (s *Server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := s.flows.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, flow)
}

func (s *Server) handleUpdateFlow(w http.ResponseWriter, r *http.Request) {
	var flow flowstore.Flow
	if !s.decode(w, r, &flow) {
		return
	}
	flow.ID = r.PathValue("id")
	if err := s.flows.Update(r.Context(), &flow); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &flow)
}

func (s *Server) handleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.flows.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePublishFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.flows.Publish(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "published"})
}

func (s *Server) handleUnpublishFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.flows.Unpublish(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "unpublished"})
}

// Execution

type testExecutionRequest struct {
	FlowID string `json:"flow_id"`
	ItemID string `json:"item_id"`
}

type testExecutionResponse struct {
	Matched bool                    `json:"matched"`
	Result  *engine.ExecutionResult `json:"result,omitempty"`
}

// handleTestExecution runs one flow against one item and returns the full
// trace, log, and final payload. A non-matching trigger is a normal response,
// not an error. An execution failure still carries the partial trace and log
// so flow authors can debug.
func (s *Server) handleTestExecution(w http.ResponseWriter, r *http.Request) {
	var req testExecutionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.FlowID == "" || req.ItemID == "" {
		s.writeError(w, errors.WrapInvalid(
			stderrors.New("flow_id and item_id are required"),
			"gateway", "handleTestExecution", "validate request"))
		return
	}

	flow, err := s.flows.Get(r.Context(), req.FlowID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.engine.TestExecution(r.Context(), flow, req.ItemID)
	if err != nil {
		if stderrors.Is(err, engine.ErrNoMatch) {
			s.writeJSON(w, http.StatusOK, testExecutionResponse{Matched: false})
			return
		}
		if result != nil {
			s.stream.Broadcast(req.FlowID, result.Log)
			s.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  "execution failed",
				"result": result,
			})
			return
		}
		s.writeError(w, err)
		return
	}

	s.stream.Broadcast(req.FlowID, result.Log)
	s.writeJSON(w, http.StatusOK, testExecutionResponse{Matched: true, Result: result})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	summary, err := s.engine.RunBatch(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}
