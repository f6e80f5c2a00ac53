package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/elementstore/objstore/internal/apierror"
)

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	cleared, err := s.engine.Reset(engineContext(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if s.genesis != nil && s.genesisRoot != "" {
		if _, err := s.genesis.LoadClassesOnly(r.Context(), s.genesisRoot); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": cleared})
}

func (s *Server) handleGenesisRun(w http.ResponseWriter, r *http.Request) {
	if s.genesis == nil {
		writeError(w, apierror.Unavailable("genesis loader not configured"))
		return
	}
	result, err := s.genesis.Load(r.Context(), s.genesisRoot)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGenesisInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"configured": s.genesis != nil,
		"root":       s.genesisRoot,
	})
}

func (s *Server) handleGenesisData(w http.ResponseWriter, r *http.Request) {
	classes, err := s.engine.ListClasses(engineContext(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, classes)
}

func (s *Server) handleExportCreate(w http.ResponseWriter, r *http.Request) {
	if s.exports == nil {
		writeError(w, apierror.Unavailable("export store not configured"))
		return
	}
	bundle, err := s.engine.Export(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.exports.Save(r.Context(), bundle); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bundle)
}

func (s *Server) handleExportList(w http.ResponseWriter, r *http.Request) {
	if s.exports == nil {
		writeError(w, apierror.Unavailable("export store not configured"))
		return
	}
	list, err := s.exports.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleExportGet(w http.ResponseWriter, r *http.Request) {
	if s.exports == nil {
		writeError(w, apierror.Unavailable("export store not configured"))
		return
	}
	hash := mux.Vars(r)["hash"]
	bundle, ok, err := s.exports.Get(r.Context(), hash)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apierror.NotFound("export", hash))
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleExportDelete(w http.ResponseWriter, r *http.Request) {
	if s.exports == nil {
		writeError(w, apierror.Unavailable("export store not configured"))
		return
	}
	hash := mux.Vars(r)["hash"]
	deleted, err := s.exports.Delete(r.Context(), hash)
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, apierror.NotFound("export", hash))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleRunTests(w http.ResponseWriter, r *http.Request) {
	report := s.engine.RunTests(r.Context())
	writeJSON(w, http.StatusOK, report)
}
