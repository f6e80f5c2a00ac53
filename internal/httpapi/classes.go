package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/elementstore/objstore/internal/objstore"
)

func (s *Server) handleListClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := s.engine.ListClasses(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, classes)
}

func (s *Server) handleGetClass(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cd, err := s.engine.GetClass(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cd)
}

func (s *Server) handleGetClassProps(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	props, err := s.engine.GetClassProps(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, props)
}

// handleUpsertClass serves POST /class. The body's own class_id selects
// which meta-class it targets (@class by default, or @prop/@storage when
// the caller is defining a property or a storage binding — §8 scenario 1
// posts an @prop body to this same endpoint).
func (s *Server) handleUpsertClass(w http.ResponseWriter, r *http.Request) {
	var body objstore.Object
	if !decodeJSON(w, r, &body) {
		return
	}
	metaClass := body.ClassID()
	if metaClass == "" {
		metaClass = objstore.ClassMetaClass
	}
	ctx := objstore.WithCapabilities(r.Context(), capabilitiesFromRequest(r))
	ctx = objstore.WithOriginConnectionID(ctx, originConnectionIDFromRequest(r))
	result, err := s.engine.SetObject(ctx, metaClass, body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteClass(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx := objstore.WithCapabilities(r.Context(), capabilitiesFromRequest(r))
	if err := s.engine.DeleteClass(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
