package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/elementstore/objstore/internal/objstore"
)

// engineContext attaches the per-request capability flags and echo
// suppression hint derived from headers (§6) to r's context.
func engineContext(r *http.Request) context.Context {
	ctx := objstore.WithCapabilities(r.Context(), capabilitiesFromRequest(r))
	return objstore.WithOriginConnectionID(ctx, originConnectionIDFromRequest(r))
}

func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	class := mux.Vars(r)["class"]
	objs, err := s.engine.Query(engineContext(r), class, objstore.QueryOptions{})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, objs)
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	obj, ok, err := s.engine.GetObject(engineContext(r), vars["class"], vars["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, notFoundErr(vars["class"], vars["id"]))
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

func (s *Server) handleGetField(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	obj, ok, err := s.engine.GetObject(engineContext(r), vars["class"], vars["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, notFoundErr(vars["class"], vars["id"]))
		return
	}
	value := obj[vars["prop"]]
	value = s.resolveRelationOneLevel(r, vars["class"], vars["prop"], value)
	writeJSON(w, http.StatusOK, map[string]any{vars["prop"]: value})
}

// resolveRelationOneLevel expands a relation field's id(s) into the target
// object(s), one level deep, per §6's GET /store/{class}/{id}/{prop}.
func (s *Server) resolveRelationOneLevel(r *http.Request, class, prop string, value any) any {
	props, err := s.engine.GetClassProps(engineContext(r), class)
	if err != nil {
		return value
	}
	var pd *objstore.PropDef
	for i := range props {
		if props[i].Key == prop {
			pd = &props[i]
			break
		}
	}
	if pd == nil || pd.DataType != objstore.TypeRelation {
		return value
	}
	switch v := value.(type) {
	case string:
		return s.resolveOne(r, pd.ObjectClassID, v)
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			id, ok := item.(string)
			if !ok {
				continue
			}
			out = append(out, s.resolveOne(r, pd.ObjectClassID, id))
		}
		return out
	default:
		return value
	}
}

func (s *Server) resolveOne(r *http.Request, candidates []string, id string) any {
	for _, class := range candidates {
		if obj, ok, err := s.engine.GetObject(engineContext(r), class, id); err == nil && ok {
			return obj
		}
	}
	return id
}

func (s *Server) handleSetField(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body struct {
		Value any `json:"value"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	input := objstore.Object{objstore.FieldID: vars["id"], vars["prop"]: body.Value}
	result, err := s.engine.SetObject(engineContext(r), vars["class"], input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateObject(w http.ResponseWriter, r *http.Request) {
	class := mux.Vars(r)["class"]
	var body objstore.Object
	if !decodeJSON(w, r, &body) {
		return
	}
	delete(body, objstore.FieldID)
	result, err := s.engine.SetObject(engineContext(r), class, body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleUpdateObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body objstore.Object
	if !decodeJSON(w, r, &body) {
		return
	}
	body[objstore.FieldID] = vars["id"]
	result, err := s.engine.SetObject(engineContext(r), vars["class"], body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	deleted, err := s.engine.DeleteObject(engineContext(r), vars["class"], vars["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, notFoundErr(vars["class"], vars["id"]))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	obj, class, ok, err := s.engine.Find(engineContext(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, notFoundErr("*", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"class_id": class, "object": obj})
}
