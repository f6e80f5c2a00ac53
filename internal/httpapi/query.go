package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/elementstore/objstore/internal/objstore"
)

// reservedQueryParams are the control options, never treated as equality
// filters (§6: /query/{class}?field=value&_sort=…&_order=…&_limit=…&_offset=…).
var reservedQueryParams = map[string]bool{
	"_sort": true, "_order": true, "_limit": true, "_offset": true,
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	class := mux.Vars(r)["class"]

	opts := objstore.QueryOptions{
		Sort:    queryString(r, "_sort", ""),
		SortDir: queryString(r, "_order", "asc"),
		Limit:   queryInt(r, "_limit", 0),
		Offset:  queryInt(r, "_offset", 0),
	}
	for key, values := range r.URL.Query() {
		if reservedQueryParams[key] || len(values) == 0 {
			continue
		}
		opts.Filters = append(opts.Filters, objstore.Filter{Field: key, Value: values[0]})
	}

	objs, err := s.engine.Query(engineContext(r), class, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, objs)
}
