package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/keyvaldb/keyval/lib/fts"
	"github.com/keyvaldb/keyval/lib/kv"
	"github.com/keyvaldb/keyval/rpc/common"
	"github.com/keyvaldb/keyval/rpc/serializer"
)

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (s *Server) handleAtomic(w http.ResponseWriter, r *http.Request) {
	var req common.AtomicRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.validateAtomic(req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, err)
		return
	}

	op := s.store.Atomic()
	for _, check := range req.Checks {
		key, err := common.ToKey(check.Key)
		if err != nil {
			s.respondError(w, r, http.StatusBadRequest, err)
			return
		}
		op.Check(kv.Check{Key: key, Versionstamp: check.Versionstamp})
	}
	for _, m := range req.Mutations {
		if err := s.stageMutation(op, m); err != nil {
			s.respondError(w, r, http.StatusBadRequest, err)
			return
		}
	}

	result, err := op.Commit()
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, r, http.StatusOK, result)
}

func (s *Server) stageMutation(op *kv.AtomicOperation, m common.MutationDTO) error {
	key, err := common.ToKey(m.Key)
	if err != nil {
		return err
	}
	switch m.Type {
	case "set":
		if m.ExpireIn > 0 {
			op.SetE(key, m.Value, time.Duration(m.ExpireIn)*time.Second)
		} else {
			op.Set(key, m.Value)
		}
	case "delete":
		op.Delete(key)
	case "sum", "max", "min":
		n, err := toInt64(m.Value)
		if err != nil {
			return err
		}
		switch m.Type {
		case "sum":
			op.Sum(key, n)
		case "max":
			op.Max(key, n)
		case "min":
			op.Min(key, n)
		}
	case "append", "prepend":
		values, ok := m.Value.([]any)
		if !ok {
			return errors.New("server: append/prepend value must be an array")
		}
		if m.Type == "append" {
			op.Append(key, values)
		} else {
			op.Prepend(key, values)
		}
	default:
		return errors.New("server: unknown mutation type " + m.Type)
	}
	return nil
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	var req common.GetRequest
	if !s.decode(w, r, &req) {
		return
	}
	key, err := common.ToKey(req.Key)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.validateKey(key); err != nil {
		s.respondError(w, r, http.StatusBadRequest, err)
		return
	}

	entry, err := s.store.Get(key)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	if entry == nil {
		s.respondError(w, r, http.StatusNotFound, errors.New("server: key not found"))
		return
	}
	s.respond(w, r, http.StatusOK, common.FromEntry(*entry))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var req common.ListRequest
	if !s.decode(w, r, &req) {
		return
	}
	prefix, err := common.ToKey(req.Prefix)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, err)
		return
	}
	limit := clamp(req.Limit, s.config.Limits.MaxSearchLimit)

	entries, err := s.store.List(prefix, limit)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, r, http.StatusOK, common.FromEntries(entries))
}

func (s *Server) handleListIndexes(w http.ResponseWriter, r *http.Request) {
	indexes, err := s.fts.ListIndexes()
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, r, http.StatusOK, indexes)
}

func (s *Server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	var req common.CreateIndexRequest
	if !s.decode(w, r, &req) {
		return
	}
	prefix, err := common.ToKey(req.Prefix)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, err)
		return
	}

	idx, err := s.fts.CreateIndex(prefix, fts.IndexOptions{
		Fields:   req.Fields,
		Tokenize: req.Tokenize,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, fts.ErrNoFields) || errors.Is(err, fts.ErrBadField) {
			status = http.StatusBadRequest
		} else if errors.Is(err, fts.ErrFTS5Unavailable) {
			status = http.StatusNotImplemented
		}
		s.respondError(w, r, status, err)
		return
	}
	s.respond(w, r, http.StatusCreated, idx)
}

func (s *Server) handleRemoveIndex(w http.ResponseWriter, r *http.Request) {
	var req common.RemoveIndexRequest
	if !s.decode(w, r, &req) {
		return
	}
	prefix, err := common.ToKey(req.Prefix)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.fts.RemoveIndex(prefix); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req common.SearchRequest
	if !s.decode(w, r, &req) {
		return
	}
	prefix, err := common.ToKey(req.Prefix)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, err)
		return
	}

	entries, err := s.fts.Search(prefix, req.Query, fts.SearchOptions{
		Limit: clamp(req.Limit, s.config.Limits.MaxSearchLimit),
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, fts.ErrNoIndex) {
			status = http.StatusNotFound
		}
		s.respondError(w, r, status, err)
		return
	}
	s.respond(w, r, http.StatusOK, common.FromEntries(entries))
}

func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, s.store.Metrics().Snapshot())
}

// --------------------------------------------------------------------------
// Encoding Helpers
// --------------------------------------------------------------------------

// decode reads and deserializes the request body. On failure it writes the
// error response itself and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	ser, err := serializer.ForContentType(r.Header.Get("Content-Type"))
	if err != nil {
		s.respondError(w, r, http.StatusUnsupportedMediaType, err)
		return false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodySize()))
	if err != nil {
		s.respondError(w, r, http.StatusRequestEntityTooLarge, err)
		return false
	}
	if err := ser.Unmarshal(body, v); err != nil {
		s.respondError(w, r, http.StatusBadRequest, err)
		return false
	}
	return true
}

// maxBodySize bounds a request body at a full atomic batch of maximal keys
// and values plus framing slack, so any request that passes per-field
// validation also fits through the reader.
func (s *Server) maxBodySize() int64 {
	l := s.config.Limits
	return int64(l.MaxMutations)*int64(l.MaxKeySize+l.MaxValueSize) + 64*1024
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	ser, err := serializer.ForContentType(r.Header.Get("Accept"))
	if err != nil {
		ser = serializer.NewJSONSerializer()
	}
	body, err := ser.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("response serialization failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ser.ContentType())
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	s.respond(w, r, status, common.ErrorResponse{Error: err.Error()})
}

func clamp(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}
