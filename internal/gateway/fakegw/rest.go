package fakegw

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// WriteVendorError answers 200 with an embedded gateway error, the way the
// gateway reports failures such as duplicate objects.
func WriteVendorError(w http.ResponseWriter, code, text string) {
	writeJSON(w, http.StatusOK, map[string]string{"error": code, "errorText": text})
}

func (s *Server) handleSites(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[string]any{
		"$base":       "Collection",
		"displayName": "BACnet",
		".sys":        map[string]any{"$base": "Collection", "nodeType": "SYSTEM"},
	}
	for site := range s.sites {
		out[site] = map[string]any{"$base": "Collection", "nodeType": "NETWORK", "displayName": site}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	site := chi.URLParam(r, "site")

	s.mu.Lock()
	defer s.mu.Unlock()

	devices, ok := s.sites[site]
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	out := map[string]any{
		"$base":       "Collection",
		"displayName": site,
		"nodeType":    "NETWORK",
		"import":      map[string]any{"$base": "Collection", "nodeType": "FOLDER"},
	}
	for key, dev := range devices {
		out[key] = map[string]any{"$base": "Collection", "nodeType": "DEVICE", "displayName": dev.DisplayName}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	site, device := chi.URLParam(r, "site"), chi.URLParam(r, "device")

	s.mu.Lock()
	defer s.mu.Unlock()

	dev, ok := s.sites[site][device]
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	out := map[string]any{
		"$base":       "Collection",
		"displayName": dev.DisplayName,
		"nodeType":    "DEVICE",
		"truncated":   "false",
	}
	for id, obj := range dev.Objects {
		out[id] = map[string]any{"$base": "Object", "displayName": obj.Name}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	site, device := chi.URLParam(r, "site"), chi.URLParam(r, "device")

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	props := make(map[string]string, len(body))
	for key, raw := range body {
		var member struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(raw, &member); err == nil {
			props[key] = member.Value
		}
	}
	id := props["object-identifier"]
	if id == "" {
		WriteVendorError(w, "4", "Missing object identifier")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dev, ok := s.sites[site][device]
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if _, exists := dev.Objects[id]; exists {
		WriteVendorError(w, "3", "Already exists")
		return
	}
	obj := &Object{Name: props["object-name"], Properties: map[string]string{}}
	for k, v := range props {
		if k != "object-identifier" && k != "object-name" {
			obj.Properties[k] = v
		}
	}
	dev.Objects[id] = obj
	writeJSON(w, http.StatusCreated, map[string]any{"$base": "Object", "object-identifier": id})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	site, device, id := chi.URLParam(r, "site"), chi.URLParam(r, "device"), chi.URLParam(r, "object")

	s.mu.Lock()
	defer s.mu.Unlock()

	dev, ok := s.sites[site][device]
	if !ok || dev.Objects[id] == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	delete(dev.Objects, id)
	w.WriteHeader(http.StatusNonAuthoritativeInfo)
}

func (s *Server) handleWriteProperty(w http.ResponseWriter, r *http.Request) {
	site, device, id := chi.URLParam(r, "site"), chi.URLParam(r, "device"), chi.URLParam(r, "object")
	prop := chi.URLParam(r, "*")

	var body struct {
		Base  string `json:"$base"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Base == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj := s.objectLocked(site, device, id)
	if obj == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if prop == "object-name" {
		obj.Name = body.Value
	} else {
		obj.Properties[prop] = body.Value
	}
	writeJSON(w, http.StatusOK, map[string]any{"$base": body.Base, "value": body.Value})
}

// multiItem is one entry of a batch request's values list.
type multiItem struct {
	Base  string  `json:"$base"`
	Via   string  `json:"via"`
	Value *string `json:"value"`
}

// handleMulti serves batch reads (a request with "lifetime") and batch
// writes.
func (s *Server) handleMulti(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Lifetime json.RawMessage            `json:"lifetime"`
		Values   map[string]json.RawMessage `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var keys []int
	items := map[int]multiItem{}
	for key, raw := range body.Values {
		idx, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		var item multiItem
		if err := json.Unmarshal(raw, &item); err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		keys = append(keys, idx)
		items[idx] = item
	}
	sort.Ints(keys)

	s.mu.Lock()
	defer s.mu.Unlock()

	if body.Lifetime != nil {
		values := map[string]any{"$base": "List"}
		for _, idx := range keys {
			item := items[idx]
			entry := map[string]any{"$base": "String", "via": item.Via}
			if v, ok := s.readViaLocked(item.Via); ok {
				entry["value"] = v
			}
			values[strconv.Itoa(idx)] = entry
		}
		writeJSON(w, http.StatusOK, map[string]any{"$base": "Struct", "values": values})
		return
	}

	for _, idx := range keys {
		item := items[idx]
		obj, prop := s.resolveViaLocked(item.Via)
		if obj == nil {
			WriteVendorError(w, "31", "Unknown object")
			return
		}
		if item.Value != nil {
			obj.Properties[prop] = *item.Value
		}
	}
	w.WriteHeader(http.StatusNonAuthoritativeInfo)
}

// resolveViaLocked maps "/.bacnet/site/device/TYPE,inst/prop" to an object
// and property name.
func (s *Server) resolveViaLocked(via string) (*Object, string) {
	rest, ok := strings.CutPrefix(via, "/.bacnet/")
	if !ok {
		return nil, ""
	}
	parts := strings.SplitN(rest, "/", 4)
	if len(parts) != 4 {
		return nil, ""
	}
	return s.objectLocked(parts[0], parts[1], parts[2]), parts[3]
}

func (s *Server) readViaLocked(via string) (string, bool) {
	obj, prop := s.resolveViaLocked(via)
	if obj == nil {
		return "", false
	}
	if prop == "object-name" {
		return obj.Name, true
	}
	v, ok := obj.Properties[prop]
	return v, ok
}
