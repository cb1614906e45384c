package fakegw

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// pasteTask is a copy/paste job created by createpasteobjecttask.
type pasteTask struct {
	id        string
	submitted bool
	polls     int
	site      string
	device    string
	sourceID  string
	targetID  string
	name      string
}

// parseDeviceRef splits "//site/device.DEVdevice".
func parseDeviceRef(ref string) (site, device string, ok bool) {
	site, rest, ok := parseObjectRef(ref)
	if !ok {
		return "", "", false
	}
	device, _, _ = strings.Cut(rest, ".")
	return site, device, device != ""
}

// parseObjectRef splits "//site/device.OBJ" into site and "device.OBJ".
func parseObjectRef(ref string) (site, rest string, ok bool) {
	ref = strings.Trim(ref, `"`)
	trimmed, found := strings.CutPrefix(ref, "//")
	if !found {
		return "", "", false
	}
	return strings.Cut(trimmed, "/")
}

// parseLegacyObject splits "//site/device.AV1000" into site, device and the
// REST object ID "AV,1000".
func parseLegacyObject(ref string) (site, device, id string, ok bool) {
	site, rest, ok := parseObjectRef(ref)
	if !ok {
		return "", "", "", false
	}
	device, obj, found := strings.Cut(rest, ".")
	if !found {
		return "", "", "", false
	}
	i := len(obj)
	for i > 0 && obj[i-1] >= '0' && obj[i-1] <= '9' {
		i--
	}
	if i == 0 || i == len(obj) {
		return "", "", "", false
	}
	return site, device, obj[:i] + "," + obj[i:], true
}

// firstRef decodes a JSON list of references and returns its first element.
func firstRef(list string) string {
	var refs []string
	if err := json.Unmarshal([]byte(list), &refs); err != nil || len(refs) == 0 {
		return ""
	}
	return refs[0]
}

func (s *Server) deviceExistsLocked(ref string) bool {
	site, device, ok := parseDeviceRef(ref)
	if !ok {
		return false
	}
	_, exists := s.sites[site][device]
	return exists
}

func (s *Server) handleStartExport(w http.ResponseWriter, r *http.Request) {
	ref := r.PostFormValue("deviceRef")

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.deviceExistsLocked(ref) {
		writeJSON(w, http.StatusOK, map[string]any{"success": false})
		return
	}
	_, device, _ := parseDeviceRef(ref)
	s.exports = 0
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"filepath": "C:/ProgramData/exports",
		"filename": "DEV" + device,
	})
}

func (s *Server) handleCheckExport(w http.ResponseWriter, r *http.Request) {
	if r.PostFormValue("filepath") == "" || r.PostFormValue("filename") == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.exports++
	status := 0
	if !s.ExportNeverReady && s.exports > s.ExportPolls {
		status = 1
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

func (s *Server) handleFetchExport(w http.ResponseWriter, r *http.Request) {
	if r.PostFormValue("saveDBToken") == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	data := s.DatabaseBytes
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck // test server
}

func (s *Server) handleLoadDatabase(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.storeUploadLocked(r, "loadDBFromFile")
	ok := s.deviceExistsLocked(r.FormValue("deviceRef"))
	writeJSON(w, http.StatusOK, map[string]any{"success": ok})
}

func (s *Server) handleWaitOnline(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.deviceExistsLocked(firstRef(r.PostFormValue("deviceRef"))) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"online": true})
}

func (s *Server) handleSuggestPaste(w http.ResponseWriter, r *http.Request) {
	if firstRef(r.PostFormValue("refs")) == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, []any{})
}

func (s *Server) handleCreatePasteTask(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTask++
	id := fmt.Sprintf("task-%d", s.nextTask)
	s.tasks[id] = &pasteTask{id: id}
	writeJSON(w, http.StatusOK, map[string]any{"taskid": id})
}

func (s *Server) handlePaste(w http.ResponseWriter, r *http.Request) {
	var data []struct {
		Ref      string `json:"ref"`
		Name     string `json:"name"`
		Instance int    `json:"instance"`
	}
	if err := json.Unmarshal([]byte(r.PostFormValue("data")), &data); err != nil || len(data) != 1 {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	site, device, id, ok := parseLegacyObject(data[0].Ref)
	if !ok {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[r.PostFormValue("taskID")]
	if !exists || s.objectLocked(site, device, id) == nil {
		WriteVendorError(w, "2", "Unknown task or object")
		return
	}
	typ, _, _ := strings.Cut(id, ",")
	task.submitted = true
	task.site, task.device, task.sourceID = site, device, id
	task.targetID = fmt.Sprintf("%s,%d", typ, data[0].Instance)
	task.name = data[0].Name
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handlePasteProgress(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Another client's finished task is always in the shared list.
	list := []map[string]any{{"taskID": "task-foreign", "progress": 100}}
	for _, task := range s.tasks {
		if !task.submitted {
			continue
		}
		task.polls++
		progress := 50
		if !s.PasteNeverCompletes && task.polls > s.PastePolls {
			progress = 100
			s.completePasteLocked(task)
		}
		list = append(list, map[string]any{"taskID": task.id, "progress": progress})
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) completePasteLocked(task *pasteTask) {
	src := s.objectLocked(task.site, task.device, task.sourceID)
	dev := s.sites[task.site][task.device]
	if src == nil || dev == nil || dev.Objects[task.targetID] != nil {
		return
	}
	cp := &Object{Name: task.name, Properties: make(map[string]string, len(src.Properties))}
	for k, v := range src.Properties {
		cp.Properties[k] = v
	}
	dev.Objects[task.targetID] = cp
}

func (s *Server) handleMergedParams(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[r.PostFormValue("taskID")]
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"taskID": task.id,
		"target": fmt.Sprintf("//%s/%s.%s", task.site, task.device, strings.Replace(task.targetID, ",", "", 1)),
	})
}

func (s *Server) handleUploadObject(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.storeUploadLocked(r, "objectFile-button")
	if !s.deviceExistsLocked(firstRef(r.FormValue("deviceRef"))) {
		writeJSON(w, http.StatusOK, map[string]any{"success": false})
		return
	}
	u := s.UploadedObject
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"objInfo": []map[string]any{{
			"file": u.File, "type": u.Type, "instance": u.Instance, "objName": u.Name,
		}},
	})
}

func (s *Server) handleRestoreObject(w http.ResponseWriter, r *http.Request) {
	var list []struct {
		Name     string `json:"name"`
		Ref      string `json:"ref"`
		File     string `json:"file"`
		Instance int    `json:"instance"`
	}
	if err := json.Unmarshal([]byte(r.PostFormValue("objList")), &list); err != nil || len(list) == 0 {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	site, device, id, ok := parseLegacyObject(list[0].Ref)
	if !ok {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dev, exists := s.sites[site][device]
	if !exists || list[0].File != s.UploadedObject.File {
		writeJSON(w, http.StatusOK, []map[string]any{{"status": "Failed"}})
		return
	}
	typ, _, _ := strings.Cut(id, ",")
	dev.Objects[fmt.Sprintf("%s,%d", typ, list[0].Instance)] = &Object{Name: list[0].Name, Properties: map[string]string{}}
	writeJSON(w, http.StatusOK, []map[string]any{{"status": "Restored"}})
}

func (s *Server) handleBackupObject(w http.ResponseWriter, r *http.Request) {
	var refs []string
	if err := json.Unmarshal([]byte(r.PostFormValue("saveObjectRef")), &refs); err != nil || len(refs) == 0 {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ref := range refs {
		site, device, id, ok := parseLegacyObject(ref)
		if !ok || s.objectLocked(site, device, id) == nil {
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "result": "Unknown object " + ref})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"file":    "backup-1",
		"result":  fmt.Sprintf("%d objects saved", len(refs)),
	})
}

func (s *Server) handleSaveObjectFile(w http.ResponseWriter, r *http.Request) {
	if r.PostFormValue("file") == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	data := s.ObjectFileBytes
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck // test server
}

func (s *Server) handleSaveProgram(w http.ResponseWriter, r *http.Request) {
	ref := r.PostFormValue("PGObjRef")
	site, device, id, ok := parseLegacyObject(ref)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !ok || s.objectLocked(site, device, id) == nil {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ERROR: unknown program object")
		return
	}
	s.programs[ref] = r.PostFormValue("ProgramText")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *Server) storeUploadLocked(r *http.Request, field string) {
	f, _, err := r.FormFile(field)
	if err != nil {
		return
	}
	defer f.Close()
	if data, err := io.ReadAll(f); err == nil {
		s.uploads[field] = data
	}
}
