package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/opskernel/pluginhost/internal/auth"
	"github.com/opskernel/pluginhost/internal/middleware"
)

type tokenRequest struct {
	Subject string `json:"subject"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if !auth.AllowLoginAttempt(middleware.IPBasedKey(r)) {
		writeError(w, http.StatusTooManyRequests, errTooManyAttempts)
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subject == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest)
		return
	}

	token, err := auth.IssueToken(s.signingKey, req.Subject, time.Hour)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Registry.List())
}

type pluginIDRequest struct {
	PluginID string `json:"plugin_id"`
}

type installRequest struct {
	ZipPath string `json:"zip_path"`
}

func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	var req installRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ZipPath == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest)
		return
	}
	pluginID, err := s.manager.InstallFromZip(req.ZipPath)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.events.broadcast(eventMessage{Type: "installed", PluginID: pluginID})
	writeJSON(w, http.StatusOK, map[string]string{"plugin_id": pluginID})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req pluginIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PluginID == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest)
		return
	}
	if err := s.manager.ActivateWithRollback(req.PluginID); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.events.broadcast(eventMessage{Type: "activated", PluginID: req.PluginID})
	writeJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	var req pluginIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PluginID == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest)
		return
	}
	if err := s.manager.Deactivate(req.PluginID); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.events.broadcast(eventMessage{Type: "deactivated", PluginID: req.PluginID})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (s *Server) handleUninstall(w http.ResponseWriter, r *http.Request) {
	var req pluginIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PluginID == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest)
		return
	}
	if err := s.manager.Uninstall(req.PluginID); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.events.broadcast(eventMessage{Type: "uninstalled", PluginID: req.PluginID})
	writeJSON(w, http.StatusOK, map[string]string{"status": "uninstalled"})
}

type grantRequest struct {
	PluginID         string `json:"plugin_id"`
	PermissionString string `json:"permission"`
}

func (s *Server) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PluginID == "" || req.PermissionString == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest)
		return
	}
	if err := s.manager.GrantPermission(req.PluginID, req.PermissionString); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
}

func (s *Server) handleResolveDependencies(w http.ResponseWriter, r *http.Request) {
	var req pluginIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PluginID == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest)
		return
	}
	order, err := s.manager.ResolveDependencies(req.PluginID)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"order": order})
}

type storageGetRequest struct {
	PluginID string `json:"plugin_id"`
	Key      string `json:"key"`
}

func (s *Server) handleStorageGet(w http.ResponseWriter, r *http.Request) {
	var req storageGetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PluginID == "" || req.Key == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest)
		return
	}
	value, ok := s.manager.Storage.Get(req.PluginID, req.Key)
	writeJSON(w, http.StatusOK, map[string]interface{}{"value": value, "found": ok})
}

type storageSetRequest struct {
	PluginID string `json:"plugin_id"`
	Key      string `json:"key"`
	Value    string `json:"value"`
}

func (s *Server) handleStorageSet(w http.ResponseWriter, r *http.Request) {
	var req storageSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PluginID == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest)
		return
	}
	if err := s.manager.Storage.Set(req.PluginID, req.Key, req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

type fsReadRequest struct {
	PluginID string `json:"plugin_id"`
	Path     string `json:"path"`
}

func (s *Server) handleFSRead(w http.ResponseWriter, r *http.Request) {
	var req fsReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PluginID == "" || req.Path == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest)
		return
	}
	contents, err := s.manager.FSGuard.ReadFile(req.PluginID, req.Path)
	if err != nil {
		writeError(w, http.StatusForbidden, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"contents": contents})
}

type fsWriteRequest struct {
	PluginID string `json:"plugin_id"`
	Path     string `json:"path"`
	Contents string `json:"contents"`
}

func (s *Server) handleFSWrite(w http.ResponseWriter, r *http.Request) {
	var req fsWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PluginID == "" || req.Path == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest)
		return
	}
	if err := s.manager.FSGuard.WriteFile(req.PluginID, req.Path, req.Contents); err != nil {
		writeError(w, http.StatusForbidden, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "written"})
}

type netRequestRequest struct {
	PluginID string            `json:"plugin_id"`
	Method   string            `json:"method"`
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers"`
	Body     string            `json:"body"`
}

func (s *Server) handleNetRequest(w http.ResponseWriter, r *http.Request) {
	var req netRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PluginID == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest)
		return
	}
	resp, err := s.manager.NetGuard.Do(req.PluginID, netguardRequest(req))
	if err != nil {
		writeError(w, http.StatusForbidden, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type auditExportRequest struct {
	OutPath string `json:"out_path"`
}

func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	var req auditExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OutPath == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest)
		return
	}
	if err := s.manager.Audit.ExportCSV(req.OutPath); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "exported"})
}
