package api

import (
	"net/http"
	"slices"
	"strings"

	"grimm.is/rnsgate/internal/config"
	"grimm.is/rnsgate/internal/i18n"
	"grimm.is/rnsgate/internal/validation"
)

// interfaceKey is the request key of the interface endpoints.
const interfaceKey = "interface"

// searchColumns are the grid columns of searchInterface, in sort precedence.
var searchColumns = []string{"enabled", "name", "interfaceType", "mode"}

// getSection answers {key: {fields}} on GET and {} otherwise.
func (s *Server) getSection(key, node string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			WriteJSON(w, http.StatusOK, map[string]any{})
			return
		}
		settings, ok := s.loadSettings(w, r)
		if !ok {
			return
		}
		fields, found := settings.Node(node)
		if !found {
			fields = map[string]string{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{key: fields})
	}
}

// setSection overlays the posted {key: {...}} fields onto node.
func (s *Server) setSection(key, node string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			WriteJSON(w, http.StatusOK, failed)
			return
		}
		p, ok := s.params(w, r, false)
		if !ok {
			return
		}
		settings, ok := s.loadSettings(w, r)
		if !ok {
			return
		}
		fields, _ := p.Section(key)
		if err := settings.SetNode(node, fields); err != nil {
			s.logger.Warn("Rejected settings write", "node", node, "error", err)
			WriteJSON(w, http.StatusOK, failed)
			return
		}
		s.validateAndSave(w, r, settings, key, node, nil)
	}
}

// validateAndSave validates the whole tree and persists it once when no
// message was produced. Messages under node are keyed "<key>.<field>",
// messages elsewhere keep their full node path. extra is merged into a
// successful answer.
func (s *Server) validateAndSave(w http.ResponseWriter, r *http.Request, settings *config.Settings, key, node string, extra map[string]any) {
	if !s.validate(w, settings, key, node) || !s.save(w, r, settings, key) {
		return
	}
	resp := map[string]any{"result": "saved"}
	for k, v := range extra {
		resp[k] = v
	}
	WriteJSON(w, http.StatusOK, resp)
}

// validate answers {"result":"failed"} with the validation messages when the
// tree is invalid. Messages under node are keyed by key.<field>.
func (s *Server) validate(w http.ResponseWriter, settings *config.Settings, key, node string) bool {
	errs := settings.Validate()
	if !errs.HasErrors() {
		return true
	}
	inside, outside := errs.Under(node)
	validations := make(map[string]string, len(errs))
	for field, msg := range inside {
		validations[key+"."+field] = msg
	}
	for field, msg := range outside {
		validations[field] = msg
	}
	s.metrics.RecordSettingsWrite(key, false)
	WriteJSON(w, http.StatusOK, map[string]any{"result": "failed", "validations": validations})
	return false
}

// save persists settings, answering 500 on failure.
func (s *Server) save(w http.ResponseWriter, r *http.Request, settings *config.Settings, key string) bool {
	if err := s.store.Save(settings); err != nil {
		s.logger.Error("Failed to save settings", "error", err)
		WriteErrorCtx(w, r, http.StatusInternalServerError, i18n.MsgSettingsSave, err)
		return false
	}
	s.metrics.RecordSettingsWrite(key, true)
	s.NotifySettingsChanged()
	return true
}

// handleSearchInterface serves the interface grid. Parameters come from
// the query or the POST body: searchPhrase, current, rowCount (<= 0 for all)
// and sort[<column>]=asc|desc.
func (s *Server) handleSearchInterface(w http.ResponseWriter, r *http.Request) {
	p, ok := s.params(w, r, true)
	if !ok {
		return
	}
	settings, ok := s.loadSettings(w, r)
	if !ok {
		return
	}

	phrase := strings.ToLower(strings.TrimSpace(p.String("searchPhrase", "")))
	current := max(1, validation.ParseInt(p.String("current", "1")))
	rowCount := validation.ParseInt(p.String("rowCount", "-1"))
	sortCol, desc := "name", false
	if sorts, ok := p.Section("sort"); ok {
		for _, col := range searchColumns {
			if dir, ok := sorts[col]; ok {
				sortCol, desc = col, strings.EqualFold(dir, "desc")
				break
			}
		}
	}

	rows := make([]map[string]string, 0, len(settings.Interfaces))
	for i := range settings.Interfaces {
		fields := settings.Interfaces[i].Fields()
		row := map[string]string{"uuid": settings.Interfaces[i].UUID}
		match := phrase == ""
		for _, col := range searchColumns {
			row[col] = fields[col]
			if !match && strings.Contains(strings.ToLower(fields[col]), phrase) {
				match = true
			}
		}
		if match {
			rows = append(rows, row)
		}
	}

	slices.SortStableFunc(rows, func(a, b map[string]string) int {
		c := strings.Compare(strings.ToLower(a[sortCol]), strings.ToLower(b[sortCol]))
		if desc {
			return -c
		}
		return c
	})

	total := len(rows)
	if rowCount > 0 {
		offset := min((current-1)*rowCount, total)
		rows = rows[offset:min(offset+rowCount, total)]
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"rows":     rows,
		"rowCount": len(rows),
		"total":    total,
		"current":  current,
	})
}

// handleGetInterface returns one record, or the defaults of a new record
// when no UUID is given. An unknown UUID answers {}.
func (s *Server) handleGetInterface(w http.ResponseWriter, r *http.Request) {
	uuid := r.PathValue("uuid")
	if uuid == "" {
		tmpl := config.NewInterfaceTemplate()
		WriteJSON(w, http.StatusOK, map[string]any{interfaceKey: tmpl.Fields()})
		return
	}

	settings, ok := s.loadSettings(w, r)
	if !ok {
		return
	}
	fields, found := settings.Node(config.InterfacePath(uuid))
	if !found {
		WriteJSON(w, http.StatusOK, map[string]any{})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{interfaceKey: fields})
}

func (s *Server) handleAddInterface(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSON(w, http.StatusOK, failed)
		return
	}
	p, ok := s.params(w, r, false)
	if !ok {
		return
	}
	settings, ok := s.loadSettings(w, r)
	if !ok {
		return
	}
	fields, _ := p.Section(interfaceKey)
	uuid := settings.AddInterface(fields)
	s.validateAndSave(w, r, settings, interfaceKey, config.InterfacePath(uuid), map[string]any{"uuid": uuid})
}

func (s *Server) handleSetInterface(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSON(w, http.StatusOK, failed)
		return
	}
	p, ok := s.params(w, r, false)
	if !ok {
		return
	}
	settings, ok := s.loadSettings(w, r)
	if !ok {
		return
	}
	path := config.InterfacePath(r.PathValue("uuid"))
	fields, _ := p.Section(interfaceKey)
	if err := settings.SetNode(path, fields); err != nil {
		WriteJSON(w, http.StatusOK, failed)
		return
	}
	s.validateAndSave(w, r, settings, interfaceKey, path, nil)
}

func (s *Server) handleDelInterface(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSON(w, http.StatusOK, failed)
		return
	}
	settings, ok := s.loadSettings(w, r)
	if !ok {
		return
	}
	if !settings.DeleteInterface(r.PathValue("uuid")) {
		WriteJSON(w, http.StatusOK, map[string]string{"result": "not found"})
		return
	}
	if !s.validate(w, settings, interfaceKey, "") || !s.save(w, r, settings, interfaceKey) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"result": "deleted"})
}

// handleToggleInterface sets enabled to the {enabled} path value when it
// is 0 or 1, and flips it otherwise.
func (s *Server) handleToggleInterface(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSON(w, http.StatusOK, failed)
		return
	}
	settings, ok := s.loadSettings(w, r)
	if !ok {
		return
	}
	iface := settings.Interface(r.PathValue("uuid"))
	if iface == nil {
		WriteJSON(w, http.StatusOK, failed)
		return
	}

	previous := iface.Enabled
	switch enabled := r.PathValue("enabled"); enabled {
	case "0", "1":
		iface.Enabled = enabled
	default:
		if previous == "1" {
			iface.Enabled = "0"
		} else {
			iface.Enabled = "1"
		}
	}
	if !s.validate(w, settings, interfaceKey, config.InterfacePath(iface.UUID)) || !s.save(w, r, settings, interfaceKey) {
		return
	}

	result := "Disabled"
	if iface.Enabled == "1" {
		result = "Enabled"
	}
	WriteJSON(w, http.StatusOK, map[string]any{"result": result, "changed": previous != iface.Enabled})
}
