package ctlplane

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/rnsgate/internal/config"
	"grimm.is/rnsgate/internal/validation"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var configTemplates = template.Must(template.New("").Funcs(template.FuncMap{
	"yesno": yesno,
	"join":  strings.Join,
}).ParseFS(templateFS, "templates/*.tmpl"))

func yesno(v string) string {
	if v == "1" {
		return "yes"
	}
	return "no"
}

type param struct {
	Key   string
	Value string
}

type renderedInterface struct {
	Name   string
	Type   string
	Params []param
}

type renderData struct {
	*config.Settings
	Interfaces  []renderedInterface
	NodeEnabled string
	StaticPeers []string
}

// renderedFile is one daemon config produced from the settings tree.
type renderedFile struct {
	Path    string
	Content []byte
}

// render produces the rnsd and lxmd configuration files for s.
func (e *Executor) render(s *config.Settings) ([]renderedFile, error) {
	s = s.Clone()
	s.ApplyDefaults()

	data := renderData{
		Settings:    s,
		NodeEnabled: "0",
		StaticPeers: validation.SplitList(s.Propagation.StaticPeers),
	}
	if s.Propagation.Enabled == "1" && s.Propagation.EnableNode == "1" {
		data.NodeEnabled = "1"
	}
	for _, iface := range s.Interfaces {
		data.Interfaces = append(data.Interfaces, renderInterface(iface))
	}

	var files []renderedFile
	for _, f := range []struct{ tmpl, path string }{
		{"reticulum.tmpl", e.rnsConfigFile()},
		{"lxmd.tmpl", e.lxmdConfigFile()},
	} {
		var buf bytes.Buffer
		if err := configTemplates.ExecuteTemplate(&buf, f.tmpl, data); err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", f.tmpl, err)
		}
		files = append(files, renderedFile{Path: f.path, Content: buf.Bytes()})
	}
	return files, nil
}

func renderInterface(iface config.Interface) renderedInterface {
	out := renderedInterface{Name: iface.Name, Type: iface.InterfaceType}
	add := func(key, value string) {
		if value != "" {
			out.Params = append(out.Params, param{key, value})
		}
	}
	add("enabled", yesno(iface.Enabled))
	add("mode", iface.Mode)
	add("outgoing", yesno(iface.Outgoing))

	switch iface.InterfaceType {
	case config.TypeTCPServer:
		add("listen_ip", iface.TCPServerListenIP)
		add("listen_port", iface.TCPServerListenPort)
	case config.TypeTCPClient:
		add("target_host", iface.TCPClientTargetHost)
		add("target_port", iface.TCPClientTargetPort)
	case config.TypeUDP:
		add("listen_ip", iface.UDPListenIP)
		add("listen_port", iface.UDPListenPort)
		add("forward_ip", iface.UDPForwardIP)
		add("forward_port", iface.UDPForwardPort)
	case config.TypeAuto:
		add("group_id", iface.AutoGroupID)
		add("discovery_scope", iface.AutoDiscoveryScope)
		add("discovery_port", iface.AutoDiscoveryPort)
		add("data_port", iface.AutoDataPort)
		add("devices", strings.Join(validation.SplitList(iface.AutoDevices), ", "))
	case config.TypeRNode:
		add("port", iface.Port)
		add("frequency", iface.Frequency)
		add("bandwidth", iface.Bandwidth)
		add("txpower", iface.TXPower)
		add("spreadingfactor", iface.SpreadingFactor)
		add("codingrate", iface.CodingRate)
	case config.TypeSerial, config.TypeKISS, config.TypeAX25KISS:
		add("port", iface.Port)
		add("speed", iface.Speed)
	case config.TypeI2P:
		add("peers", strings.Join(validation.SplitList(iface.I2PPeers), ", "))
	}
	return out
}

func (e *Executor) template(action string) (string, error) {
	settings, err := e.store.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load settings: %w", err)
	}
	files, err := e.render(settings)
	if err != nil {
		return "", err
	}

	switch action {
	case TemplateReload:
		var out []string
		for _, f := range files {
			changed, err := writeIfChanged(f.Path, f.Content)
			if err != nil {
				return "", err
			}
			if changed {
				e.logger.Info("Config rendered", "file", f.Path)
				out = append(out, "wrote "+f.Path)
			}
		}
		if len(out) == 0 {
			return "OK", nil
		}
		return strings.Join(out, "\n"), nil

	case TemplateDiff:
		var out strings.Builder
		for _, f := range files {
			current, err := os.ReadFile(f.Path)
			if err != nil && !os.IsNotExist(err) {
				return "", err
			}
			if bytes.Equal(current, f.Content) {
				continue
			}
			text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
				A:        difflib.SplitLines(string(current)),
				B:        difflib.SplitLines(string(f.Content)),
				FromFile: f.Path,
				ToFile:   f.Path + " (pending)",
				Context:  3,
			})
			if err != nil {
				return "", err
			}
			out.WriteString(text)
		}
		return out.String(), nil
	}
	return "", fmt.Errorf("unknown template action %q", action)
}

// writeIfChanged replaces path atomically when its content differs.
func writeIfChanged(path string, content []byte) (bool, error) {
	if current, err := os.ReadFile(path); err == nil && bytes.Equal(current, content) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".rnsgate-*")
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return false, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return false, fmt.Errorf("failed to install %s: %w", path, err)
	}
	return true, nil
}
