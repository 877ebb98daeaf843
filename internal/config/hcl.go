package config

import (
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// ParseSettings decodes an HCL settings document and applies defaults.
// filename is only used in diagnostics.
func ParseSettings(filename string, data []byte) (*Settings, error) {
	// hclsimple picks the syntax from the extension.
	if ext := filepath.Ext(filename); ext != ".hcl" && ext != ".json" {
		filename += ".hcl"
	}

	var s Settings
	if len(data) > 0 {
		if err := hclsimple.Decode(filename, data, nil, &s); err != nil {
			return nil, fmt.Errorf("failed to decode settings: %w", err)
		}
	}
	s.ApplyDefaults()
	return &s, nil
}

// MarshalSettings renders the settings tree as HCL. Empty attributes are
// omitted; attribute order follows the section struct.
func MarshalSettings(s *Settings) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	if s.General != nil {
		writeSection(body.AppendNewBlock("general", nil).Body(), s.General)
		body.AppendNewline()
	}
	if s.Propagation != nil {
		writeSection(body.AppendNewBlock("propagation", nil).Body(), s.Propagation)
		body.AppendNewline()
	}
	for i := range s.Interfaces {
		iface := &s.Interfaces[i]
		writeSection(body.AppendNewBlock("interface", []string{iface.UUID}).Body(), iface)
		if i < len(s.Interfaces)-1 {
			body.AppendNewline()
		}
	}

	return hclwrite.Format(f.Bytes())
}

func writeSection(body *hclwrite.Body, section any) {
	values := fieldsOf(section)
	for _, name := range fieldNames(section) {
		if v := values[name]; v != "" {
			body.SetAttributeValue(name, cty.StringVal(v))
		}
	}
}
