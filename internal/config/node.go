package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Node returns the flat attribute map of the node at path. The second result
// is false when the node does not exist.
func (s *Settings) Node(path string) (map[string]string, bool) {
	switch {
	case path == NodeGeneral:
		if s.General == nil {
			return nil, false
		}
		return fieldsOf(s.General), true
	case path == NodePropagation:
		if s.Propagation == nil {
			return nil, false
		}
		return fieldsOf(s.Propagation), true
	case strings.HasPrefix(path, NodeInterfaces+"."):
		iface := s.Interface(strings.TrimPrefix(path, NodeInterfaces+"."))
		if iface == nil {
			return nil, false
		}
		return iface.Fields(), true
	}
	return nil, false
}

// SetNode overlays fields onto the node at path. Missing sections are created
// with their defaults first; a missing interface is an error.
func (s *Settings) SetNode(path string, fields map[string]string) error {
	switch {
	case path == NodeGeneral:
		if s.General == nil {
			g := DefaultGeneral()
			s.General = &g
		}
		setFields(s.General, fields)
	case path == NodePropagation:
		if s.Propagation == nil {
			p := DefaultPropagation()
			s.Propagation = &p
		}
		setFields(s.Propagation, fields)
	case strings.HasPrefix(path, NodeInterfaces+"."):
		id := strings.TrimPrefix(path, NodeInterfaces+".")
		iface := s.Interface(id)
		if iface == nil {
			return fmt.Errorf("interface %s not found", id)
		}
		setFields(iface, fields)
	default:
		return fmt.Errorf("unknown settings node %q", path)
	}
	return nil
}

// Interface returns the interface record with the given UUID, or nil.
func (s *Settings) Interface(id string) *Interface {
	if id == "" {
		return nil
	}
	for i := range s.Interfaces {
		if s.Interfaces[i].UUID == id {
			return &s.Interfaces[i]
		}
	}
	return nil
}

// AddInterface appends a new record built from the template overlaid with
// fields and returns its UUID.
func (s *Settings) AddInterface(fields map[string]string) string {
	iface := NewInterfaceTemplate()
	iface.UUID = uuid.NewString()
	setFields(&iface, fields)
	s.Interfaces = append(s.Interfaces, iface)
	return iface.UUID
}

// DeleteInterface removes the record with the given UUID.
func (s *Settings) DeleteInterface(id string) bool {
	for i := range s.Interfaces {
		if s.Interfaces[i].UUID == id {
			s.Interfaces = append(s.Interfaces[:i], s.Interfaces[i+1:]...)
			return true
		}
	}
	return false
}

// Fields returns the record's attributes as a flat map.
func (i *Interface) Fields() map[string]string {
	return fieldsOf(i)
}

// GeneralFields lists the attribute names of the general section.
func GeneralFields() []string { return fieldNames(&General{}) }

// PropagationFields lists the attribute names of the propagation section.
func PropagationFields() []string { return fieldNames(&Propagation{}) }

// InterfaceFields lists the attribute names of an interface record.
func InterfaceFields() []string { return fieldNames(&Interface{}) }
