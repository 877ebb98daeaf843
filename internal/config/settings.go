// Package config holds the Reticulum settings tree and the runtime
// configuration of rnsgate itself.
//
// The settings tree mirrors the layout the API exposes:
//
//	general      global rnsd options      (request key "reticulum")
//	propagation  LXMF propagation node    (request key "propagation")
//	interfaces   interface records by UUID (request key "interface")
//
// Every field is a string, booleans are "1"/"0", and the tree is persisted
// as HCL through a Store.
package config

import (
	"reflect"
	"strings"
)

// Node paths understood by Settings.Node and Settings.SetNode.
const (
	NodeGeneral     = "general"
	NodePropagation = "propagation"
	NodeInterfaces  = "interfaces.interface"
)

// InterfacePath returns the node path of a single interface record.
func InterfacePath(uuid string) string {
	return NodeInterfaces + "." + uuid
}

// Interface types supported by rnsd.
const (
	TypeAuto      = "AutoInterface"
	TypeUDP       = "UDPInterface"
	TypeTCPServer = "TCPServerInterface"
	TypeTCPClient = "TCPClientInterface"
	TypeRNode     = "RNodeInterface"
	TypeSerial    = "SerialInterface"
	TypeKISS      = "KISSInterface"
	TypeAX25KISS  = "AX25KISSInterface"
	TypeI2P       = "I2PInterface"
)

// InterfaceTypes lists the accepted interfaceType values.
var InterfaceTypes = []string{
	TypeAuto, TypeUDP, TypeTCPServer, TypeTCPClient, TypeRNode,
	TypeSerial, TypeKISS, TypeAX25KISS, TypeI2P,
}

// InterfaceModes lists the accepted interface mode values.
var InterfaceModes = []string{"full", "gateway", "access_point", "roaming", "boundary"}

// DiscoveryScopes lists the accepted AutoInterface discovery scopes.
var DiscoveryScopes = []string{"link", "admin", "site", "organisation", "global"}

// General holds the global rnsd options.
type General struct {
	Enabled               string `hcl:"enabled,optional" json:"enabled"`
	EnableTransport       string `hcl:"enable_transport,optional" json:"enable_transport"`
	ShareInstance         string `hcl:"share_instance,optional" json:"share_instance"`
	SharedInstancePort    string `hcl:"shared_instance_port,optional" json:"shared_instance_port"`
	InstanceControlPort   string `hcl:"instance_control_port,optional" json:"instance_control_port"`
	PanicOnInterfaceError string `hcl:"panic_on_interface_error,optional" json:"panic_on_interface_error"`
	RespondToProbes       string `hcl:"respond_to_probes,optional" json:"respond_to_probes"`
	LogLevel              string `hcl:"loglevel,optional" json:"loglevel"`
	EnableLXMF            string `hcl:"enable_lxmf,optional" json:"enable_lxmf"`
	LXMFBindToRNSD        string `hcl:"lxmf_bind_to_rnsd,optional" json:"lxmf_bind_to_rnsd"`
}

// Propagation holds the LXMF propagation node options.
type Propagation struct {
	Enabled              string `hcl:"enabled,optional" json:"enabled"`
	EnableNode           string `hcl:"enable_node,optional" json:"enable_node"`
	NodeName             string `hcl:"node_name,optional" json:"node_name"`
	AnnounceInterval     string `hcl:"announce_interval,optional" json:"announce_interval"`
	MessageStorageLimit  string `hcl:"message_storage_limit,optional" json:"message_storage_limit"`
	PeriodicSyncInterval string `hcl:"periodic_sync_interval,optional" json:"periodic_sync_interval"`
	MaxTransferSize      string `hcl:"max_transfer_size,optional" json:"max_transfer_size"`
	StaticPeers          string `hcl:"static_peers,optional" json:"static_peers"`
	AuthRequired         string `hcl:"auth_required,optional" json:"auth_required"`
}

// Interface is one entry of the interfaces collection.
type Interface struct {
	UUID string `hcl:"uuid,label" json:"-"`

	Enabled       string `hcl:"enabled,optional" json:"enabled"`
	Name          string `hcl:"name,optional" json:"name"`
	InterfaceType string `hcl:"interfaceType,optional" json:"interfaceType"`
	Mode          string `hcl:"mode,optional" json:"mode"`
	Outgoing      string `hcl:"outgoing,optional" json:"outgoing"`

	TCPServerListenIP   string `hcl:"tcp_server_listen_ip,optional" json:"tcp_server_listen_ip"`
	TCPServerListenPort string `hcl:"tcp_server_listen_port,optional" json:"tcp_server_listen_port"`
	TCPClientTargetHost string `hcl:"tcp_client_target_host,optional" json:"tcp_client_target_host"`
	TCPClientTargetPort string `hcl:"tcp_client_target_port,optional" json:"tcp_client_target_port"`

	UDPListenIP    string `hcl:"udp_listen_ip,optional" json:"udp_listen_ip"`
	UDPListenPort  string `hcl:"udp_listen_port,optional" json:"udp_listen_port"`
	UDPForwardIP   string `hcl:"udp_forward_ip,optional" json:"udp_forward_ip"`
	UDPForwardPort string `hcl:"udp_forward_port,optional" json:"udp_forward_port"`

	AutoGroupID        string `hcl:"auto_group_id,optional" json:"auto_group_id"`
	AutoDiscoveryScope string `hcl:"auto_discovery_scope,optional" json:"auto_discovery_scope"`
	AutoDiscoveryPort  string `hcl:"auto_discovery_port,optional" json:"auto_discovery_port"`
	AutoDataPort       string `hcl:"auto_data_port,optional" json:"auto_data_port"`
	AutoDevices        string `hcl:"auto_devices,optional" json:"auto_devices"`

	Port            string `hcl:"port,optional" json:"port"`
	Speed           string `hcl:"speed,optional" json:"speed"`
	Frequency       string `hcl:"frequency,optional" json:"frequency"`
	Bandwidth       string `hcl:"bandwidth,optional" json:"bandwidth"`
	TXPower         string `hcl:"txpower,optional" json:"txpower"`
	SpreadingFactor string `hcl:"spreadingfactor,optional" json:"spreadingfactor"`
	CodingRate      string `hcl:"codingrate,optional" json:"codingrate"`

	I2PPeers string `hcl:"i2p_peers,optional" json:"i2p_peers"`
}

// Settings is the persisted Reticulum configuration.
type Settings struct {
	General     *General     `hcl:"general,block"`
	Propagation *Propagation `hcl:"propagation,block"`
	Interfaces  []Interface  `hcl:"interface,block"`
}

// DefaultGeneral returns the general section defaults.
func DefaultGeneral() General {
	return General{
		Enabled:               "0",
		EnableTransport:       "0",
		ShareInstance:         "1",
		SharedInstancePort:    "37428",
		InstanceControlPort:   "37429",
		PanicOnInterfaceError: "0",
		RespondToProbes:       "0",
		LogLevel:              "4",
		EnableLXMF:            "0",
		LXMFBindToRNSD:        "1",
	}
}

// DefaultPropagation returns the propagation section defaults.
func DefaultPropagation() Propagation {
	return Propagation{
		Enabled:              "0",
		EnableNode:           "0",
		AnnounceInterval:     "360",
		MessageStorageLimit:  "500",
		PeriodicSyncInterval: "360",
		MaxTransferSize:      "256",
		AuthRequired:         "0",
	}
}

// NewInterfaceTemplate returns the defaults of a new interface record.
func NewInterfaceTemplate() Interface {
	return Interface{
		Enabled:       "1",
		InterfaceType: TypeAuto,
		Mode:          "full",
		Outgoing:      "1",
	}
}

// Defaults returns a settings tree with every section at its defaults.
func Defaults() *Settings {
	g := DefaultGeneral()
	p := DefaultPropagation()
	return &Settings{General: &g, Propagation: &p}
}

// ApplyDefaults fills missing sections and empty fields with their defaults.
func (s *Settings) ApplyDefaults() {
	if s.General == nil {
		s.General = &General{}
	}
	if s.Propagation == nil {
		s.Propagation = &Propagation{}
	}
	g, p := DefaultGeneral(), DefaultPropagation()
	fillEmpty(s.General, &g)
	fillEmpty(s.Propagation, &p)
	tmpl := NewInterfaceTemplate()
	for i := range s.Interfaces {
		fillEmpty(&s.Interfaces[i], &tmpl)
	}
}

// IsEnabled reports whether rnsd is administratively enabled.
func (s *Settings) IsEnabled() bool {
	return s.General != nil && s.General.Enabled == "1"
}

// LXMDWanted reports whether lxmd should run next to rnsd.
func (s *Settings) LXMDWanted() bool {
	if s.Propagation != nil && s.Propagation.Enabled == "1" {
		return true
	}
	return s.General != nil && s.General.EnableLXMF == "1"
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	out := &Settings{}
	if s.General != nil {
		g := *s.General
		out.General = &g
	}
	if s.Propagation != nil {
		p := *s.Propagation
		out.Propagation = &p
	}
	if s.Interfaces != nil {
		out.Interfaces = append([]Interface(nil), s.Interfaces...)
	}
	return out
}

// tagName returns the hcl attribute name of a struct field, or "" for labels.
func tagName(f reflect.StructField) string {
	tag := f.Tag.Get("hcl")
	if tag == "" {
		return ""
	}
	name, kind, _ := strings.Cut(tag, ",")
	if kind == "label" || kind == "block" {
		return ""
	}
	return name
}

// fieldsOf flattens a section struct into its attribute map.
func fieldsOf(v any) map[string]string {
	rv := reflect.ValueOf(v).Elem()
	rt := rv.Type()
	out := make(map[string]string, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		if name := tagName(rt.Field(i)); name != "" {
			out[name] = rv.Field(i).String()
		}
	}
	return out
}

// fieldNames lists the attribute names of a section struct in declaration order.
func fieldNames(v any) []string {
	rt := reflect.TypeOf(v).Elem()
	names := make([]string, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		if name := tagName(rt.Field(i)); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// setFields overlays values onto a section struct. Unknown keys are ignored.
func setFields(v any, values map[string]string) {
	rv := reflect.ValueOf(v).Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		name := tagName(rt.Field(i))
		if name == "" {
			continue
		}
		if val, ok := values[name]; ok {
			rv.Field(i).SetString(val)
		}
	}
}

// fillEmpty copies every non-empty field of def into empty fields of v.
func fillEmpty(v, def any) {
	rv := reflect.ValueOf(v).Elem()
	dv := reflect.ValueOf(def).Elem()
	for i := 0; i < rv.NumField(); i++ {
		if tagName(rv.Type().Field(i)) == "" {
			continue
		}
		if rv.Field(i).String() == "" {
			rv.Field(i).SetString(dv.Field(i).String())
		}
	}
}
