package naming

import (
	"fmt"
	"strings"
)

type Version int

const (
	V0 Version = iota
	V1
)

func (v Version) String() string {
	return fmt.Sprintf("v%d", int(v))
}

func ParseVersion(s string) (Version, error) {

	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "v0", "0":
		return V0, nil
	case "v1", "1":
		return V1, nil
	default:
		return V0, fmt.Errorf("unknown naming schema version %q", s)
	}
}

type Cache interface {
	Operation(cacheSystem string) string
	// Service returns "" when spans keep the tracer service.
	Service(cacheSystem string) string
}

type Client interface {
	OperationForProtocol(protocol string) string
	OperationForComponent(component string) string
}

type Cloud interface {
	OperationForRequest(provider, cloudService, request string) string
	ServiceForRequest(provider, cloudService string) string
	OperationForFaas(provider string) string
}

type Database interface {
	Operation(databaseType string) string
	Service(databaseType string) string
}

type Messaging interface {
	OutboundOperation(system string) string
	OutboundService(system string) string
	InboundOperation(system string) string
	InboundService(system string) string
}

type Server interface {
	OperationForProtocol(protocol string) string
	OperationForComponent(component string) string
}

type PeerService interface {
	SupportsDefaultPeerService() bool
	// Precursors lists the tags a default peer.service is taken from, in order.
	Precursors() []string
}

// Schema is selected once at configuration time.
type Schema struct {
	version   Version
	service   string
	cache     Cache
	client    Client
	cloud     Cloud
	database  Database
	messaging Messaging
	server    Server
	peer      PeerService
}

func (s *Schema) Version() Version         { return s.version }
func (s *Schema) Service() string          { return s.service }
func (s *Schema) Cache() Cache             { return s.cache }
func (s *Schema) Client() Client           { return s.client }
func (s *Schema) Cloud() Cloud             { return s.cloud }
func (s *Schema) Database() Database       { return s.database }
func (s *Schema) Messaging() Messaging     { return s.messaging }
func (s *Schema) Server() Server           { return s.server }
func (s *Schema) PeerService() PeerService { return s.peer }

// AllowInferredServices reports whether integrations may rename the span service.
func (s *Schema) AllowInferredServices() bool {
	return s.version == V0
}

func New(version Version, ddService string) *Schema {

	switch version {
	case V1:
		return &Schema{
			version:   V1,
			service:   ddService,
			cache:     cacheV1{},
			client:    clientV1{},
			cloud:     cloudV1{},
			database:  databaseV1{},
			messaging: messagingV1{},
			server:    serverV1{},
			peer:      peerServiceV1{},
		}
	default:
		return &Schema{
			version:   V0,
			service:   ddService,
			cache:     cacheV0{},
			client:    clientV0{},
			cloud:     cloudV0{},
			database:  databaseV0{},
			messaging: messagingV0{service: ddService},
			server:    serverV0{},
			peer:      peerServiceV0{},
		}
	}
}
